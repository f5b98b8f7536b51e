package event

import "errors"

type Field string

const (
	FieldName      Field = "eventName"
	FieldStartDate Field = "startDate"
	FieldEndDate   Field = "endDate"
)

// ErrInvalidInput is matched by every ValidationError through errors.Is.
var ErrInvalidInput = errors.New("input not valid")

// ValidationError reports a required field that was left empty. It is raised before any network call.
type ValidationError struct {
	Field Field
}

func (e *ValidationError) Error() string {
	return "input not valid: " + string(e.Field) + " is required"
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}
