package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID identifies a persisted event. Stores hand these out as either JSON strings or JSON numbers so both are accepted
// when decoding. The zero value means the record has never been persisted.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) IsZero() bool {
	return id == ""
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Int64 returns the numeric form of the id for stores that assign integer ids.
func (id ID) Int64() (int64, error) {
	return strconv.ParseInt(string(id), 10, 64)
}

// Date is a calendar date in YYYY-MM-DD form. The empty Date means "not set".
type Date string

const DateLayout = time.DateOnly

func (d Date) String() string {
	return string(d)
}

func (d Date) IsZero() bool {
	return strings.TrimSpace(string(d)) == ""
}

// Time parses the date as midnight UTC.
func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

// DateOf formats t as a Date.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Event is a single persisted (or about to be persisted) record.
type Event struct {
	ID        ID     `json:"id"`
	Name      string `json:"eventName"`
	StartDate Date   `json:"startDate"`
	EndDate   Date   `json:"endDate"`
}

// Draft is the content of a record that has not been created yet. It carries no identifier, the store assigns one.
type Draft struct {
	Name      string `json:"eventName"`
	StartDate Date   `json:"startDate"`
	EndDate   Date   `json:"endDate"`
}

// Normalize trims surrounding whitespace from the name.
func (d Draft) Normalize() Draft {
	d.Name = strings.TrimSpace(d.Name)
	return d
}

// Validate checks that all required fields are present.
func (d Draft) Validate() error {
	d = d.Normalize()
	switch {
	case d.Name == "":
		return &ValidationError{Field: FieldName}
	case d.StartDate.IsZero():
		return &ValidationError{Field: FieldStartDate}
	case d.EndDate.IsZero():
		return &ValidationError{Field: FieldEndDate}
	}
	return nil
}

// Patch is a partial update. Only non-nil fields are sent to the store.
type Patch struct {
	Name      *string `json:"eventName,omitempty"`
	StartDate *Date   `json:"startDate,omitempty"`
	EndDate   *Date   `json:"endDate,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.StartDate == nil && p.EndDate == nil
}

// Apply returns e with the fields set in the patch replaced. The id is never touched.
func (p Patch) Apply(e Event) Event {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		e.EndDate = *p.EndDate
	}
	return e
}

// Edit is the content of a row's edit inputs at the moment the user saves.
type Edit struct {
	Name      string
	StartDate Date
	EndDate   Date
}

// EditOf pre-fills an Edit with the record's current values.
func EditOf(e Event) Edit {
	return Edit{Name: e.Name, StartDate: e.StartDate, EndDate: e.EndDate}
}

// Validate checks the edit against the record it replaces. The name is always required; a date is only required when
// the record already has one.
func (e Edit) Validate(current Event) error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return &ValidationError{Field: FieldName}
	case e.StartDate.IsZero() && !current.StartDate.IsZero():
		return &ValidationError{Field: FieldStartDate}
	case e.EndDate.IsZero() && !current.EndDate.IsZero():
		return &ValidationError{Field: FieldEndDate}
	}
	return nil
}

// PatchFor builds the patch holding only the fields that differ from current.
func (e Edit) PatchFor(current Event) Patch {
	var p Patch
	if name := strings.TrimSpace(e.Name); name != current.Name {
		p.Name = &name
	}
	if e.StartDate != current.StartDate {
		start := e.StartDate
		p.StartDate = &start
	}
	if e.EndDate != current.EndDate {
		end := e.EndDate
		p.EndDate = &end
	}
	return p
}
