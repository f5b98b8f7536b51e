// Package eventstore serves the remote events collection. The records live in an automerge document that is
// snapshotted into sqlite, so every mutation is also a change in the document's history.
package eventstore

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/automerge/automerge-go"
)

var (
	ErrNotFound     = errors.New("event not found")
	ErrNameRequired = errors.New("eventName is required")
)

const (
	eventsKey = "events"
	nextIdKey = "nextId"
)

// Record is the wire shape of a stored event. Ids are integers as a json-server would hand out.
type Record struct {
	ID        int64  `json:"id"`
	EventName string `json:"eventName"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Fields is the body of a create request.
type Fields struct {
	EventName string `json:"eventName"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Patch is the body of a partial update. Absent fields are left alone.
type Patch struct {
	EventName *string `json:"eventName"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
}

// Collection guards a single document. All methods are safe for concurrent use.
type Collection struct {
	mu  sync.Mutex
	doc *automerge.Doc
}

func NewCollection() (*Collection, error) {
	doc := automerge.New()
	if err := doc.Path(eventsKey).Set(map[string]interface{}{}); err != nil {
		return nil, fmt.Errorf("failed to create events map: %w", err)
	}
	if _, err := doc.Commit("init", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return &Collection{doc: doc}, nil
}

func LoadCollection(raw []byte) (*Collection, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	return &Collection{doc: doc}, nil
}

// Save returns the serialised document.
func (c *Collection) Save() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Save()
}

// Fork returns an independent copy of the document, for rendering or dumping without holding the lock.
func (c *Collection) Fork() (*automerge.Doc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Fork()
}

func (c *Collection) Heads() []automerge.ChangeHash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Heads()
}

// List returns every record in ascending id order, which is creation order.
func (c *Collection) List() ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ListDoc(c.doc)
}

// ListDoc reads the records of any document with the collection layout.
func ListDoc(doc *automerge.Doc) ([]Record, error) {
	v, err := doc.Path(eventsKey).Get()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	if v.Kind() == automerge.KindVoid {
		return []Record{}, nil
	}
	keys, err := doc.Path(eventsKey).Map().Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected key %q in events map", k)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, err := readRecord(doc, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Collection) Get(id int64) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return readRecord(c.doc, id)
}

func (c *Collection) Create(f Fields) (Record, error) {
	f.EventName = strings.TrimSpace(f.EventName)
	if f.EventName == "" {
		return Record{}, ErrNameRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.doc.Path(nextIdKey).Counter().Inc(1); err != nil {
		return Record{}, fmt.Errorf("failed to increment id counter: %w", err)
	}
	id, err := c.doc.Path(nextIdKey).Counter().Get()
	if err != nil {
		return Record{}, fmt.Errorf("failed to read id counter: %w", err)
	}
	if err := c.doc.Path(eventsKey, key(id)).Set(map[string]interface{}{
		"eventName": f.EventName,
		"startDate": f.StartDate,
		"endDate":   f.EndDate,
	}); err != nil {
		return Record{}, fmt.Errorf("failed to set event: %w", err)
	}
	if _, err := c.doc.Commit("create " + key(id)); err != nil {
		return Record{}, fmt.Errorf("failed to commit: %w", err)
	}
	return readRecord(c.doc, id)
}

func (c *Collection) Update(id int64, p Patch) (Record, error) {
	if p.EventName != nil && strings.TrimSpace(*p.EventName) == "" {
		return Record{}, ErrNameRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !exists(c.doc, id) {
		return Record{}, ErrNotFound
	}
	if p.EventName == nil && p.StartDate == nil && p.EndDate == nil {
		return readRecord(c.doc, id)
	}
	set := func(field string, value *string) error {
		if value == nil {
			return nil
		}
		if err := c.doc.Path(eventsKey, key(id), field).Set(*value); err != nil {
			return fmt.Errorf("failed to set %s: %w", field, err)
		}
		return nil
	}
	if p.EventName != nil {
		name := strings.TrimSpace(*p.EventName)
		p.EventName = &name
	}
	if err := errors.Join(set("eventName", p.EventName), set("startDate", p.StartDate), set("endDate", p.EndDate)); err != nil {
		return Record{}, err
	}
	if _, err := c.doc.Commit("update " + key(id)); err != nil {
		return Record{}, fmt.Errorf("failed to commit: %w", err)
	}
	return readRecord(c.doc, id)
}

func (c *Collection) Delete(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !exists(c.doc, id) {
		return ErrNotFound
	}
	if err := c.doc.Path(eventsKey).Map().Delete(key(id)); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if _, err := c.doc.Commit("delete " + key(id)); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}

func exists(doc *automerge.Doc, id int64) bool {
	v, err := doc.Path(eventsKey, key(id)).Get()
	return err == nil && v.Kind() != automerge.KindVoid
}

func readRecord(doc *automerge.Doc, id int64) (Record, error) {
	if !exists(doc, id) {
		return Record{}, ErrNotFound
	}
	r := Record{ID: id}
	var err error
	if r.EventName, err = automerge.As[string](doc.Path(eventsKey, key(id), "eventName").Get()); err != nil {
		return Record{}, fmt.Errorf("failed to read event %d: %w", id, err)
	}
	if r.StartDate, err = automerge.As[string](doc.Path(eventsKey, key(id), "startDate").Get()); err != nil {
		return Record{}, fmt.Errorf("failed to read event %d: %w", id, err)
	}
	if r.EndDate, err = automerge.As[string](doc.Path(eventsKey, key(id), "endDate").Get()); err != nil {
		return Record{}, fmt.Errorf("failed to read event %d: %w", id, err)
	}
	return r, nil
}
