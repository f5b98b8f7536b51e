// Package controller keeps the event model, the rendered view and the remote store in step.
//
// A mutation is applied to the model and the view only after the store call that backs it has succeeded, and the
// two are applied together under one lock. The lock is never held while a store call is outstanding, so other
// records stay usable. A record (or draft) with an outstanding call rejects further operations with ErrBusy.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/astromechza/event-list-sync/pkg/event"
	"github.com/astromechza/event-list-sync/pkg/model"
	"github.com/astromechza/event-list-sync/pkg/view"
)

var (
	ErrBusy          = errors.New("an operation is already in flight for this record")
	ErrUnknownRecord = errors.New("unknown record")
	ErrUnknownDraft  = errors.New("unknown draft")
	ErrNotEditing    = errors.New("record is not being edited")
)

const invalidInputMessage = "Input Not Valid!"

// Store is the remote collection. *store.Client satisfies it.
type Store interface {
	List(ctx context.Context) ([]event.Event, error)
	Create(ctx context.Context, draft event.Draft) (event.Event, error)
	Remove(ctx context.Context, id event.ID) error
	Update(ctx context.Context, id event.ID, patch event.Patch) (event.Event, error)
}

type Controller struct {
	store Store

	mu       sync.Mutex
	model    *model.EventList
	view     *view.View
	inflight map[string]bool

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

func New(store Store, m *model.EventList, v *view.View) *Controller {
	return &Controller{
		store:    store,
		model:    m,
		view:     v,
		inflight: make(map[string]bool),
		subs:     make(map[chan struct{}]struct{}),
	}
}

func recordKey(id event.ID) string {
	return "record:" + id.String()
}

func draftKey(key string) string {
	return "draft:" + key
}

// Load fetches the whole remote collection once and replaces the model and the view wholesale.
func (c *Controller) Load(ctx context.Context) error {
	events, err := c.store.List(ctx)
	if err != nil {
		c.failed("load", "", err)
		return fmt.Errorf("failed to load events: %w", err)
	}

	c.mu.Lock()
	c.model.ReplaceAll(events)
	c.view.RenderAll(c.model.Get())
	for _, e := range events {
		if c.inflight[recordKey(e.ID)] {
			c.view.SetBusy(e.ID, true)
		}
	}
	c.mu.Unlock()

	slog.Info("loaded events", "count", len(events))
	c.notify()
	return nil
}

// AddDraft adds an empty draft row to the view. Drafts never enter the model.
func (c *Controller) AddDraft() string {
	c.mu.Lock()
	key := c.view.AddDraft()
	c.mu.Unlock()
	slog.Debug("added draft", "draft", key)
	c.notify()
	return key
}

func (c *Controller) DiscardDraft(key string) error {
	c.mu.Lock()
	if c.inflight[draftKey(key)] {
		c.mu.Unlock()
		return ErrBusy
	}
	ok := c.view.RemoveDraft(key)
	c.mu.Unlock()
	if !ok {
		return ErrUnknownDraft
	}
	c.notify()
	return nil
}

// ConfirmDraft creates the record described by the draft. On success the draft row is replaced by a persisted row;
// on failure the draft row stays with the user's input so the user can retry.
func (c *Controller) ConfirmDraft(ctx context.Context, key string, input event.Draft) (event.Event, error) {
	input = input.Normalize()

	c.mu.Lock()
	if _, ok := c.view.Draft(key); !ok {
		c.mu.Unlock()
		return event.Event{}, ErrUnknownDraft
	}
	if c.inflight[draftKey(key)] {
		c.mu.Unlock()
		return event.Event{}, ErrBusy
	}
	c.view.SetDraftInput(key, input)
	if err := input.Validate(); err != nil {
		c.view.SetNotice(view.Notice{Kind: view.NoticeBlocking, Message: invalidInputMessage})
		c.mu.Unlock()
		slog.Info("rejected draft", "draft", key, "err", err)
		c.notify()
		return event.Event{}, err
	}
	c.inflight[draftKey(key)] = true
	c.view.SetDraftBusy(key, true)
	c.mu.Unlock()
	c.notify()

	created, err := c.store.Create(ctx, input)

	c.mu.Lock()
	delete(c.inflight, draftKey(key))
	if err != nil {
		c.view.SetDraftBusy(key, false)
		c.mu.Unlock()
		c.failed("create", "", err)
		return event.Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	if _, ok := c.model.Find(created.ID); ok {
		// A reload that finished while the create was in flight already brought the record in.
		c.model.Update(created)
		c.view.UpdateRow(created)
	} else {
		c.model.Append(created)
		c.view.RenderOne(created)
	}
	c.view.RemoveDraft(key)
	c.view.ClearNotice()
	c.mu.Unlock()

	slog.Info("created event", "id", created.ID, "name", created.Name)
	c.notify()
	return created, nil
}

// StartEdit switches the record's row to edit mode.
func (c *Controller) StartEdit(id event.ID) error {
	c.mu.Lock()
	if c.inflight[recordKey(id)] {
		c.mu.Unlock()
		return ErrBusy
	}
	ok := c.view.StartEdit(id)
	c.mu.Unlock()
	if !ok {
		return ErrUnknownRecord
	}
	c.notify()
	return nil
}

func (c *Controller) CancelEdit(id event.ID) error {
	c.mu.Lock()
	if c.inflight[recordKey(id)] {
		c.mu.Unlock()
		return ErrBusy
	}
	ok := c.view.CancelEdit(id)
	c.mu.Unlock()
	if !ok {
		return ErrUnknownRecord
	}
	c.notify()
	return nil
}

// SaveEdit persists the changed fields of a row in edit mode. Invalid input keeps the row in edit mode and sends
// nothing. Dates are only required when the record already has them. A save that changes nothing returns the row to
// display mode without a store call.
func (c *Controller) SaveEdit(ctx context.Context, id event.ID, input event.Edit) error {
	c.mu.Lock()
	row, ok := c.view.Row(id)
	if !ok {
		c.mu.Unlock()
		return ErrUnknownRecord
	}
	if c.inflight[recordKey(id)] {
		c.mu.Unlock()
		return ErrBusy
	}
	if !row.Editing() {
		c.mu.Unlock()
		return ErrNotEditing
	}
	c.view.SetEditInput(id, input)
	current, ok := c.model.Find(id)
	if !ok {
		current = row.Event
	}
	if err := input.Validate(current); err != nil {
		c.view.SetNotice(view.Notice{Kind: view.NoticeBlocking, Message: invalidInputMessage})
		c.mu.Unlock()
		slog.Info("rejected edit", "id", id, "err", err)
		c.notify()
		return err
	}
	patch := input.PatchFor(current)
	if patch.Empty() {
		c.view.FinishEdit(current)
		c.mu.Unlock()
		c.notify()
		return nil
	}
	c.inflight[recordKey(id)] = true
	c.view.SetBusy(id, true)
	c.mu.Unlock()
	c.notify()

	updated, err := c.store.Update(ctx, id, patch)

	c.mu.Lock()
	delete(c.inflight, recordKey(id))
	c.view.SetBusy(id, false)
	if err != nil {
		c.mu.Unlock()
		c.failed("update", id, err)
		return fmt.Errorf("failed to update event %s: %w", id, err)
	}
	// The store answers with the whole record. Fields it left out keep the value we patched.
	updated = mergeUpdate(patch.Apply(current), updated)
	c.model.Update(updated)
	c.view.FinishEdit(updated)
	c.view.ClearNotice()
	c.mu.Unlock()

	slog.Info("updated event", "id", id)
	c.notify()
	return nil
}

func mergeUpdate(patched, returned event.Event) event.Event {
	if returned.Name != "" {
		patched.Name = returned.Name
	}
	if !returned.StartDate.IsZero() {
		patched.StartDate = returned.StartDate
	}
	if !returned.EndDate.IsZero() {
		patched.EndDate = returned.EndDate
	}
	return patched
}

// Delete removes the record remotely and then from the model and the view.
func (c *Controller) Delete(ctx context.Context, id event.ID) error {
	c.mu.Lock()
	if _, ok := c.view.Row(id); !ok {
		c.mu.Unlock()
		return ErrUnknownRecord
	}
	if c.inflight[recordKey(id)] {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inflight[recordKey(id)] = true
	c.view.SetBusy(id, true)
	c.mu.Unlock()
	c.notify()

	err := c.store.Remove(ctx, id)

	c.mu.Lock()
	delete(c.inflight, recordKey(id))
	if err != nil {
		c.view.SetBusy(id, false)
		c.mu.Unlock()
		c.failed("delete", id, err)
		return fmt.Errorf("failed to delete event %s: %w", id, err)
	}
	c.model.RemoveByID(id)
	c.view.RemoveRow(id)
	c.view.ClearNotice()
	c.mu.Unlock()

	slog.Info("deleted event", "id", id)
	c.notify()
	return nil
}

func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.view.ClearNotice()
	c.mu.Unlock()
	c.notify()
}

// failed surfaces a store failure as a recoverable notice.
func (c *Controller) failed(op string, id event.ID, err error) {
	slog.Error("store call failed", "op", op, "id", id, "err", err)
	msg := fmt.Sprintf("Could not %s the event, please try again.", op)
	if op == "load" {
		msg = "Could not load events, use Reload to try again."
	}
	c.mu.Lock()
	c.view.SetNotice(view.Notice{Kind: view.NoticeError, Message: msg})
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) WritePage(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.WritePage(w)
}

func (c *Controller) WriteTable(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.WriteTable(w)
}

// Snapshot copies the model and the view's rows.
func (c *Controller) Snapshot() ([]event.Event, []view.RowState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]event.Event, c.model.Len())
	copy(events, c.model.Get())
	return events, c.view.Rows()
}

// Subscribe returns a channel that receives a value after state changes. Notifications coalesce: a slow reader sees
// at least one value after the last change. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.subsMu.Lock()
	c.subs[ch] = struct{}{}
	c.subsMu.Unlock()
	return ch, func() {
		c.subsMu.Lock()
		delete(c.subs, ch)
		c.subsMu.Unlock()
	}
}

func (c *Controller) notify() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
