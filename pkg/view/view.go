// Package view keeps the rendered state of the event table: one row per persisted record keyed by its id, the
// transient draft rows that have not been created yet, and the notice shown above the table.
//
// The View is derived state. It is never consulted to decide what is stored; the controller applies the same
// mutation to the model and the view after the store has confirmed it. A View is not safe for concurrent use.
package view

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/astromechza/event-list-sync/pkg/event"
)

type Mode int

const (
	ModeDisplay Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "display"
}

type NoticeKind string

const (
	// NoticeBlocking is shown for input that was rejected before anything was sent.
	NoticeBlocking NoticeKind = "blocking"
	// NoticeError is shown when the store rejected or failed a call. The user can retry.
	NoticeError NoticeKind = "error"
)

type Notice struct {
	Kind    NoticeKind
	Message string
}

type row struct {
	event event.Event
	mode  Mode
	input event.Edit
	busy  bool
}

type draft struct {
	key   string
	input event.Draft
	busy  bool
}

// RowState is a copy of a row binding.
type RowState struct {
	Event event.Event
	Mode  Mode
	// Input holds the edit inputs. It is only meaningful in ModeEdit.
	Input event.Edit
	Busy  bool
}

func (r RowState) Editing() bool {
	return r.Mode == ModeEdit
}

func (r RowState) CanEdit() bool {
	return r.Mode == ModeDisplay && !r.Busy
}

func (r RowState) CanSave() bool {
	return r.Mode == ModeEdit && !r.Busy
}

func (r RowState) CanDelete() bool {
	return !r.Busy
}

type DraftState struct {
	Key   string
	Input event.Draft
	Busy  bool
}

type View struct {
	rows       map[event.ID]*row
	order      []event.ID
	drafts     map[string]*draft
	draftOrder []string
	notice     *Notice
	newKey     func() string
}

func New() *View {
	return &View{
		rows:   make(map[event.ID]*row),
		drafts: make(map[string]*draft),
		newKey: uuid.NewString,
	}
}

// RenderAll clears every persisted row and renders one row per event in the given order. Draft rows are kept.
func (v *View) RenderAll(events []event.Event) {
	v.rows = make(map[event.ID]*row, len(events))
	v.order = make([]event.ID, 0, len(events))
	for _, e := range events {
		v.RenderOne(e)
	}
}

// RenderOne appends a row in display mode. Rendering an id twice is a caller error and is not checked.
func (v *View) RenderOne(e event.Event) {
	v.rows[e.ID] = &row{event: e, mode: ModeDisplay}
	v.order = append(v.order, e.ID)
}

// RemoveRow removes the row keyed by id. A missing row is tolerated.
func (v *View) RemoveRow(id event.ID) bool {
	if _, ok := v.rows[id]; !ok {
		slog.Debug("remove of unrendered row", "id", id)
		return false
	}
	delete(v.rows, id)
	kept := v.order[:0:0]
	for _, other := range v.order {
		if other != id {
			kept = append(kept, other)
		}
	}
	v.order = kept
	return true
}

// UpdateRow replaces the displayed values of a row without changing its mode.
func (v *View) UpdateRow(e event.Event) bool {
	r, ok := v.rows[e.ID]
	if !ok {
		return false
	}
	r.event = e
	return true
}

// StartEdit switches a row to edit mode with its inputs pre-filled from the displayed values.
func (v *View) StartEdit(id event.ID) bool {
	r, ok := v.rows[id]
	if !ok {
		return false
	}
	if r.mode != ModeEdit {
		r.mode = ModeEdit
		r.input = event.EditOf(r.event)
	}
	return true
}

// SetEditInput records what the user typed without leaving edit mode.
func (v *View) SetEditInput(id event.ID, in event.Edit) bool {
	r, ok := v.rows[id]
	if !ok || r.mode != ModeEdit {
		return false
	}
	r.input = in
	return true
}

// FinishEdit writes the saved values and switches the row back to display mode.
func (v *View) FinishEdit(e event.Event) bool {
	r, ok := v.rows[e.ID]
	if !ok {
		return false
	}
	r.event = e
	r.mode = ModeDisplay
	r.input = event.Edit{}
	return true
}

// CancelEdit switches the row back to display mode and drops the inputs.
func (v *View) CancelEdit(id event.ID) bool {
	r, ok := v.rows[id]
	if !ok {
		return false
	}
	r.mode = ModeDisplay
	r.input = event.Edit{}
	return true
}

func (v *View) SetBusy(id event.ID, busy bool) bool {
	r, ok := v.rows[id]
	if !ok {
		return false
	}
	r.busy = busy
	return true
}

func (v *View) Row(id event.ID) (RowState, bool) {
	r, ok := v.rows[id]
	if !ok {
		return RowState{}, false
	}
	return r.state(), true
}

// Rows returns the rendered rows in display order.
func (v *View) Rows() []RowState {
	out := make([]RowState, 0, len(v.order))
	for _, id := range v.order {
		if r, ok := v.rows[id]; ok {
			out = append(out, r.state())
		}
	}
	return out
}

func (r *row) state() RowState {
	return RowState{Event: r.event, Mode: r.mode, Input: r.input, Busy: r.busy}
}

// AddDraft appends an empty draft row and returns its key.
func (v *View) AddDraft() string {
	key := v.newKey()
	v.drafts[key] = &draft{key: key}
	v.draftOrder = append(v.draftOrder, key)
	return key
}

func (v *View) SetDraftInput(key string, in event.Draft) bool {
	d, ok := v.drafts[key]
	if !ok {
		return false
	}
	d.input = in
	return true
}

func (v *View) SetDraftBusy(key string, busy bool) bool {
	d, ok := v.drafts[key]
	if !ok {
		return false
	}
	d.busy = busy
	return true
}

func (v *View) RemoveDraft(key string) bool {
	if _, ok := v.drafts[key]; !ok {
		return false
	}
	delete(v.drafts, key)
	for i, other := range v.draftOrder {
		if other == key {
			v.draftOrder = append(v.draftOrder[:i:i], v.draftOrder[i+1:]...)
			break
		}
	}
	return true
}

func (v *View) Draft(key string) (DraftState, bool) {
	d, ok := v.drafts[key]
	if !ok {
		return DraftState{}, false
	}
	return DraftState{Key: d.key, Input: d.input, Busy: d.busy}, true
}

func (v *View) Drafts() []DraftState {
	out := make([]DraftState, 0, len(v.draftOrder))
	for _, key := range v.draftOrder {
		d := v.drafts[key]
		out = append(out, DraftState{Key: d.key, Input: d.input, Busy: d.busy})
	}
	return out
}

func (v *View) SetNotice(n Notice) {
	v.notice = &n
}

func (v *View) ClearNotice() {
	v.notice = nil
}

func (v *View) Notice() (Notice, bool) {
	if v.notice == nil {
		return Notice{}, false
	}
	return *v.notice, true
}
