// Package model holds the authoritative in-memory list of events for the session.
package model

import "github.com/astromechza/event-list-sync/pkg/event"

// EventList is an ordered collection keyed by event id. It is not safe for concurrent use.
type EventList struct {
	events []event.Event
}

func New(events ...event.Event) *EventList {
	m := &EventList{}
	m.ReplaceAll(events)
	return m
}

// Get returns the backing slice. Callers borrow it: they must not modify it and must not hold on to it across
// mutations.
func (m *EventList) Get() []event.Event {
	return m.events
}

func (m *EventList) Len() int {
	return len(m.events)
}

// ReplaceAll discards the current state and keeps the input order.
func (m *EventList) ReplaceAll(events []event.Event) {
	m.events = make([]event.Event, len(events))
	copy(m.events, events)
}

func (m *EventList) Append(e event.Event) {
	m.events = append(m.events, e)
}

// RemoveByID drops the record with the given id. Removing an absent id is not an error.
func (m *EventList) RemoveByID(id event.ID) bool {
	for i, e := range m.events {
		if e.ID == id {
			m.events = append(m.events[:i:i], m.events[i+1:]...)
			return true
		}
	}
	return false
}

// Update replaces the fields of the record with the same id in place.
func (m *EventList) Update(e event.Event) bool {
	for i := range m.events {
		if m.events[i].ID == e.ID {
			m.events[i] = e
			return true
		}
	}
	return false
}

func (m *EventList) Find(id event.ID) (event.Event, bool) {
	for _, e := range m.events {
		if e.ID == id {
			return e, true
		}
	}
	return event.Event{}, false
}
