package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/astromechza/event-list-sync/pkg/event"
)

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

func newTestServer(t *testing.T, status int, response string) (*Client, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(raw),
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c, &requests
}

func TestClientList(t *testing.T) {
	c, requests := newTestServer(t, http.StatusOK, `[{"id":1,"eventName":"Standup","startDate":"2024-01-01","endDate":"2024-01-01"}]`)

	events, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].ID != "1" || events[0].Name != "Standup" {
		t.Fatalf("unexpected events %+v", events)
	}
	if got := (*requests)[0]; got.method != http.MethodGet || got.path != "/events" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestClientListEmpty(t *testing.T) {
	c, _ := newTestServer(t, http.StatusOK, `[]`)
	events, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", events)
	}
}

func TestClientCreate(t *testing.T) {
	c, requests := newTestServer(t, http.StatusCreated, `{"id":7,"eventName":"Demo","startDate":"2024-02-01","endDate":"2024-02-02"}`)

	created, err := c.Create(context.Background(), event.Draft{Name: " Demo ", StartDate: "2024-02-01", EndDate: "2024-02-02"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID != "7" {
		t.Fatalf("expected id 7, got %q", created.ID)
	}

	got := (*requests)[0]
	if got.method != http.MethodPost || got.path != "/events" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.contentType != "application/json" {
		t.Fatalf("expected json content type, got %q", got.contentType)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(got.body), &body); err != nil {
		t.Fatalf("unexpected body %q: %v", got.body, err)
	}
	if body["eventName"] != "Demo" || body["startDate"] != "2024-02-01" || body["endDate"] != "2024-02-02" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestClientCreateWithoutID(t *testing.T) {
	c, _ := newTestServer(t, http.StatusCreated, `{"eventName":"Demo"}`)
	_, err := c.Create(context.Background(), event.Draft{Name: "Demo"})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestClientRemove(t *testing.T) {
	c, requests := newTestServer(t, http.StatusOK, `{}`)
	if err := c.Remove(context.Background(), "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := (*requests)[0]; got.method != http.MethodDelete || got.path != "/events/1" || got.contentType != "" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestClientUpdate(t *testing.T) {
	c, requests := newTestServer(t, http.StatusOK, `{"id":1,"eventName":"Retro","startDate":"2024-01-01","endDate":"2024-01-01"}`)
	name := "Retro"
	updated, err := c.Update(context.Background(), "1", event.Patch{Name: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "Retro" || updated.ID != "1" {
		t.Fatalf("unexpected record %+v", updated)
	}
	got := (*requests)[0]
	if got.method != http.MethodPatch || got.path != "/events/1" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.body != `{"eventName":"Retro"}` {
		t.Fatalf("expected partial body, got %q", got.body)
	}
}

func TestClientFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		call       func(c *Client) error
		statusCode int
		notFound   bool
	}{
		{
			name:       "list server error",
			status:     http.StatusInternalServerError,
			response:   `{"error":"boom"}`,
			call:       func(c *Client) error { _, err := c.List(context.Background()); return err },
			statusCode: http.StatusInternalServerError,
		},
		{
			name:       "remove missing",
			status:     http.StatusNotFound,
			response:   `{}`,
			call:       func(c *Client) error { return c.Remove(context.Background(), "99") },
			statusCode: http.StatusNotFound,
			notFound:   true,
		},
		{
			name:     "update bad body",
			status:   http.StatusOK,
			response: `not json`,
			call: func(c *Client) error {
				_, err := c.Update(context.Background(), "1", event.Patch{})
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestServer(t, tt.status, tt.response)
			err := tt.call(c)
			var terr *TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("expected transport error, got %v", err)
			}
			if terr.StatusCode != tt.statusCode {
				t.Fatalf("expected status %d, got %d", tt.statusCode, terr.StatusCode)
			}
			if errors.Is(err, ErrNotFound) != tt.notFound {
				t.Fatalf("unexpected ErrNotFound match for %v", err)
			}
		})
	}
}

func TestClientNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	c, err := New(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = c.List(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.StatusCode != 0 {
		t.Fatalf("expected network transport error, got %v", err)
	}
}

func TestNewRejectsRelativeURL(t *testing.T) {
	if _, err := New("/events"); err == nil {
		t.Fatal("expected error for relative url")
	}
}
