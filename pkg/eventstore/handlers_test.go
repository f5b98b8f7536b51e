package eventstore

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func newTestRouter(t *testing.T) (http.Handler, *Collection) {
	t.Helper()
	c, err := NewCollection()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewServer(c).Router(), c
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListEmpty(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := do(t, h, http.MethodGet, "/events", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}

func TestCreateThenList(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/events", `{"eventName":"Standup","startDate":"2024-01-01","endDate":"2024-01-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created Record
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if created.ID != 1 || created.EventName != "Standup" {
		t.Fatalf("unexpected record %+v", created)
	}
	if !strings.Contains(rec.Body.String(), `"id":1`) {
		t.Fatalf("expected numeric id, got %s", rec.Body.String())
	}

	do(t, h, http.MethodPost, "/events", `{"eventName":"Retro","startDate":"2024-01-02","endDate":"2024-01-02"}`)

	rec = do(t, h, http.MethodGet, "/events", "")
	var listed []Record
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if len(listed) != 2 || listed[0] != created || listed[1].ID != 2 {
		t.Fatalf("unexpected list %+v", listed)
	}
}

func TestCreateValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"eventName":`},
		{name: "blank name", body: `{"eventName":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/events", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("expected error body, got %q", rec.Body.String())
			}
		})
	}
}

func TestPatch(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/events", `{"eventName":"Standup","startDate":"2024-01-01","endDate":"2024-01-01"}`)

	rec := do(t, h, http.MethodPatch, "/events/1", `{"eventName":"Planning"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var updated Record
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	want := Record{ID: 1, EventName: "Planning", StartDate: "2024-01-01", EndDate: "2024-01-01"}
	if updated != want {
		t.Fatalf("expected %+v, got %+v", want, updated)
	}

	if rec := do(t, h, http.MethodPatch, "/events/42", `{"eventName":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/events/1", `{"eventName":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestDelete(t *testing.T) {
	h, _ := newTestRouter(t)
	do(t, h, http.MethodPost, "/events", `{"eventName":"Standup"}`)

	rec := do(t, h, http.MethodDelete, "/events/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/events/1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/events/1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 on second delete, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/events/abc", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for non-numeric id, got %d", rec.Code)
	}

	// Ids are never reused.
	rec = do(t, h, http.MethodPost, "/events", `{"eventName":"Retro"}`)
	if !strings.Contains(rec.Body.String(), `"id":2`) {
		t.Fatalf("expected id 2, got %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _ := newTestRouter(t)
	if rec := do(t, h, http.MethodPut, "/events", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestSnapshotsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.sqlite3")

	snaps, err := OpenSnapshots(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := snaps.LoadOrCreate(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Create(Fields{EventName: "Standup", StartDate: "2024-01-01", EndDate: "2024-01-01"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	changed, err := snaps.Backup(ctx, c)
	if err != nil || !changed {
		t.Fatalf("expected backup to write, got %v %v", changed, err)
	}
	changed, err = snaps.Backup(ctx, c)
	if err != nil || changed {
		t.Fatalf("expected unchanged backup to be skipped, got %v %v", changed, err)
	}
	if err := snaps.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snaps, err = OpenSnapshots(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer snaps.Close()
	reloaded, err := snaps.LoadOrCreate(ctx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := reloaded.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].EventName != "Standup" {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestEmptyPatchLeavesHistoryAlone(t *testing.T) {
	h, c := newTestRouter(t)
	do(t, h, http.MethodPost, "/events", `{"eventName":"Standup","startDate":"2024-01-01","endDate":"2024-01-01"}`)

	doc, err := c.Fork()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, err := doc.Changes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := do(t, h, http.MethodPatch, "/events/1", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var record Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("unexpected body: %v", err)
	}
	if record.EventName != "Standup" || record.StartDate != "2024-01-01" {
		t.Fatalf("unexpected record %+v", record)
	}

	doc, err = c.Fork()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, err := doc.Changes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("expected no new change, had %d now %d", len(before), len(after))
	}

	if rec := do(t, h, http.MethodPatch, "/events/9", `{}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for an unknown id, got %d", rec.Code)
	}
}
