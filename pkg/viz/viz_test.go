package viz

import (
	"bytes"
	"strings"
	"testing"

	"github.com/automerge/automerge-go"
)

func TestLabelAt(t *testing.T) {
	doc := automerge.New()
	if got, _ := labelAt(doc, []interface{}{"events"}); got != "null" {
		t.Fatalf("expected null for a missing path, got %q", got)
	}
	if err := doc.Path("events", "1").Set(map[string]interface{}{"eventName": "Standup"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, err := labelAt(doc, []interface{}{"events"}); err != nil || got != `["1"]` {
		t.Fatalf("expected map keys, got %q %v", got, err)
	}
	if got, err := labelAt(doc, []interface{}{"events", "1", "eventName"}); err != nil || got != `"Standup"` {
		t.Fatalf("expected scalar value, got %q %v", got, err)
	}
}

func TestRenderHistory(t *testing.T) {
	doc := automerge.New()
	if err := doc.Path("events").Set(map[string]interface{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := doc.Commit("init"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := doc.Path("events", "1").Set(map[string]interface{}{"eventName": "Standup"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := doc.Commit("create 1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buff bytes.Buffer
	if err := RenderHistory(doc, []interface{}{"events"}, &buff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buff.String(), "<svg") {
		t.Fatalf("expected svg output, got %q", buff.String())
	}
}
