package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/opentender/tendersync/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineDropStopsChain(t *testing.T) {
	p := New(testLogger)
	p.Use(&RequiredFieldsMiddleware{Paths: []string{"id"}})
	p.Use(NewDedupMiddleware("id"))

	item := types.Item(`{"title":"no id field"}`)
	result, err := p.Process(item)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result != nil {
		t.Error("item missing id should be dropped (nil result)")
	}
}

func TestPipelineStageErrorWraps(t *testing.T) {
	p := New(testLogger)
	p.Use(&failingMiddleware{})

	_, err := p.Process(types.Item(`{"id":"1"}`))
	if err == nil {
		t.Fatal("expected error from failing middleware")
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %T", err)
	}
	if stageErr.Stage != "boom" {
		t.Errorf("expected stage %q, got %q", "boom", stageErr.Stage)
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{Paths: []string{"id"}}

	result, err := m.Process(types.Item(`{"id":"1","title":"Hello"}`))
	if err != nil || result == nil {
		t.Error("item with required field should pass")
	}

	result, err = m.Process(types.Item(`{"title":"no id"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Error("item missing required field should be dropped (nil)")
	}
}

func TestRequiredFieldsMiddlewareNestedPath(t *testing.T) {
	m := &RequiredFieldsMiddleware{Paths: []string{"data.id"}}

	result, err := m.Process(types.Item(`{"data":{"id":"1"}}`))
	if err != nil || result == nil {
		t.Error("item with nested required field should pass")
	}
}

func TestPIIRedactMiddleware(t *testing.T) {
	m := NewPIIRedactMiddleware(testLogger)

	item := types.Item(`{"text":"Contact john@example.com or call +1 555 123 4567"}`)
	result, err := m.Process(item)
	if err != nil {
		t.Fatalf("error: %v", err)
	}

	text := string(result)
	if strings.Contains(text, "john@example.com") {
		t.Error("email should be redacted")
	}
	if !strings.Contains(text, "[REDACTED_EMAIL]") {
		t.Error("expected [REDACTED_EMAIL] placeholder")
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware("id")

	result, err := m.Process(types.Item(`{"id":"tender-1","title":"Hello"}`))
	if err != nil || result == nil {
		t.Fatal("first item should pass dedup")
	}

	result, _ = m.Process(types.Item(`{"id":"tender-1","title":"Hello Again"}`))
	if result != nil {
		t.Error("duplicate id should be dropped (nil result)")
	}

	result, err = m.Process(types.Item(`{"id":"tender-2","title":"Different"}`))
	if err != nil || result == nil {
		t.Fatal("different id should pass dedup")
	}
}

func TestDedupMiddlewareMissingKeyPassesThrough(t *testing.T) {
	m := NewDedupMiddleware("id")

	result, err := m.Process(types.Item(`{"title":"no id at all"}`))
	if err != nil || result == nil {
		t.Fatal("item without the dedup key should not be dropped")
	}
}

type failingMiddleware struct{}

func (m *failingMiddleware) Name() string { return "boom" }
func (m *failingMiddleware) Process(item types.Item) (types.Item, error) {
	return nil, errBoom
}

var errBoom = errors.New("boom stage failed")

func BenchmarkPipeline(b *testing.B) {
	p := New(testLogger)
	p.Use(&RequiredFieldsMiddleware{Paths: []string{"id"}})
	p.Use(NewDedupMiddleware("id"))
	p.Use(NewPIIRedactMiddleware(testLogger))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		item := types.Item(`{"id":"bench","title":"Hello World","body":"Content"}`)
		p.Process(item)
	}
}
