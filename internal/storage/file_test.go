package storage

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opentender/tendersync/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestJSONStorageWritesArrayOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	s, err := NewJSONStorage(path, testLogger())
	if err != nil {
		t.Fatalf("NewJSONStorage: %v", err)
	}
	if err := s.Store([]types.Item{types.Item(`{"id":"1"}`), types.Item(`{"id":"2"}`)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 items in output array, got %d", len(decoded))
	}
}

func TestJSONLStorageWritesOneLinePerItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")

	s, err := NewJSONLStorage(path, testLogger())
	if err != nil {
		t.Fatalf("NewJSONLStorage: %v", err)
	}
	if err := s.Store([]types.Item{types.Item(`{"id":"1"}`)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Store([]types.Item{types.Item(`{"id":"2"}`)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}
	if lines[0] != `{"id":"1"}` || lines[1] != `{"id":"2"}` {
		t.Errorf("unexpected jsonl content: %v", lines)
	}
}

func TestCSVStorageExtractsIDColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	s, err := NewCSVStorage(path, "id", testLogger())
	if err != nil {
		t.Fatalf("NewCSVStorage: %v", err)
	}
	if err := s.Store([]types.Item{types.Item(`{"id":"abc-1"}`)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "id,raw") {
		t.Errorf("expected header row, got %q", content)
	}
	if !strings.Contains(content, "abc-1") {
		t.Errorf("expected extracted id abc-1 in output, got %q", content)
	}
}

func TestCSVStorageMissingIDPathYieldsEmptyColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	s, err := NewCSVStorage(path, "nested.id", testLogger())
	if err != nil {
		t.Fatalf("NewCSVStorage: %v", err)
	}
	if err := s.Store([]types.Item{types.Item(`{"id":"abc-1"}`)}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %v", lines)
	}
	if !strings.HasPrefix(lines[1], ",") {
		t.Errorf("expected an empty id column when the gjson path misses, got %q", lines[1])
	}
}

func TestNewFileStorageDispatchesByType(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"json":  "results.json",
		"jsonl": "results.jsonl",
		"csv":   "results.csv",
	}
	for typ, wantFile := range cases {
		s, err := NewFileStorage(typ, dir, "id", testLogger())
		if err != nil {
			t.Fatalf("NewFileStorage(%q): %v", typ, err)
		}
		if s.Name() == "" {
			t.Errorf("expected a non-empty storage name for %q", typ)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, wantFile)); err != nil {
			t.Errorf("expected output file %s to exist: %v", wantFile, err)
		}
	}
}

func TestNewFileStorageUnsupportedType(t *testing.T) {
	if _, err := NewFileStorage("xml", t.TempDir(), "id", testLogger()); err == nil {
		t.Fatal("expected an error for an unsupported storage type")
	}
}

// fakeStorage is an in-memory Storage used to test MultiStorage's fan-out
// and error-aggregation behavior without touching the filesystem or Mongo.
type fakeStorage struct {
	name      string
	storeErr  error
	closeErr  error
	stored    []types.Item
	closed    bool
}

func (f *fakeStorage) Name() string { return f.name }

func (f *fakeStorage) Store(items []types.Item) error {
	f.stored = append(f.stored, items...)
	return f.storeErr
}

func (f *fakeStorage) Close() error {
	f.closed = true
	return f.closeErr
}

func TestMultiStorageFansOutToAllBackends(t *testing.T) {
	a := &fakeStorage{name: "a"}
	b := &fakeStorage{name: "b"}
	m := NewMultiStorage([]Storage{a, b}, testLogger())

	items := []types.Item{types.Item(`{"id":"1"}`)}
	if err := m.Store(items); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if len(a.stored) != 1 || len(b.stored) != 1 {
		t.Errorf("expected both backends to receive the batch, got a=%d b=%d", len(a.stored), len(b.stored))
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected both backends closed")
	}
}

func TestMultiStorageReturnsFirstStoreError(t *testing.T) {
	boom := os.ErrInvalid
	a := &fakeStorage{name: "a", storeErr: boom}
	b := &fakeStorage{name: "b"}
	m := NewMultiStorage([]Storage{a, b}, testLogger())

	err := m.Store([]types.Item{types.Item(`{}`)})
	if err != boom {
		t.Fatalf("expected the first backend's error surfaced, got %v", err)
	}
	if len(b.stored) != 1 {
		t.Error("expected the second backend to still receive the batch despite the first failing")
	}
}
