package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/opentender/tendersync/internal/types"
)

// JSONStorage writes items as a JSON array to a file, buffering in memory
// until Close.
type JSONStorage struct {
	path   string
	items  []json.RawMessage
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &JSONStorage{path: outputPath, logger: logger.With("component", "json_storage")}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(items []types.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items = append(s.items, json.RawMessage(item))
	}
	s.logger.Debug("items buffered", "count", len(items), "total", len(s.items))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.items); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	s.logger.Info("JSON written", "path", s.path, "items", len(s.items))
	return nil
}

// JSONLStorage writes items as newline-delimited JSON, one opaque record
// per line, streamed as they arrive.
type JSONLStorage struct {
	path   string
	file   *os.File
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewJSONLStorage creates a new JSONL file storage.
func NewJSONLStorage(outputPath string, logger *slog.Logger) (*JSONLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &JSONLStorage{path: outputPath, file: f, logger: logger.With("component", "jsonl_storage")}, nil
}

func (s *JSONLStorage) Name() string { return "jsonl" }

func (s *JSONLStorage) Store(items []types.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, err := s.file.Write(item); err != nil {
			return fmt.Errorf("write jsonl record: %w", err)
		}
		if _, err := s.file.Write([]byte("\n")); err != nil {
			return fmt.Errorf("write jsonl newline: %w", err)
		}
		s.count++
	}
	return nil
}

func (s *JSONLStorage) Close() error {
	s.logger.Info("JSONL written", "path", s.path, "items", s.count)
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// CSVStorage writes one row per item: an id extracted via gjson (best
// effort, since the item schema is opaque) plus the full raw record.
// Grounded on the teacher's CSVStorage, which flattened a structured
// field map into header columns — not meaningful here since the record
// shape is unknown, so this keeps only the two columns any record can
// always supply.
type CSVStorage struct {
	path    string
	file    *os.File
	writer  *csv.Writer
	idPath  string
	wroteHdr bool
	mu      sync.Mutex
	count   int
	logger  *slog.Logger
}

// NewCSVStorage creates a new CSV file storage. idPath is the gjson path
// used to populate the "id" column (e.g. "id" or "data.id").
func NewCSVStorage(outputPath, idPath string, logger *slog.Logger) (*CSVStorage, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: csv.NewWriter(f),
		idPath: idPath,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(items []types.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.wroteHdr {
		if err := s.writer.Write([]string{"id", "raw"}); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		s.wroteHdr = true
	}

	for _, item := range items {
		id := gjson.GetBytes(item, s.idPath).String()
		if err := s.writer.Write([]string{id, string(item)}); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.logger.Info("CSV written", "path", s.path, "items", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// NewFileStorage creates the appropriate file-based storage by type.
func NewFileStorage(storageType, outputDir, idPath string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "json":
		return NewJSONStorage(filepath.Join(outputDir, "results.json"), logger)
	case "jsonl":
		return NewJSONLStorage(filepath.Join(outputDir, "results.jsonl"), logger)
	case "csv":
		return NewCSVStorage(filepath.Join(outputDir, "results.csv"), idPath, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
