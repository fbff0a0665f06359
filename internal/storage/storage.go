// Package storage holds the optional downstream sinks that consume the
// Supervisor's item stream (spec.md §1 "out of scope... the domain schema
// of items" remains true here too: sinks persist the opaque bytes, only
// Mongo needs to decode them into a document shape to insert). Grounded on
// the teacher's internal/storage package (MongoStorage, JSON/JSONL/CSV file
// backends, MultiStorage fan-out), adapted from batches of *types.Item
// (named struct fields) to batches of opaque types.Item ([]byte).
package storage

import "github.com/opentender/tendersync/internal/types"

// Storage is the interface for all downstream sink backends.
type Storage interface {
	Store(items []types.Item) error
	Close() error
	Name() string
}
