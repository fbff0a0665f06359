// Package pipeline is an ambient, optional transform hook: a chain of
// middleware the CLI's sync loop runs each opaque item through after taking
// it from the Supervisor's Items and before handing it to storage; the
// Supervisor itself never calls it (spec.md §1 "the domain schema
// of items... treated as opaque records" — this package never unmarshals
// into a typed struct, only inspects raw JSON via gjson or raw bytes via
// regex, preserving that opacity). Grounded on the teacher's
// internal/pipeline.Pipeline chain-of-middleware shape, narrowed from
// field-level transforms (which assumed a structured, named-field item) to
// the subset that makes sense against an opaque byte blob.
package pipeline

import (
	"log/slog"

	"github.com/opentender/tendersync/internal/types"
)

// Middleware processes an item and returns the (possibly modified) item.
// Return nil to drop the item from the pipeline.
type Middleware interface {
	Name() string
	Process(item types.Item) (types.Item, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{logger: logger.With("component", "pipeline")}
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the item through all middleware in order. A nil result with
// a nil error means the item was intentionally dropped.
func (p *Pipeline) Process(item types.Item) (types.Item, error) {
	current := item
	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &StageError{Stage: mw.Name(), Err: err}
		}
		if result == nil {
			p.logger.Debug("item dropped", "stage", mw.Name())
			return nil, nil
		}
		current = result
	}
	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int { return len(p.middlewares) }

// StageError wraps a middleware failure with the stage name that produced
// it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }
