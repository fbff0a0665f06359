package fetcher

import (
	"context"

	"github.com/opentender/tendersync/internal/session"
	"github.com/opentender/tendersync/internal/types"
)

// Fetcher retrieves one page of the changes feed. Grounded on the teacher's
// internal/fetcher.Fetcher interface, narrowed to the single operation this
// domain needs and widened to return a FetchOutcome variant instead of
// (*Response, error) — RetryLoop branches on outcome kind, not on Go error
// chains, at this boundary (spec.md §4.1).
type Fetcher interface {
	Fetch(ctx context.Context, sess *session.Session, params *types.FetchParams) types.FetchOutcome
	Close() error
}
