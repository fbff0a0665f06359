// Package retry implements the RetryLoop described in spec.md §4.2: the
// policy that turns a Fetcher's FetchOutcome variants into either a Page or
// a fatal error, applying a distinct backoff per outcome kind. Grounded on
// the cancellable exponential-backoff sleep in the JailtonJunior94 devkit-go
// retry transport (other_examples), adapted from an http.RoundTripper's
// attempt-count loop into a policy keyed on outcome kind rather than a flat
// attempt counter — each kind here has its own cap and some (Precondition,
// ResourceNotFound) never back off at all.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/opentender/tendersync/internal/fetcher"
	"github.com/opentender/tendersync/internal/session"
	"github.com/opentender/tendersync/internal/types"
)

// Per-kind backoff caps and starting interval (spec.md §4.2: "start 0.2 s,
// ×2 each attempt, cap before raise").
const (
	connectionErrorCap = 300 * time.Second
	rateLimitedCap     = 120 * time.Second
	otherCap           = 300 * time.Second
	baseBackoff        = 200 * time.Millisecond
)

// Loop drives one Fetcher.Fetch call to completion, retrying according to
// the outcome kind until it yields a Page or a Fatal error. A Loop is
// shared by both the backward and forward retrievers of one generation, so
// rng is guarded by mu: math/rand.Rand is not safe for concurrent use.
type Loop struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Loop around fetcher f.
func New(f fetcher.Fetcher, logger *slog.Logger) *Loop {
	return &Loop{
		fetcher: f,
		logger:  logger.With("component", "retry_loop"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetPage fetches one page, retrying transient outcomes in place. It
// mutates params.Offset via ClearOffset when the upstream reports the
// cursor unknown (spec.md §4.2 "ResourceNotFound"), and clears sess's
// tracked affinity in the same case since a lost cursor on this feed means
// the pinned backend no longer recognizes us.
func (l *Loop) GetPage(ctx context.Context, sess *session.Session, params *types.FetchParams, apiHost string) (*types.Page, error) {
	// Backoff state is local to one call (spec.md §4.2): every call to
	// GetPage starts its shared interval at 0.2s, regardless of which
	// retryable outcome kind grows it.
	interval := baseBackoff

	for {
		outcome := l.fetcher.Fetch(ctx, sess, params)
		switch outcome.Kind {
		case types.OutcomeOK:
			return outcome.Page, nil

		case types.OutcomePreconditionFailed:
			l.logger.Debug("precondition failed, retrying immediately", "err", outcome.Err)
			if !l.sleepWithContext(ctx, 0) {
				return nil, ctx.Err()
			}
			continue

		case types.OutcomeResourceNotFound:
			l.logger.Warn("cursor not found upstream, clearing offset and session", "err", outcome.Err)
			params.ClearOffset()
			if host, err := url.Parse(apiHost); err == nil {
				sess.Clear(host)
			}
			continue

		case types.OutcomeRateLimited:
			d, ok := l.advanceBackoff(&interval, rateLimitedCap)
			if !ok {
				return nil, fmt.Errorf("%w: rate limited beyond %s: %v", types.ErrBackoffExceeded, rateLimitedCap, outcome.Err)
			}
			l.logger.Warn("rate limited, backing off", "sleep", d, "err", outcome.Err)
			if !l.sleepWithContext(ctx, d) {
				return nil, ctx.Err()
			}
			continue

		case types.OutcomeConnectionError:
			d, ok := l.advanceBackoff(&interval, connectionErrorCap)
			if !ok {
				return nil, fmt.Errorf("%w: connection error beyond %s: %v", types.ErrBackoffExceeded, connectionErrorCap, outcome.Err)
			}
			l.logger.Warn("connection error, backing off", "sleep", d, "err", outcome.Err)
			if !l.sleepWithContext(ctx, d) {
				return nil, ctx.Err()
			}
			continue

		case types.OutcomeOther:
			d, ok := l.advanceBackoff(&interval, otherCap)
			if !ok {
				return nil, fmt.Errorf("%w: transient error beyond %s: %v", types.ErrBackoffExceeded, otherCap, outcome.Err)
			}
			l.logger.Warn("transient error, backing off", "sleep", d, "err", outcome.Err)
			if !l.sleepWithContext(ctx, d) {
				return nil, ctx.Err()
			}
			continue

		case types.OutcomeRequestFailed:
			// Resolved per spec.md §9 open question: any non-429 non-2xx
			// status is unrecoverable rather than retried forever.
			return nil, fmt.Errorf("%w: status %d: %v", types.ErrRequestFailed, outcome.StatusCode, outcome.Err)

		default:
			return nil, fmt.Errorf("retry loop: unknown outcome kind %v", outcome.Kind)
		}
	}
}

// advanceBackoff implements spec.md §4.2's "cap before raise": if interval
// already exceeds cap, the caller is Fatal and must stop retrying.
// Otherwise interval doubles and a full-jitter sleep duration derived from
// the doubled interval is returned.
func (l *Loop) advanceBackoff(interval *time.Duration, cap time.Duration) (time.Duration, bool) {
	if *interval > cap {
		return 0, false
	}
	*interval *= 2
	return l.jitter(*interval), true
}

// jitter returns a uniformly random duration in [0, d), guarding the shared
// rng since one Loop's backoff is called from both retriever goroutines.
func (l *Loop) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.rng.Int63n(int64(d)))
}

// sleepWithContext sleeps for d or returns early if ctx is done.
func (l *Loop) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
