package types

import "errors"

// Sentinel errors surfaced at package boundaries. Wrap with fmt.Errorf
// ("...: %w", ErrX) at each layer so callers can errors.Is through them.
var (
	// ErrSessionMismatch is returned when a retriever's cookie snapshot no
	// longer agrees with the shared Session — the load balancer handed a
	// request to a different backend than the rest of the sync held
	// affinity with (spec.md §4.5 "LB Server mismatch").
	ErrSessionMismatch = errors.New("session diverged from load balancer affinity")

	// ErrQueueClosed is returned by Queue.Put once Close has run (Queue.Get
	// reports a closed, drained queue with ok=false instead).
	ErrQueueClosed = errors.New("queue closed")

	// ErrCursorLost marks a ResourceNotFound outcome whose retriever has no
	// offset left to fall back to.
	ErrCursorLost = errors.New("cursor lost and no prior offset to resume from")

	// ErrRequestFailed marks a non-429 non-2xx response the retry policy
	// has resolved as Fatal (spec.md §9 open question).
	ErrRequestFailed = errors.New("request failed with unrecoverable status")

	// ErrBackoffExceeded marks a RateLimited/ConnectionError/Other outcome
	// whose backoff interval crossed its per-kind cap (spec.md §4.2 "raise
	// on exceeding cap") — Fatal to the retriever.
	ErrBackoffExceeded = errors.New("backoff interval exceeded its cap")
)
