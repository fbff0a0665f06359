package types

import "fmt"

// OutcomeKind tags the variant a FetchOutcome carries (spec.md §4.1).
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomePreconditionFailed
	OutcomeResourceNotFound
	OutcomeRateLimited
	OutcomeRequestFailed
	OutcomeConnectionError
	OutcomeOther
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomePreconditionFailed:
		return "precondition_failed"
	case OutcomeResourceNotFound:
		return "resource_not_found"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRequestFailed:
		return "request_failed"
	case OutcomeConnectionError:
		return "connection_error"
	case OutcomeOther:
		return "other"
	default:
		return "unknown"
	}
}

// FetchOutcome is the tagged sum Fetcher.Fetch returns — a variant rather
// than an exception on the hot path (spec.md §9 "Variant returns").
type FetchOutcome struct {
	Kind       OutcomeKind
	Page       *Page
	StatusCode int
	Err        error
}

func (o FetchOutcome) Error() string {
	if o.Kind == OutcomeOK {
		return ""
	}
	if o.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %v", o.Kind, o.StatusCode, o.Err)
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}

func (o FetchOutcome) Unwrap() error { return o.Err }

// OK builds a successful outcome.
func OK(page *Page) FetchOutcome { return FetchOutcome{Kind: OutcomeOK, Page: page} }

// PreconditionFailed builds the "upstream refused current state" outcome.
func PreconditionFailed(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomePreconditionFailed, Err: err}
}

// ResourceNotFound builds the "upstream lost the cursor" outcome.
func ResourceNotFound(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeResourceNotFound, Err: err}
}

// RateLimited builds the HTTP 429 outcome.
func RateLimited(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeRateLimited, StatusCode: 429, Err: err}
}

// RequestFailed builds the "any other non-2xx status" outcome.
func RequestFailed(status int, err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeRequestFailed, StatusCode: status, Err: err}
}

// ConnectionError builds the transport-level failure outcome.
func ConnectionError(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeConnectionError, Err: err}
}

// Other builds the catch-all outcome.
func Other(err error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeOther, Err: err}
}
