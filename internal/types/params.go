package types

import (
	"net/url"
	"strconv"
)

// FeedChanges is the only feed name the upstream registry exposes today,
// carried as a field rather than a constant string so RetryLoop and
// Fetcher never hardcode it (spec.md §3).
const FeedChanges = "changes"

// FetchParams is the per-request query description of spec.md §3.
// extra is caller-supplied and merged verbatim into the query string.
type FetchParams struct {
	Offset     Cursor
	Descending bool
	Feed       string
	Limit      int
	Extra      map[string]string

	// HasOffset distinguishes "no offset yet" from Cursor(""), which the
	// upstream feed can legitimately hand back as a next_page.offset.
	HasOffset bool
}

// NewBackwardParams builds the initial params for the history-walking
// retriever: descending=true plus the caller's extras (spec.md §4.3).
func NewBackwardParams(extra map[string]string) *FetchParams {
	return &FetchParams{
		Descending: true,
		Feed:       FeedChanges,
		Extra:      cloneExtra(extra),
	}
}

// NewForwardParams builds the initial params for the tailing retriever
// (spec.md §4.4).
func NewForwardParams(extra map[string]string) *FetchParams {
	return &FetchParams{
		Feed:  FeedChanges,
		Extra: cloneExtra(extra),
	}
}

// SetOffset advances the cursor — the only mutation spec.md I1 permits.
func (p *FetchParams) SetOffset(c Cursor) {
	p.Offset = c
	p.HasOffset = true
}

// ClearOffset drops the offset, forcing the next fetch to start fresh.
// Used by RetryLoop on ResourceNotFound (spec.md §4.2).
func (p *FetchParams) ClearOffset() {
	p.Offset = ""
	p.HasOffset = false
}

// Clone returns a deep copy whose Offset and Extra can be changed without
// affecting p. RetryLoop does not clone: it mutates the params it is given.
func (p *FetchParams) Clone() *FetchParams {
	clone := *p
	clone.Extra = cloneExtra(p.Extra)
	return &clone
}

// QueryValues renders the params as the query string described in
// spec.md §6: feed, descending, offset, limit, plus the extras verbatim.
func (p *FetchParams) QueryValues(key string) url.Values {
	v := url.Values{}
	v.Set("feed", p.Feed)
	if p.Descending {
		v.Set("descending", "1")
	}
	if p.HasOffset {
		v.Set("offset", string(p.Offset))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	for k, val := range p.Extra {
		v.Set(k, val)
	}
	if key != "" {
		v.Set("key", key)
	}
	return v
}

func cloneExtra(extra map[string]string) map[string]string {
	clone := make(map[string]string, len(extra))
	for k, v := range extra {
		clone[k] = v
	}
	return clone
}
