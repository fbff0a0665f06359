// Package retriever implements the two retriever state machines of
// spec.md §4.3/§4.4: BackwardRetriever drains history to the epoch and
// terminates; ForwardRetriever tails live changes forever. Both share one
// retry.Loop-driven fetch step and one Queue, differing only in direction,
// termination, and (forward only) adaptive idle sleep.
package retriever

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Status is the per-retriever observable state of spec.md §3 RetrieverInfo.
type Status int32

const (
	StatusInitialized Status = iota
	StatusProcessRequest
	StatusProcessData
	StatusSleep
	StatusFinished
	StatusBroken
)

func (s Status) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusProcessRequest:
		return "process_request"
	case StatusProcessData:
		return "process_data"
	case StatusSleep:
		return "sleep"
	case StatusFinished:
		return "finished"
	case StatusBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Info is the observable state the Supervisor and MetricsPump read while a
// retriever runs, safe for concurrent access via atomics.
type Info struct {
	status           atomic.Int32
	lastResponseUnix atomic.Int64
}

func (i *Info) setStatus(s Status) { i.status.Store(int32(s)) }

// Status returns the retriever's current state.
func (i *Info) Status() Status { return Status(i.status.Load()) }

// recordResponse stamps the time of the most recent completed fetch.
func (i *Info) recordResponse(now time.Time) { i.lastResponseUnix.Store(now.Unix()) }

// LastResponse returns the time of the most recent completed fetch, or the
// zero Time if none has completed yet.
func (i *Info) LastResponse() time.Time {
	u := i.lastResponseUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

// TerminationKind distinguishes why a retriever's run loop returned
// (spec.md §4.3 "Termination value").
type TerminationKind int

const (
	// Clean means the backward retriever saw an empty page and finished
	// the way it is supposed to.
	Clean TerminationKind = iota
	// Fault means the retry loop returned a Fatal error, or the Session
	// invariant was violated — the Supervisor must restart the pair.
	Fault
	// Cancelled means the run loop stopped because its context was
	// cancelled — expected during restart_sync, not itself a fault.
	Cancelled
)

// Termination is what a retriever's run method returns when it stops.
type Termination struct {
	Kind   TerminationKind
	Reason error
}

func cleanTermination() Termination { return Termination{Kind: Clean} }

func faultTermination(reason error) Termination {
	return Termination{Kind: Fault, Reason: reason}
}

func cancelledTermination(reason error) Termination {
	return Termination{Kind: Cancelled, Reason: reason}
}

func logFields(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("retriever", name)
}

// sleepWithContext sleeps for d, returning false early if ctx is cancelled
// first — the promptly-preemptible inter-request sleep spec.md §5 requires.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
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
