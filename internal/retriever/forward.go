package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opentender/tendersync/internal/queue"
	"github.com/opentender/tendersync/internal/retry"
	"github.com/opentender/tendersync/internal/session"
	"github.com/opentender/tendersync/internal/types"
)

// Forward tails the changes feed forever, adapting its idle sleep between
// empty polls (spec.md §4.4). It never finishes cleanly — only by fault or
// context cancellation.
type Forward struct {
	Info

	loop    *retry.Loop
	sess    *session.Session
	queue   *queue.Queue
	params  *types.FetchParams
	apiHost string

	requestsSleep time.Duration
	waitSleep     time.Duration
	waitSleepMin  time.Duration
	adaptive      bool

	lastAffinity session.Affinity
	logger       *slog.Logger
}

// NewForward builds a Forward retriever seeded with the initial offset
// (prev_offset of the seed page, per spec.md §4.6).
func NewForward(loop *retry.Loop, sess *session.Session, q *queue.Queue, params *types.FetchParams, apiHost string, requestsSleep, waitSleep, waitSleepMin time.Duration, adaptive bool, logger *slog.Logger) *Forward {
	return &Forward{
		loop:          loop,
		sess:          sess,
		queue:         q,
		params:        params,
		apiHost:       apiHost,
		requestsSleep: requestsSleep,
		waitSleep:     waitSleep,
		waitSleepMin:  waitSleepMin,
		adaptive:      adaptive,
		logger:        logFields(logger, "forward"),
	}
}

// WaitSleep returns the retriever's current adaptive idle sleep, for the
// MetricsPump's forward_up_wait_sleep gauge (spec.md §4.7).
func (f *Forward) WaitSleep() time.Duration { return f.waitSleep }

// Run executes the state machine of spec.md §4.4 until a fault or ctx
// cancellation; it never returns Clean.
func (f *Forward) Run(ctx context.Context) Termination {
	f.setStatus(StatusInitialized)

	page, err := f.fetchOne(ctx)
	if err != nil {
		return f.terminationFor(err)
	}

	for {
		if ctx.Err() != nil {
			return cancelledTermination(ctx.Err())
		}

		for !page.Empty() {
			f.setStatus(StatusProcessData)
			for _, item := range page.Items {
				if perr := f.queue.Put(ctx, item); perr != nil {
					return f.terminationFor(perr)
				}
			}
			f.params.SetOffset(page.NextOffset)

			f.setStatus(StatusSleep)
			if !sleepWithContext(ctx, f.requestsSleep) {
				return cancelledTermination(ctx.Err())
			}

			page, err = f.fetchOne(ctx)
			if err != nil {
				return f.terminationFor(err)
			}
		}

		// Empty page reached: idle-sleep, advance the cursor to the
		// server's next_offset (it may equal the previous one), fetch
		// again, and adapt the idle sleep to that result (spec.md §4.4
		// steps 3-5). The resulting page feeds straight back into the
		// drain loop above — no separate fetch is wasted.
		f.setStatus(StatusSleep)
		if !sleepWithContext(ctx, f.waitSleep) {
			return cancelledTermination(ctx.Err())
		}

		f.params.SetOffset(page.NextOffset)

		page, err = f.fetchOne(ctx)
		if err != nil {
			return f.terminationFor(err)
		}

		if f.adaptive {
			f.tuneWaitSleep(page)
		}
	}
}

// terminationFor classifies an error from GetPage or Queue.Put into the
// Termination the Supervisor expects.
func (f *Forward) terminationFor(err error) Termination {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cancelledTermination(err)
	}
	f.setStatus(StatusBroken)
	return faultTermination(err)
}

// fetchOne performs one PROCESS_REQUEST step: fetch, then check the
// session affinity invariant (spec.md §4.4 step 1).
func (f *Forward) fetchOne(ctx context.Context) (*types.Page, error) {
	f.setStatus(StatusProcessRequest)
	page, err := f.loop.GetPage(ctx, f.sess, f.params, f.apiHost)
	if err != nil {
		return nil, err
	}
	f.recordResponse(time.Now())

	updated, ok := f.sess.CheckAffinity(f.lastAffinity)
	if !ok {
		return nil, fmt.Errorf("%w", types.ErrSessionMismatch)
	}
	f.lastAffinity = updated

	return page, nil
}

// tuneWaitSleep adjusts the idle sleep by ±1s bounded to
// [waitSleepMin, 30s] (spec.md §4.4 step 5).
func (f *Forward) tuneWaitSleep(page *types.Page) {
	const maxWaitSleep = 30 * time.Second
	if page.Empty() {
		f.waitSleep += time.Second
	} else {
		f.waitSleep -= time.Second
	}
	if f.waitSleep < f.waitSleepMin {
		f.waitSleep = f.waitSleepMin
	}
	if f.waitSleep > maxWaitSleep {
		f.waitSleep = maxWaitSleep
	}
}
