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

// Backward drains historical items from the seed cursor back to the feed's
// epoch, then finishes (spec.md §4.3).
type Backward struct {
	Info

	loop         *retry.Loop
	sess         *session.Session
	queue        *queue.Queue
	params       *types.FetchParams
	apiHost      string
	sleep        time.Duration
	lastAffinity session.Affinity
	logger       *slog.Logger
}

// NewBackward builds a Backward retriever seeded with the initial offset.
func NewBackward(loop *retry.Loop, sess *session.Session, q *queue.Queue, params *types.FetchParams, apiHost string, sleep time.Duration, logger *slog.Logger) *Backward {
	return &Backward{
		loop:    loop,
		sess:    sess,
		queue:   q,
		params:  params,
		apiHost: apiHost,
		sleep:   sleep,
		logger:  logFields(logger, "backward"),
	}
}

// Run executes the state machine of spec.md §4.3 until a clean finish, a
// fault, or ctx cancellation.
func (b *Backward) Run(ctx context.Context) Termination {
	b.setStatus(StatusInitialized)

	for {
		if ctx.Err() != nil {
			return cancelledTermination(ctx.Err())
		}

		b.setStatus(StatusProcessRequest)
		page, err := b.loop.GetPage(ctx, b.sess, b.params, b.apiHost)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return cancelledTermination(err)
			}
			b.setStatus(StatusBroken)
			return faultTermination(err)
		}
		b.recordResponse(time.Now())

		updated, ok := b.sess.CheckAffinity(b.lastAffinity)
		if !ok {
			b.setStatus(StatusBroken)
			return faultTermination(fmt.Errorf("%w", types.ErrSessionMismatch))
		}
		b.lastAffinity = updated

		if page.Empty() {
			b.setStatus(StatusFinished)
			b.logger.Info("backward retriever reached epoch")
			return cleanTermination()
		}

		b.setStatus(StatusProcessData)
		for _, item := range page.Items {
			if err := b.queue.Put(ctx, item); err != nil {
				if errors.Is(err, context.Canceled) {
					return cancelledTermination(err)
				}
				return faultTermination(err)
			}
		}

		b.params.SetOffset(page.NextOffset)

		b.setStatus(StatusSleep)
		if !sleepWithContext(ctx, b.sleep) {
			return cancelledTermination(ctx.Err())
		}
	}
}
