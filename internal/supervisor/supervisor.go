// Package supervisor implements spec.md §4.6: seed the two cursors with one
// synchronous fetch, spawn the backward and forward retrievers sharing one
// Session, detect fault or unexpected completion, restart the pair, and
// expose the merged item stream to a caller. Grounded on the supervision
// loop shape of the teacher's internal/engine.Engine (ticker-driven health
// checks, atomic state, Start/Wait/Stop) and internal/distributed's
// MonitorNodes health-check loop, adapted from a dynamic worker pool over a
// URL frontier into the spec's fixed two-retriever topology.
package supervisor

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/opentender/tendersync/internal/config"
	"github.com/opentender/tendersync/internal/fetcher"
	"github.com/opentender/tendersync/internal/observability"
	"github.com/opentender/tendersync/internal/queue"
	"github.com/opentender/tendersync/internal/retriever"
	"github.com/opentender/tendersync/internal/retry"
	"github.com/opentender/tendersync/internal/session"
	"github.com/opentender/tendersync/internal/types"
)

// generation bundles everything torn down and rebuilt together on restart:
// one Session, one pair of retrievers, one cancellation scope.
type generation struct {
	cancel   context.CancelFunc
	done     chan struct{}
	backward *retriever.Backward
	forward  *retriever.Forward
	sess     *session.Session

	mu             sync.Mutex
	backwardTerm   *retriever.Termination
	forwardTerm    *retriever.Termination
	backwardDone   bool
	forwardDone    bool
	checkBackward  bool
}

// Supervisor owns the fetcher, the queue, and the current generation of
// retrievers, restarting them as faults are detected.
type Supervisor struct {
	cfg        *config.Config
	newFetcher func() (fetcher.Fetcher, error)
	queue      *queue.Queue
	logger     *slog.Logger
	counters   *observability.Counters

	mu  sync.Mutex
	gen *generation
}

// New builds a Supervisor. newFetcher constructs a fresh Fetcher for each
// generation (restart builds new clients, per spec.md §4.6). counters may
// be nil, in which case restarts and faults simply go unrecorded.
func New(cfg *config.Config, newFetcher func() (fetcher.Fetcher, error), logger *slog.Logger, counters *observability.Counters) *Supervisor {
	return &Supervisor{
		cfg:        cfg,
		newFetcher: newFetcher,
		queue:      queue.New(cfg.Retrievers.QueueSize),
		logger:     logger.With("component", "supervisor"),
		counters:   counters,
	}
}

// Queue exposes the underlying bounded queue, for the MetricsPump and for
// callers that want the push form directly instead of Items' iterator.
func (s *Supervisor) Queue() *queue.Queue { return s.queue }

// seed performs the synchronous initial fetch of spec.md §4.6 start_sync:
// one backward-style request whose next_offset seeds the backward cursor
// and whose prev_offset seeds the forward cursor, pushing the seed page's
// items to the queue before either retriever starts.
func (s *Supervisor) seed(ctx context.Context, sess *session.Session, f fetcher.Fetcher) (backwardParams, forwardParams *types.FetchParams, err error) {
	loop := retry.New(f, s.logger)
	seedParams := types.NewBackwardParams(s.cfg.API.ExtraParams)
	seedParams.Limit = s.cfg.Retrievers.Limit

	page, err := loop.GetPage(ctx, sess, seedParams, s.cfg.API.Host)
	if err != nil {
		return nil, nil, fmt.Errorf("seed fetch: %w", err)
	}

	for _, item := range page.Items {
		if err := s.queue.Put(ctx, item); err != nil {
			return nil, nil, fmt.Errorf("seed enqueue: %w", err)
		}
	}

	backwardParams = types.NewBackwardParams(s.cfg.API.ExtraParams)
	backwardParams.Limit = s.cfg.Retrievers.Limit
	backwardParams.SetOffset(page.NextOffset)

	forwardParams = types.NewForwardParams(s.cfg.API.ExtraParams)
	forwardParams.Limit = s.cfg.Retrievers.Limit
	forwardParams.SetOffset(page.PrevOffset)

	return backwardParams, forwardParams, nil
}

// spawn builds a fresh generation: new Session, new Fetcher, seeded
// cursors, and both retrievers running in their own goroutines.
func (s *Supervisor) spawn(ctx context.Context) (*generation, error) {
	sess, err := session.New()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	f, err := s.newFetcher()
	if err != nil {
		return nil, fmt.Errorf("new fetcher: %w", err)
	}

	backwardParams, forwardParams, err := s.seed(ctx, sess, f)
	if err != nil {
		f.Close()
		return nil, err
	}

	genCtx, cancel := context.WithCancel(ctx)
	loop := retry.New(f, s.logger)

	g := &generation{
		cancel:        cancel,
		done:          make(chan struct{}),
		sess:          sess,
		checkBackward: true,
		backward: retriever.NewBackward(loop, sess, s.queue, backwardParams, s.cfg.API.Host,
			s.cfg.Retrievers.DownRequestsSleep, s.logger),
		forward: retriever.NewForward(loop, sess, s.queue, forwardParams, s.cfg.API.Host,
			s.cfg.Retrievers.UpRequestsSleep, s.cfg.Retrievers.UpWaitSleep, s.cfg.Retrievers.UpWaitSleepMin,
			s.cfg.API.Adaptive, s.logger),
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		term := g.backward.Run(genCtx)
		g.mu.Lock()
		g.backwardTerm = &term
		g.backwardDone = true
		g.mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		term := g.forward.Run(genCtx)
		g.mu.Lock()
		g.forwardTerm = &term
		g.forwardDone = true
		g.mu.Unlock()
	}()
	go func() {
		wg.Wait()
		close(g.done)
		f.Close()
	}()

	return g, nil
}

// needsRestart inspects the current generation per spec.md §4.6's
// supervision-loop rules.
func (g *generation) needsRestart() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.backwardDone && g.checkBackward {
		if g.backwardTerm.Kind == retriever.Fault {
			return true
		}
		// Clean finish: stop checking it, but it is not itself a restart.
		g.checkBackward = false
	}
	if g.forwardDone {
		// Forward is never supposed to terminate, cleanly or otherwise.
		return true
	}
	return false
}

// supervise runs the seed/spawn/detect/restart loop of spec.md §4.6 until
// ctx is done, without touching the queue's consumer side — the draining
// is left to whichever of Items or Push the caller chose. Each loop tick
// rechecks generation health at the same 100ms cadence the consumer
// iterator uses to recheck between drains (spec.md §4.5).
func (s *Supervisor) supervise(ctx context.Context) {
	gen, err := s.spawn(ctx)
	if err != nil {
		s.logger.Error("initial seed/spawn failed", "err", err)
		s.queue.Close()
		return
	}
	s.setGeneration(gen)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopGeneration(gen)
			// Unblocks anything parked in Items/Push's Queue.Get or
			// PeekTimeout now that no retriever will ever feed it again.
			s.queue.Close()
			return
		case <-ticker.C:
		}

		if gen.needsRestart() {
			s.logger.Warn("restarting retriever pair", "at", s.cfg.Now())
			s.bumpFaults()
			s.stopGeneration(gen)
			gen, err = s.spawn(ctx)
			if err != nil {
				s.logger.Error("restart failed", "err", err)
				return
			}
			s.setGeneration(gen)
			s.bumpRestarts()
		}
	}
}

// Items returns the consumer-visible iterator of spec.md §4.6: runs
// supervision in the background and drains the queue into the caller,
// blocking briefly on arrival so the supervision loop above still gets to
// recheck retriever health even when nothing is flowing.
func (s *Supervisor) Items(ctx context.Context) iter.Seq[types.Item] {
	return func(yield func(types.Item) bool) {
		superviseCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan struct{})
		go func() {
			s.supervise(superviseCtx)
			close(done)
		}()

		for {
			select {
			case <-done:
				return
			default:
			}

			for {
				item, ok := s.queue.Get()
				if !ok {
					break
				}
				if !yield(item) {
					return
				}
				if s.queue.Len() == 0 {
					break
				}
			}

			s.queue.PeekTimeout(100 * time.Millisecond)
		}
	}
}

// Push runs the synchronizer's supervision loop in the background and
// returns the raw queue for callers that prefer to drive their own
// consumption loop instead of ranging over Items (spec.md §9 "push form").
func (s *Supervisor) Push(ctx context.Context) *queue.Queue {
	go s.supervise(ctx)
	return s.queue
}

func (s *Supervisor) setGeneration(g *generation) {
	s.mu.Lock()
	s.gen = g
	s.mu.Unlock()
}

func (s *Supervisor) stopGeneration(g *generation) {
	g.cancel()
	<-g.done
}

// bumpFaults and bumpRestarts feed the MetricsPump's counters (spec.md
// §4.7); counters may be nil for callers that never wired a Pump.
func (s *Supervisor) bumpFaults() {
	if s.counters != nil {
		s.counters.FaultsTotal.Add(1)
	}
}

func (s *Supervisor) bumpRestarts() {
	if s.counters != nil {
		s.counters.Restarts.Add(1)
	}
}

// QueueLen implements observability.Source.
func (s *Supervisor) QueueLen() int { return s.queue.Len() }

// BackwardFinished implements observability.Source: whether the active
// generation's backward retriever has reached a clean finish (spec.md §4.7
// "backward_finished").
func (s *Supervisor) BackwardFinished() bool {
	s.mu.Lock()
	g := s.gen
	s.mu.Unlock()
	if g == nil {
		return false
	}
	return g.backward.Status() == retriever.StatusFinished
}

// ForwardUpWaitSleep implements observability.Source.
func (s *Supervisor) ForwardUpWaitSleep() time.Duration {
	f := s.CurrentForward()
	if f == nil {
		return 0
	}
	return f.WaitSleep()
}

// ForwardLastResponse implements observability.Source.
func (s *Supervisor) ForwardLastResponse() time.Time {
	f := s.CurrentForward()
	if f == nil {
		return time.Time{}
	}
	return f.LastResponse()
}

// BackwardLastResponse implements observability.Source.
func (s *Supervisor) BackwardLastResponse() time.Time {
	b := s.CurrentBackward()
	if b == nil {
		return time.Time{}
	}
	return b.LastResponse()
}

// CurrentForward returns the active generation's forward retriever, or nil
// before the first spawn — used by the MetricsPump to read WaitSleep and
// LastResponse.
func (s *Supervisor) CurrentForward() *retriever.Forward {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return nil
	}
	return s.gen.forward
}

// CurrentBackward returns the active generation's backward retriever, or
// nil before the first spawn.
func (s *Supervisor) CurrentBackward() *retriever.Backward {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		return nil
	}
	return s.gen.backward
}
