package retriever

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opentender/tendersync/internal/queue"
	"github.com/opentender/tendersync/internal/retry"
	"github.com/opentender/tendersync/internal/session"
	"github.com/opentender/tendersync/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// scriptedFetcher drives retry.Loop deterministically by returning one
// FetchOutcome per call, repeating its last entry once exhausted.
type scriptedFetcher struct {
	outcomes []types.FetchOutcome
	calls    atomic.Int64
}

func (f *scriptedFetcher) Fetch(ctx context.Context, sess *session.Session, params *types.FetchParams) types.FetchOutcome {
	i := f.calls.Add(1) - 1
	if int(i) >= len(f.outcomes) {
		return f.outcomes[len(f.outcomes)-1]
	}
	return f.outcomes[i]
}

func (f *scriptedFetcher) Close() error { return nil }

func newLoop(outcomes ...types.FetchOutcome) *retry.Loop {
	return retry.New(&scriptedFetcher{outcomes: outcomes}, testLogger)
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New()
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s
}

func TestBackwardFinishesCleanlyOnEmptyPage(t *testing.T) {
	loop := newLoop(
		types.OK(&types.Page{Items: []types.Item{types.Item("a")}, NextOffset: "c1"}),
		types.OK(&types.Page{}),
	)
	q := queue.New(4)
	b := NewBackward(loop, newTestSession(t), q, types.NewBackwardParams(nil), "https://example.org", time.Millisecond, testLogger)

	term := b.Run(context.Background())
	if term.Kind != Clean {
		t.Fatalf("expected Clean termination, got %v (%v)", term.Kind, term.Reason)
	}
	if b.Status() != StatusFinished {
		t.Errorf("expected StatusFinished, got %v", b.Status())
	}

	item, ok := q.Get()
	if !ok || string(item) != "a" {
		t.Errorf("expected item %q enqueued before finishing, got %q ok=%v", "a", item, ok)
	}
}

func TestBackwardFaultsOnRequestFailed(t *testing.T) {
	loop := newLoop(types.RequestFailed(500, errors.New("boom")))
	q := queue.New(4)
	b := NewBackward(loop, newTestSession(t), q, types.NewBackwardParams(nil), "https://example.org", time.Millisecond, testLogger)

	term := b.Run(context.Background())
	if term.Kind != Fault {
		t.Fatalf("expected Fault termination, got %v", term.Kind)
	}
	if b.Status() != StatusBroken {
		t.Errorf("expected StatusBroken, got %v", b.Status())
	}
}

func TestBackwardCancelledByContext(t *testing.T) {
	loop := newLoop(types.OK(&types.Page{Items: []types.Item{types.Item("a")}, NextOffset: "c1"}))
	q := queue.New(4)
	b := NewBackward(loop, newTestSession(t), q, types.NewBackwardParams(nil), "https://example.org", time.Hour, testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Termination, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case term := <-done:
		if term.Kind != Cancelled {
			t.Fatalf("expected Cancelled termination, got %v", term.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("Run should have returned promptly after cancellation")
	}
}

func TestBackwardFaultsOnSessionDivergence(t *testing.T) {
	loop := newLoop(types.OK(&types.Page{Items: []types.Item{types.Item("a")}, NextOffset: "c1"}))
	q := queue.New(4)
	sess := newTestSession(t)

	u, _ := url.Parse("https://example.org/")
	sess.Jar().SetCookies(u, []*http.Cookie{{Name: session.CookieAWSELB, Value: "backend-b"}})
	sess.Observe(u)

	b := NewBackward(loop, sess, q, types.NewBackwardParams(nil), "https://example.org", time.Millisecond, testLogger)
	b.lastAffinity = session.Affinity{AWSELB: "backend-a"}

	term := b.Run(context.Background())
	if term.Kind != Fault {
		t.Fatalf("expected Fault termination on affinity divergence, got %v", term.Kind)
	}
	if !errors.Is(term.Reason, types.ErrSessionMismatch) {
		t.Errorf("expected ErrSessionMismatch, got %v", term.Reason)
	}
}
