package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opentender/tendersync/internal/types"
)

func TestPutGetFIFO(t *testing.T) {
	q := New(4)
	ctx := context.Background()

	for _, v := range []string{"a", "b", "c"} {
		if err := q.Put(ctx, types.Item(v)); err != nil {
			t.Fatalf("Put(%q): %v", v, err)
		}
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Get()
		if !ok {
			t.Fatal("Get: expected ok=true")
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, string(got))
		}
	}
}

func TestPutBlocksAtCapacity(t *testing.T) {
	q := New(1)
	ctx := context.Background()

	if err := q.Put(ctx, types.Item("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	putDone := make(chan error, 1)
	go func() {
		putDone <- q.Put(ctx, types.Item("second"))
	}()

	select {
	case <-putDone:
		t.Fatal("Put should have blocked while the queue was at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	if _, ok := q.Get(); !ok {
		t.Fatal("Get: expected ok=true")
	}

	select {
	case err := <-putDone:
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put should have unblocked once capacity freed up")
	}
}

func TestPutCancelledByContext(t *testing.T) {
	q := New(1)
	ctx := context.Background()
	if err := q.Put(ctx, types.Item("fills it")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	putDone := make(chan error, 1)
	go func() {
		putDone <- q.Put(cancelCtx, types.Item("blocked"))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-putDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Put should have returned once its context was cancelled")
	}
}

func TestGetBlocksUntilClose(t *testing.T) {
	q := New(4)

	getDone := make(chan bool, 1)
	go func() {
		_, ok := q.Get()
		getDone <- ok
	}()

	select {
	case <-getDone:
		t.Fatal("Get should have blocked on an empty, open queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Close()

	select {
	case ok := <-getDone:
		if ok {
			t.Error("expected ok=false once the queue is closed and drained")
		}
	case <-time.After(time.Second):
		t.Fatal("Get should have unblocked once Close was called")
	}
}

func TestPutAfterCloseFails(t *testing.T) {
	q := New(4)
	q.Close()

	err := q.Put(context.Background(), types.Item("x"))
	if !errors.Is(err, types.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}

func TestPeekTimeoutReturnsOnArrival(t *testing.T) {
	q := New(4)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Put(context.Background(), types.Item("x"))
	}()

	if !q.PeekTimeout(time.Second) {
		t.Fatal("expected PeekTimeout to return true once an item arrived")
	}
	if q.Len() != 1 {
		t.Errorf("PeekTimeout should not remove the item, Len() = %d", q.Len())
	}
}

func TestPeekTimeoutExpires(t *testing.T) {
	q := New(4)
	start := time.Now()
	if q.PeekTimeout(30 * time.Millisecond) {
		t.Fatal("expected PeekTimeout to return false on an empty queue")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected PeekTimeout to wait out its deadline, elapsed %s", elapsed)
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New(8)
	ctx := context.Background()
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Put(ctx, types.Item("x"))
		}
	}()

	received := 0
	for received < n {
		if _, ok := q.Get(); ok {
			received++
		}
	}
	wg.Wait()

	if received != n {
		t.Errorf("expected to receive %d items, got %d", n, received)
	}
}
