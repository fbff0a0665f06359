// Package observability implements the MetricsPump of spec.md §4.7: a side
// worker, off the data path, that publishes a snapshot once a second and
// flushes accumulated counters. Grounded on the teacher's Metrics struct
// (atomic counters, Prometheus text exposition, StartServer) but replacing
// its crawl-specific gauges with the five the spec names, read live from
// the Supervisor and Queue rather than incremented ad hoc by callers.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Source is the read side the MetricsPump polls once a second. Implemented
// by *supervisor.Supervisor; kept as an interface here so this package
// never imports supervisor (metrics must never be on the data path, so it
// has no business depending on it beyond this narrow read contract).
type Source interface {
	QueueLen() int
	BackwardFinished() bool
	ForwardUpWaitSleep() time.Duration
	ForwardLastResponse() time.Time
	BackwardLastResponse() time.Time
}

// Counters are the accumulated, caller-incremented totals served beside the
// snapshot: items accepted (incremented by the CLI's sync loop for each item
// that passes its pipeline), restarts and faults (incremented by the
// Supervisor). Kept separate from the point-in-time gauges Source reports.
type Counters struct {
	ItemsEnqueued atomic.Int64
	Restarts      atomic.Int64
	FaultsTotal   atomic.Int64
}

// Pump periodically snapshots Source and Counters into Prometheus-exposed
// gauges. Its own failure (a stalled Source, a dead HTTP listener) must
// never fault the data path (spec.md §4.7), so Run logs and continues
// rather than returning an error up to the Supervisor.
type Pump struct {
	source   Source
	counters *Counters
	logger   *slog.Logger

	queueSize            atomic.Int64
	backwardFinished      atomic.Bool
	forwardUpWaitSleepSec atomic.Int64
	forwardLastResponse   atomic.Int64
	backwardLastResponse  atomic.Int64
}

// New builds a Pump reading from source and counters.
func New(source Source, counters *Counters, logger *slog.Logger) *Pump {
	return &Pump{
		source:   source,
		counters: counters,
		logger:   logger.With("component", "metrics_pump"),
	}
}

// Run ticks once a second until ctx is done, refreshing the exposed
// gauges from Source (spec.md §4.7).
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Pump) tick() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("metrics pump tick panicked, continuing", "recover", r)
		}
	}()

	p.queueSize.Store(int64(p.source.QueueLen()))
	p.backwardFinished.Store(p.source.BackwardFinished())
	p.forwardUpWaitSleepSec.Store(int64(p.source.ForwardUpWaitSleep().Seconds()))

	if t := p.source.ForwardLastResponse(); !t.IsZero() {
		p.forwardLastResponse.Store(t.Unix())
	}
	if t := p.source.BackwardLastResponse(); !t.IsZero() {
		p.backwardLastResponse.Store(t.Unix())
	}
}

// ServeHTTP serves the current snapshot in Prometheus text exposition
// format.
func (p *Pump) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	gauges := []struct {
		name  string
		help  string
		value int64
	}{
		{"tendersync_queue_size", "Current bounded queue depth", p.queueSize.Load()},
		{"tendersync_backward_finished", "1 if the backward retriever has reached the epoch", boolToInt64(p.backwardFinished.Load())},
		{"tendersync_forward_up_wait_sleep_seconds", "Forward retriever's current idle sleep", p.forwardUpWaitSleepSec.Load()},
		{"tendersync_forward_last_response_unix", "Unix time of forward retriever's last response", p.forwardLastResponse.Load()},
		{"tendersync_backward_last_response_unix", "Unix time of backward retriever's last response", p.backwardLastResponse.Load()},
	}
	for _, g := range gauges {
		fmt.Fprintf(w, "# HELP %s %s\n", g.name, g.help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", g.name)
		fmt.Fprintf(w, "%s %d\n", g.name, g.value)
	}

	counters := []struct {
		name  string
		help  string
		value int64
	}{
		{"tendersync_items_enqueued_total", "Total items accepted by the sync loop's pipeline", p.counters.ItemsEnqueued.Load()},
		{"tendersync_restarts_total", "Total retriever-pair restarts", p.counters.Restarts.Load()},
		{"tendersync_faults_total", "Total retriever faults observed", p.counters.FaultsTotal.Load()},
	}
	for _, c := range counters {
		fmt.Fprintf(w, "# HELP %s %s\n", c.name, c.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(w, "%s %d\n", c.name, c.value)
	}
}

// StartServer starts the metrics HTTP server in the background.
func (p *Pump) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, p)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	p.logger.Info("metrics server starting", "addr", addr, "path", path)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
