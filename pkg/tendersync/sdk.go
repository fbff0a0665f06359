// Package tendersync provides a public SDK for embedding the bidirectional
// changes-feed synchronizer as a library.
//
// Example usage:
//
//	sync := tendersync.New(
//	    tendersync.WithHost("https://lb.api-sandbox.openprocurement.org/"),
//	    tendersync.WithResource("tenders"),
//	    tendersync.WithQueueSize(101),
//	)
//
//	for item := range sync.Items(ctx) {
//	    fmt.Println(string(item))
//	}
package tendersync

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/opentender/tendersync/internal/config"
	"github.com/opentender/tendersync/internal/fetcher"
	"github.com/opentender/tendersync/internal/observability"
	"github.com/opentender/tendersync/internal/queue"
	"github.com/opentender/tendersync/internal/supervisor"
	"github.com/opentender/tendersync/internal/types"
)

// Item is the opaque, caller-defined JSON record produced by the feed.
type Item = types.Item

// Synchronizer is the high-level API for embedding tendersync as a library.
type Synchronizer struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor *supervisor.Supervisor
	counters   *observability.Counters
}

// Option configures a Synchronizer.
type Option func(*config.Config)

// WithHost sets the upstream changes-feed host.
func WithHost(host string) Option {
	return func(c *config.Config) { c.API.Host = host }
}

// WithAPIVersion sets the API version path segment.
func WithAPIVersion(version string) Option {
	return func(c *config.Config) { c.API.Version = version }
}

// WithResource sets the resource name (e.g. "tenders").
func WithResource(resource string) Option {
	return func(c *config.Config) { c.API.Resource = resource }
}

// WithAPIKey sets the upstream API key, appended to every request's query.
func WithAPIKey(key string) Option {
	return func(c *config.Config) { c.API.Key = key }
}

// WithExtraParams merges additional query parameters into every request.
func WithExtraParams(params map[string]string) Option {
	return func(c *config.Config) {
		if c.API.ExtraParams == nil {
			c.API.ExtraParams = make(map[string]string, len(params))
		}
		for k, v := range params {
			c.API.ExtraParams[k] = v
		}
	}
}

// WithAdaptive enables or disables the forward retriever's adaptive idle
// sleep tuning.
func WithAdaptive(adaptive bool) Option {
	return func(c *config.Config) { c.API.Adaptive = adaptive }
}

// WithQueueSize sets the bounded queue's capacity.
func WithQueueSize(n int) Option {
	return func(c *config.Config) { c.Retrievers.QueueSize = n }
}

// WithRetrieverSleeps sets the backward and forward retrievers' pacing.
func WithRetrieverSleeps(downRequests, upRequests, upWait, upWaitMin time.Duration) Option {
	return func(c *config.Config) {
		c.Retrievers.DownRequestsSleep = downRequests
		c.Retrievers.UpRequestsSleep = upRequests
		c.Retrievers.UpWaitSleep = upWait
		c.Retrievers.UpWaitSleepMin = upWaitMin
	}
}

// WithRequestTimeout sets the per-request HTTP client timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config.Config) { c.Retrievers.RequestTimeout = d }
}

// WithLimit sets the page size requested from the upstream feed.
func WithLimit(n int) Option {
	return func(c *config.Config) { c.Retrievers.Limit = n }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// New creates a Synchronizer with the given options, using a default
// stderr text logger.
func New(opts ...Option) *Synchronizer {
	level := slog.LevelInfo
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return NewWithLogger(logger, opts...)
}

// NewWithLogger creates a Synchronizer with the given options and logger.
func NewWithLogger(logger *slog.Logger, opts ...Option) *Synchronizer {
	cfg := config.DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logging.Level == "debug" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	newFetcher := func() (fetcher.Fetcher, error) {
		return fetcher.NewHTTPFetcher(cfg, logger)
	}
	counters := &observability.Counters{}

	return &Synchronizer{
		cfg:        cfg,
		logger:     logger,
		supervisor: supervisor.New(cfg, newFetcher, logger, counters),
		counters:   counters,
	}
}

// Items streams items as an iterator: seeds the cursors, supervises the
// retriever pair in the background, and yields each item as it arrives.
// The iteration ends when ctx is cancelled.
func (s *Synchronizer) Items(ctx context.Context) func(func(Item) bool) {
	return s.supervisor.Items(ctx)
}

// Push starts the synchronizer's supervision in the background and returns
// the raw bounded queue, for callers that want to drive their own
// consumption loop (Get/PeekTimeout) instead of ranging over Items.
func (s *Synchronizer) Push(ctx context.Context) *queue.Queue {
	return s.supervisor.Push(ctx)
}

// Metrics returns a Pump wired to this Synchronizer's Supervisor, for
// callers that want to expose a Prometheus endpoint or poll the counters
// themselves instead of using the tendersync CLI's built-in server.
func (s *Synchronizer) Metrics() *observability.Pump {
	return observability.New(s.supervisor, s.counters, s.logger)
}

// Config returns the resolved configuration in effect for this
// Synchronizer, after options have been applied.
func (s *Synchronizer) Config() *config.Config {
	return s.cfg
}
