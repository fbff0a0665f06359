package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opentender/tendersync/internal/config"
	"github.com/opentender/tendersync/internal/fetcher"
	"github.com/opentender/tendersync/internal/observability"
	"github.com/opentender/tendersync/internal/pipeline"
	"github.com/opentender/tendersync/internal/storage"
	"github.com/opentender/tendersync/internal/supervisor"
	"github.com/opentender/tendersync/internal/types"
)

var (
	cfgFile    string
	verbose    bool
	outputPath string
	outputType string
	batchSize  int
	idPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tendersync",
		Short: "tendersync — bidirectional synchronizer for the tender-registry changes feed",
		Long: `tendersync keeps a local mirror of a paginated, sticky-session "changes feed"
current and complete.

One retriever walks backward from "now" to the feed's epoch, draining
history; a second tails forward live, polling with an adaptive idle
sleep. Both share a single bounded queue and a single load-balancer
session; a supervisor detects a faulted or unexpectedly finished
retriever and restarts the pair from a freshly seeded cursor.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// syncCmd creates the "sync" subcommand, the synchronizer's main loop.
func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the synchronizer until interrupted",
		Long:  "Seed the cursors, spawn the backward and forward retrievers, and stream items to the configured sink until SIGINT/SIGTERM.",
		RunE:  runSync,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output directory (overrides config storage.output_path)")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "storage type: json, jsonl, csv, mongo, none (overrides config storage.type)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "items buffered before a storage flush (0 = use config default)")
	cmd.Flags().StringVar(&idPath, "id-path", "id", "gjson path used as the id column for csv storage and required-field validation")

	return cmd
}

// runSync executes the sync command.
func runSync(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Info("starting sync",
		"api_host", cfg.API.Host,
		"resource", cfg.API.Resource,
		"queue_size", cfg.Retrievers.QueueSize,
		"adaptive", cfg.API.Adaptive,
		"storage", cfg.Storage.Type,
		"started_at", cfg.Now(),
	)

	newFetcher := func() (fetcher.Fetcher, error) {
		return fetcher.NewHTTPFetcher(cfg, logger)
	}
	counters := &observability.Counters{}
	sup := supervisor.New(cfg, newFetcher, logger, counters)

	metricsCtx, cancelMetrics := context.WithCancel(context.Background())
	defer cancelMetrics()
	if cfg.Metrics.Enabled {
		pump := observability.New(sup, counters, logger)
		go pump.Run(metricsCtx)
		go func() {
			if err := pump.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer func() {
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Error("storage close failed", "error", err)
			}
		}
	}()

	pipe := pipeline.New(logger)
	pipe.Use(&pipeline.RequiredFieldsMiddleware{Paths: []string{idPath}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", "signal", sig)
		cancel()
	}()

	start := time.Now()
	var stored, dropped int64
	batch := make([]types.Item, 0, effectiveBatchSize(cfg))

	flush := func() error {
		if len(batch) == 0 || store == nil {
			batch = batch[:0]
			return nil
		}
		err := store.Store(batch)
		batch = batch[:0]
		return err
	}

	for item := range sup.Items(ctx) {
		processed, err := pipe.Process(item)
		if err != nil {
			logger.Error("pipeline stage failed", "error", err)
			continue
		}
		if processed == nil {
			dropped++
			continue
		}
		stored++
		counters.ItemsEnqueued.Add(1)
		batch = append(batch, processed)
		if len(batch) >= effectiveBatchSize(cfg) {
			if err := flush(); err != nil {
				logger.Error("storage flush failed", "error", err)
			}
		}
	}
	if err := flush(); err != nil {
		logger.Error("final storage flush failed", "error", err)
	}

	elapsed := time.Since(start)
	logger.Info("sync stopped",
		"elapsed", elapsed,
		"items_stored", stored,
		"items_dropped", dropped,
	)
	fmt.Printf("\nsync stopped after %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  items stored:  %d\n", stored)
	fmt.Printf("  items dropped: %d\n", dropped)

	return nil
}

// newStorage builds the configured sink, or nil for storage.type "none".
func newStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "none":
		return nil, nil
	case "mongo":
		return storage.NewMongoStorage(cfg.Storage.MongoURI, cfg.Storage.Database, cfg.Storage.Collection, logger)
	default:
		return storage.NewFileStorage(cfg.Storage.Type, cfg.Storage.OutputPath, idPath, logger)
	}
}

func effectiveBatchSize(cfg *config.Config) int {
	if batchSize > 0 {
		return batchSize
	}
	if cfg.Storage.BatchSize > 0 {
		return cfg.Storage.BatchSize
	}
	return 100
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tendersync %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("API:\n")
			fmt.Printf("  Host:              %s\n", cfg.API.Host)
			fmt.Printf("  Version:           %s\n", cfg.API.Version)
			fmt.Printf("  Resource:          %s\n", cfg.API.Resource)
			fmt.Printf("  Adaptive:          %v\n", cfg.API.Adaptive)
			fmt.Printf("  TimeZone:          %s (now: %s)\n", cfg.API.TimeZone, cfg.Now().Format(time.RFC3339))
			fmt.Printf("\nRetrievers:\n")
			fmt.Printf("  Down Requests Sleep: %s\n", cfg.Retrievers.DownRequestsSleep)
			fmt.Printf("  Up Requests Sleep:   %s\n", cfg.Retrievers.UpRequestsSleep)
			fmt.Printf("  Up Wait Sleep:       %s\n", cfg.Retrievers.UpWaitSleep)
			fmt.Printf("  Up Wait Sleep Min:   %s\n", cfg.Retrievers.UpWaitSleepMin)
			fmt.Printf("  Queue Size:          %d\n", cfg.Retrievers.QueueSize)
			fmt.Printf("  Request Timeout:     %s\n", cfg.Retrievers.RequestTimeout)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  Batch Size:        %d\n", cfg.Storage.BatchSize)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
	return cmd
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = outputType
	}
	if batchSize > 0 {
		cfg.Storage.BatchSize = batchSize
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}
