// Package main is the entry point for the mergesim CLI, which drives the
// tracing listeners with a simulated sharded query.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/shardtrace"
	"github.com/zoobzio/shardtrace/bootstrap"
	"github.com/zoobzio/shardtrace/internal/config"
	"github.com/zoobzio/shardtrace/internal/logging"
)

type simFlags struct {
	workers  int
	fail     int
	queries  int
	sql      string
	serial   bool
	shutdown time.Duration
}

func main() {
	var opts simFlags

	rootCmd := &cobra.Command{
		Use:   "mergesim",
		Short: "Simulate sharded queries through the tracing listeners",
		Long: `mergesim posts overall and merge events for simulated sharded queries.

Each query runs on a trunk task that forks one worker task per shard.
Configuration is read from SHARDTRACE_* environment variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().IntVarP(&opts.workers, "workers", "w", 4, "Worker tasks per query")
	rootCmd.Flags().IntVarP(&opts.fail, "fail", "f", -1, "Index of the worker whose merge fails, -1 for none")
	rootCmd.Flags().IntVarP(&opts.queries, "queries", "n", 1, "Number of queries to simulate")
	rootCmd.Flags().StringVar(&opts.sql, "sql", "SELECT * FROM t_order WHERE user_id IN (?, ?)", "Logical SQL recorded on the overall span")
	rootCmd.Flags().BoolVar(&opts.serial, "serial", false, "Run shards on the trunk without publishing the overall span")
	rootCmd.Flags().DurationVar(&opts.shutdown, "shutdown-timeout", 5*time.Second, "Time allowed for flushing spans")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts simFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := bootstrap.Start(cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	sim := simulation{
		workers:  opts.workers,
		fail:     opts.fail,
		sql:      opts.sql,
		parallel: !opts.serial,
	}
	for i := 0; i < opts.queries; i++ {
		sim.run(rt)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, opts.shutdown)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// The collector keeps what it drained on shutdown.
	var traces map[string][]shardtrace.Span
	if rt.Collector != nil {
		traces = rt.Collector.ExportTraces()
	}

	spans := 0
	for traceID, trace := range traces {
		for _, s := range trace {
			logger.Info("span",
				zap.String("trace_id", traceID),
				zap.String("operation", s.Name),
				zap.String("span_id", s.SpanID),
				zap.String("parent_id", s.ParentID),
				zap.Duration("duration", s.Duration),
				zap.Bool("failed", s.Failed()),
			)
		}
		spans += len(trace)
	}
	logger.Info("simulation finished",
		zap.Int("queries", opts.queries),
		zap.Int("traces", len(traces)),
		zap.Int("spans", spans),
		zap.Uint64("dropped_events", rt.Dropped()),
	)
	return nil
}
