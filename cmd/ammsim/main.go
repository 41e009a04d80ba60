package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/defistate/synthamm/config"
	"github.com/defistate/synthamm/engine"
	"github.com/defistate/synthamm/ledger"
	"github.com/defistate/synthamm/logging"
	"github.com/defistate/synthamm/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ammsim",
		Short:        "Synthetic asset AMM simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay an operation script against a fresh engine",
		RunE:  runReplay,
	}

	replayCmd.Flags().String("script", "", "operation script JSONL")
	replayCmd.Flags().String("snapshot-out", "./data/snapshot.json", "snapshot file written after the replay")
	replayCmd.Flags().String("journal", "./data/journal.jsonl", "journal JSONL path")
	replayCmd.Flags().String("pg-dsn", "", "optional Postgres DSN to store final snapshots")
	replayCmd.Flags().Int("workers", 4, "quote workers")
	replayCmd.Flags().Uint64("oracle-max-slot-delay", 25, "maximum oracle slot delay")
	replayCmd.Flags().Uint64("oracle-max-confidence-bps", 200, "maximum oracle confidence interval in bps of price")
	replayCmd.Flags().Uint64("start-time", 0, "clock value in unix seconds when the replay starts")
	replayCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(replayCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote swaps against a snapshot without changing it",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("script", "", "swap request JSONL")
	quoteCmd.Flags().String("snapshot", "./data/snapshot.json", "snapshot file to quote against")
	quoteCmd.Flags().Int("workers", 4, "quote workers")
	quoteCmd.Flags().Uint64("start-time", 0, "clock value in unix seconds")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	return root
}

// loadRuntime reads configuration and builds the logger shared by every
// subcommand.
func loadRuntime(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// manualClock is advanced explicitly by scripts.
type manualClock struct {
	now atomic.Uint64
}

func newManualClock(start uint64) *manualClock {
	c := &manualClock{}
	c.now.Store(start)
	return c
}

func (c *manualClock) Now() uint64 { return c.now.Load() }

func (c *manualClock) Advance(seconds uint64) uint64 { return c.now.Add(seconds) }

// memoryOracle serves prices set by scripts.
type memoryOracle struct {
	mu     sync.RWMutex
	prices map[string]engine.OraclePrice
}

func newMemoryOracle() *memoryOracle {
	return &memoryOracle{prices: make(map[string]engine.OraclePrice)}
}

func (o *memoryOracle) Set(feed string, price engine.OraclePrice) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[feed] = price
}

func (o *memoryOracle) GetPrice(feed string) (engine.OraclePrice, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[feed]
	if !ok {
		return engine.OraclePrice{}, fmt.Errorf("no price for feed %q", feed)
	}
	return price, nil
}

type runtime struct {
	engine   *engine.Engine
	ledger   *ledger.Ledger
	clock    *manualClock
	oracle   *memoryOracle
	registry *prometheus.Registry
}

func newRuntime(cfg config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{
		ledger:   ledger.New(),
		clock:    newManualClock(cfg.StartTime),
		oracle:   newMemoryOracle(),
		registry: prometheus.NewRegistry(),
	}
	e, err := engine.New(&engine.Config{
		Ledger: rt.ledger,
		Clock:  rt.clock,
		Oracle: rt.oracle,
		OracleGuard: engine.OracleGuard{
			MaxSlotDelay:     cfg.OracleMaxSlotDelay,
			MaxConfidenceBps: cfg.OracleMaxConfidenceBps,
		},
		QuoteWorkers: cfg.Workers,
		Registry:     rt.registry,
		Logger:       logging.NewAdapter(logger.With(zap.String("component", "engine"))),
	})
	if err != nil {
		return nil, err
	}
	rt.engine = e
	return rt, nil
}

// restore loads every pool of the snapshot file at path into the engine.
func (rt *runtime) restore(path string) (int, error) {
	snapshots, ok, err := storage.NewSnapshotStore(path).Load()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("snapshot %s not found", path)
	}
	for _, snap := range snapshots {
		if err := rt.engine.Restore(snap); err != nil {
			return 0, fmt.Errorf("restore pool %s: %w", snap.Pool.ID.Hex(), err)
		}
	}
	return len(snapshots), nil
}

// operationCounts returns the synthamm_operations_total samples keyed by
// "op/result".
func (rt *runtime) operationCounts() (map[string]float64, error) {
	families, err := rt.registry.Gather()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "synthamm_operations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			var op, result string
			for _, label := range metric.GetLabel() {
				switch label.GetName() {
				case "op":
					op = label.GetValue()
				case "result":
					result = label.GetValue()
				}
			}
			counts[op+"/"+result] = metric.GetCounter().GetValue()
		}
	}
	return counts, nil
}
