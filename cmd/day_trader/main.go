package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"day_trader/internal/config"
	"day_trader/internal/journal"
	"day_trader/internal/sim"
	"day_trader/internal/source"
	"day_trader/internal/strategy"
	"day_trader/internal/trader"
	"day_trader/pkg/concurrency"
	"day_trader/pkg/logging"
	"day_trader/pkg/metrics"

	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/day_trader.yaml", "Path to configuration file")
	positionPath := flag.String("positions", "", "Override trading.position_file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("day_trader %s\n", version)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *positionPath != "" {
		cfg.Trading.PositionFile = *positionPath
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting day trader", "version", version, "config", *configPath)
	if !cfg.App.DryRun {
		logger.Fatal("Live broker connectivity is not configured; set app.dry_run: true")
	}

	contracts, err := source.ReadContracts(cfg.Trading.ContractFile)
	if err != nil {
		logger.Fatal("Failed to load contracts", "error", err)
	}
	targets, err := source.FileSource{}.ReadTargetPositions(cfg.Trading.PositionFile)
	if err != nil {
		logger.Fatal("Failed to load target positions", "error", err)
	}
	logger.Info("Session inputs loaded", "contracts", len(contracts), "targets", len(targets))

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "session",
		MaxWorkers:  cfg.Concurrency.MaxWorkers,
		MaxCapacity: cfg.Concurrency.MaxCapacity,
	}, logger)
	defer pool.Stop()

	var jnl *journal.Journal
	if cfg.App.JournalPath != "" {
		jnl, err = journal.Open(cfg.App.JournalPath, logger)
		if err != nil {
			logger.Fatal("Failed to open journal", "error", err)
		}
		defer jnl.Close()
	}

	broker := sim.New(pool, logger,
		sim.WithAckLatency(time.Duration(cfg.Sim.AckLatencyMS)*time.Millisecond))

	strat := strategy.NewBasic(strategy.Params{
		EntryPct:      cfg.Trading.EntryPct,
		StopLossPct:   cfg.Trading.StopLossPct,
		StopProfitPct: cfg.Trading.StopProfitPct,
	}, contracts, logger)

	now := time.Now()
	phase := func(name, value string) time.Time {
		at, err := config.PhaseTime(now, value)
		if err != nil {
			logger.Fatal("Bad session time", "phase", name, "error", err)
		}
		return at
	}
	tr := trader.New(broker, strat, strategy.PolicyByName(cfg.Trading.CoverPolicy),
		jnl, pool, logger, trader.Config{
			EntryTime:        phase("entry_time", cfg.Session.EntryTime),
			OpenTime:         phase("open_time", cfg.Session.OpenTime),
			CoverTime:        phase("cover_time", cfg.Session.CoverTime),
			CloseTime:        phase("close_time", cfg.Session.CloseTime),
			MaxOrderQuantity: cfg.Trading.MaxOrderQuantity,
			OrderRate:        cfg.Trading.OrderRateLimit,
		})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.App.EnableMetrics {
		ms := metrics.NewServer(cfg.App.MetricsPort, logger)
		ms.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Stop(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Run(ctx, targets)
	})
	if cfg.Sim.TickTape != "" {
		tape, err := source.ReadTicks(cfg.Sim.TickTape)
		if err != nil {
			logger.Fatal("Failed to load tick tape", "error", err)
		}
		g.Go(func() error {
			return replay(ctx, broker, tape)
		})
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("Session failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Session complete")
}

// replay pushes a recorded tick tape through the simulated broker,
// honoring the recorded inter-tick gaps.
func replay(ctx context.Context, broker *sim.Broker, tape []source.TimedTick) error {
	start := time.Now()
	for _, tt := range tape {
		if wait := tt.Offset - time.Since(start); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		tt.Tick.Time = time.Now()
		broker.QuoteCallback(tt.Tick)
	}
	return nil
}
