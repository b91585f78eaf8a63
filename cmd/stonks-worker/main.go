package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtaung/stonks/internal/config"
	"github.com/mtaung/stonks/internal/db"
	"github.com/mtaung/stonks/internal/ledger"
	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/schedule"
	"github.com/mtaung/stonks/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Error("migrate failed", "err", err)
		os.Exit(1)
	}

	clock, err := marketclock.New()
	if err != nil {
		logger.Error("market clock init failed", "err", err)
		os.Exit(1)
	}
	market := marketdata.NewClient(cfg.IEXBaseURL, cfg.IEXToken)
	svc := ledger.NewService(store.NewPostgres(pool), market, clock, logger)
	svc.SetLookback(cfg.Lookback)

	sched := schedule.New(logger)
	sched.Schedule("close", clock.NextClose, "evaluate", func(ctx context.Context) error {
		if err := svc.RecordCloses(ctx); err != nil {
			return err
		}
		return svc.EvaluateAll(ctx)
	})
	sched.Schedule("daily-data", clock.NextDailyData, "splits", svc.ProcessSplits)
	sched.Schedule("daily-data", clock.NextDailyData, "dividends", svc.ProcessDividends)
	sched.Schedule("daily-data", clock.NextDailyData, "symbols", svc.RefreshSymbols)
	sched.Start(ctx)

	logger.Info("worker started",
		"next_close", clock.NextClose().String(),
		"next_daily_data", clock.NextDailyData().String())
	<-ctx.Done()
	logger.Info("worker shutdown")
}
