package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtaung/stonks/internal/api"
	"github.com/mtaung/stonks/internal/config"
	"github.com/mtaung/stonks/internal/db"
	"github.com/mtaung/stonks/internal/ledger"
	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	clock, err := marketclock.New()
	if err != nil {
		logger.Error("market clock init failed", "err", err)
		os.Exit(1)
	}
	// The API never hits the market feed: reads come from recorded closes.
	market := marketdata.NewClient("", "")
	svc := ledger.NewService(store.NewPostgres(pool), market, clock, logger)

	server := api.New(logger, svc, clock)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("stonks api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
