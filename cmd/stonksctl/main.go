// stonksctl is the operator's tool: it runs the scheduled jobs by hand
// against the live database, for backfills and for recovering from a
// missed cycle.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mtaung/stonks/internal/config"
	"github.com/mtaung/stonks/internal/db"
	"github.com/mtaung/stonks/internal/ledger"
	"github.com/mtaung/stonks/internal/marketclock"
	"github.com/mtaung/stonks/internal/marketdata"
	"github.com/mtaung/stonks/internal/store"
)

var (
	success = color.New(color.FgGreen, color.Bold)
	danger  = color.New(color.FgRed, color.Bold)
	accent  = color.New(color.FgCyan, color.Bold)
)

func main() {
	root := &cobra.Command{
		Use:          "stonksctl",
		Short:        "Operate the stonks trading game",
		SilenceUsage: true,
	}

	root.AddCommand(
		newInitDBCmd(),
		newSymbolsCmd(),
		newClosesCmd(),
		newEvaluateCmd(),
		newSplitsCmd(),
		newDividendsCmd(),
		newLeaderboardCmd(),
	)

	if err := root.Execute(); err != nil {
		danger.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withService loads worker config, opens the pool, and hands a wired
// ledger service to fn.
func withService(fn func(ctx context.Context, svc *ledger.Service) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		return err
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	clock, err := marketclock.New()
	if err != nil {
		return err
	}
	market := marketdata.NewClient(cfg.IEXBaseURL, cfg.IEXToken)
	svc := ledger.NewService(store.NewPostgres(pool), market, clock, nil)
	svc.SetLookback(cfg.Lookback)
	return fn(ctx, svc)
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the game schema if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			cfg, err := config.LoadWorkerFromEnv()
			if err != nil {
				return err
			}
			pool, err := db.Connect(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			success.Println("schema ready")
			return nil
		},
	}
}

func newSymbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "Refresh the symbol directory from the market feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *ledger.Service) error {
				if err := svc.RefreshSymbols(ctx); err != nil {
					return err
				}
				success.Println("symbol directory refreshed")
				return nil
			})
		},
	}
}

func newClosesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "closes",
		Short: "Record today's close for every held symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *ledger.Service) error {
				if err := svc.RecordCloses(ctx); err != nil {
					return err
				}
				success.Println("closes recorded")
				return nil
			})
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate net worth of every active company",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *ledger.Service) error {
				if err := svc.EvaluateAll(ctx); err != nil {
					return err
				}
				success.Println("companies evaluated")
				return nil
			})
		},
	}
}

func newSplitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "splits",
		Short: "Apply stock splits effective today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *ledger.Service) error {
				if err := svc.ProcessSplits(ctx); err != nil {
					return err
				}
				success.Println("splits processed")
				return nil
			})
		},
	}
}

func newDividendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dividends",
		Short: "Pay out dividends due today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *ledger.Service) error {
				if err := svc.ProcessDividends(ctx); err != nil {
					return err
				}
				success.Println("dividends processed")
				return nil
			})
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the top companies by net worth",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *ledger.Service) error {
				rows, err := svc.Leaderboard(ctx, limit)
				if err != nil {
					return err
				}
				accent.Printf("%-4s %-28s %16s\n", "#", "Company", "Net worth (USD)")
				for _, r := range rows {
					fmt.Printf("%-4d %-28s %16.2f\n", r.Rank, r.CompanyName, ledger.MicrosToUSD(r.NetWorthMicros))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of companies to show")
	return cmd
}
