package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tsquant/go-bars-collector/internal/apperrors"
	"github.com/tsquant/go-bars-collector/internal/auth"
	"github.com/tsquant/go-bars-collector/internal/config"
	"github.com/tsquant/go-bars-collector/internal/downloader"
	"github.com/tsquant/go-bars-collector/internal/exchange"
	"github.com/tsquant/go-bars-collector/internal/logger"
	"github.com/tsquant/go-bars-collector/internal/planner"
	"github.com/tsquant/go-bars-collector/internal/storage"
)

var (
	downloadSymbols []string
	downloadFull    bool
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download historical bars for the configured symbols",
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().StringArrayVarP(&downloadSymbols, "symbols", "s", nil,
		"symbols to download (repeatable; default: configured or full table)")
	downloadCmd.Flags().BoolVar(&downloadFull, "full", false,
		"ignore stored data and refetch from start_date")
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	startDate, err := cfg.StartTime()
	if err != nil {
		return err
	}
	format, err := storage.ParseFormat(cfg.StorageFormat)
	if err != nil {
		return err
	}
	compression, err := storage.ParseCompression(cfg.Compression)
	if err != nil {
		return err
	}

	backend, err := storage.Open(storage.Descriptor{
		Format:         format,
		Compression:    compression,
		BaseDir:        cfg.DataDir,
		IntervalSuffix: cfg.IntervalSuffix(),
	})
	if err != nil {
		return err
	}

	tokens := auth.NewTokenManager(
		cfg.TradeStation.ClientID,
		cfg.TradeStation.ClientSecret,
		cfg.TradeStation.RefreshToken,
		auth.WithLogger(log),
	)

	retry := apperrors.NewRetryPolicy(log)
	if cfg.MaxRetries > 0 {
		retry.MaxAttemptsTransient = cfg.MaxRetries + 1
	}

	client := exchange.NewClient(tokens, exchange.Config{
		Interval:       cfg.Interval,
		Unit:           cfg.Unit,
		MaxBarsPerPage: cfg.MaxBarsPerRequest,
		RateLimitDelay: cfg.RateLimitDelay,
		Retry:          retry,
		Logger:         log,
	})

	plan := planner.New(backend, startDate,
		planner.WithFull(downloadFull),
		planner.WithLogger(log),
	)

	dl := downloader.New(plan, client, backend, log)

	symbols := downloadSymbols
	if len(symbols) == 0 {
		symbols = cfg.ActiveSymbols()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := dl.Run(ctx, symbols)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "processed: %d  skipped: %d  bars: %d  elapsed: %s\n",
		stats.SymbolsProcessed, stats.SymbolsSkipped, stats.BarsDownloaded, stats.Elapsed().Round(time.Second))
	if failed := stats.FailedSymbols(); len(failed) > 0 {
		fmt.Fprintf(out, "failed: %v\n", failed)
	}

	if err != nil {
		return err
	}
	if len(stats.Errors) > 0 {
		return fmt.Errorf("%d symbol(s) failed", len(stats.FailedSymbols()))
	}
	return nil
}
