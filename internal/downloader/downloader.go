// Package downloader orchestrates a download run: for each requested
// symbol it plans the missing window, streams fetched pages into storage,
// and accumulates statistics. One symbol failing never aborts the batch;
// only a broken credential chain stops the whole run.
package downloader

import (
	"context"
	"log/slog"
	"time"

	"github.com/tsquant/go-bars-collector/internal/apperrors"
	"github.com/tsquant/go-bars-collector/internal/models"
	"github.com/tsquant/go-bars-collector/internal/planner"
	"github.com/tsquant/go-bars-collector/internal/storage"
)

// Fetcher is the paginated bar source. Each call to fn receives one fully
// fetched page in ascending order.
type Fetcher interface {
	FetchPages(ctx context.Context, window models.FetchWindow, fn func([]models.Bar) error) error
}

// Downloader runs the plan/fetch/store pipeline over a symbol set with a
// single sequential worker.
type Downloader struct {
	planner *planner.Planner
	fetcher Fetcher
	backend storage.Backend
	logger  *slog.Logger
}

// New wires a Downloader from its collaborators.
func New(p *planner.Planner, f Fetcher, b storage.Backend, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{planner: p, fetcher: f, backend: b, logger: logger}
}

// Run processes symbols sequentially and returns the run statistics. Every
// per-symbol error is recorded in the stats and processing continues; an
// authentication error aborts immediately since no further symbol can be
// fetched, and the stats collected so far are returned alongside it.
func (d *Downloader) Run(ctx context.Context, symbols []string) (*models.DownloadStats, error) {
	stats := models.NewDownloadStats(time.Now())

	d.logger.Info("starting download run",
		"run_id", stats.RunID,
		"symbols", len(symbols))

	for i, symbol := range symbols {
		d.logger.Info("processing symbol",
			"run_id", stats.RunID,
			"symbol", symbol,
			"position", i+1,
			"total", len(symbols))

		if err := ctx.Err(); err != nil {
			stats.EndTime = time.Now()
			return stats, err
		}

		if err := d.processSymbol(ctx, symbol, stats); err != nil {
			if apperrors.IsAuth(err) {
				stats.RecordError(symbol, err)
				stats.EndTime = time.Now()
				d.logger.Error("authentication failed, aborting run",
					"run_id", stats.RunID, "symbol", symbol, "error", err)
				return stats, err
			}
			stats.RecordError(symbol, err)
			d.logger.Error("symbol failed, continuing",
				"run_id", stats.RunID, "symbol", symbol, "error", err)
			continue
		}
	}

	stats.EndTime = time.Now()
	d.logSummary(stats)
	return stats, nil
}

// processSymbol runs one symbol through the pipeline. Pages are written as
// they arrive so an interruption between pages loses nothing committed.
func (d *Downloader) processSymbol(ctx context.Context, symbol string, stats *models.DownloadStats) error {
	window, err := d.planner.Plan(ctx, symbol)
	if err != nil {
		return err
	}
	if window == nil {
		d.logger.Info("already up to date", "symbol", symbol)
		stats.SymbolsProcessed++
		stats.SymbolsSkipped++
		return nil
	}

	d.logger.Info("fetching", "symbol", symbol, "window", window.String())

	var written int64
	err = d.fetcher.FetchPages(ctx, *window, func(page []models.Bar) error {
		if err := d.backend.WriteBars(ctx, symbol, page); err != nil {
			return err
		}
		written += int64(len(page))
		return nil
	})
	if err != nil {
		// Pages written before the failure stay committed; count them.
		stats.BarsDownloaded += written
		return err
	}

	stats.BarsDownloaded += written
	stats.SymbolsProcessed++
	d.logger.Info("symbol complete", "symbol", symbol, "bars", written)
	return nil
}

func (d *Downloader) logSummary(stats *models.DownloadStats) {
	d.logger.Info("download run complete",
		"run_id", stats.RunID,
		"symbols_processed", stats.SymbolsProcessed,
		"symbols_skipped", stats.SymbolsSkipped,
		"bars_downloaded", stats.BarsDownloaded,
		"errors", len(stats.Errors),
		"elapsed", stats.Elapsed())
	if failed := stats.FailedSymbols(); len(failed) > 0 {
		d.logger.Warn("failed symbols", "run_id", stats.RunID, "symbols", failed)
	}
}
