// Package planner derives the minimal fetch window for a symbol by
// comparing the configured start date with what storage already holds.
// Re-deriving the window from persisted state on every run is what makes
// repeated incremental runs idempotent; no iterator checkpointing exists.
package planner

import (
	"context"
	"log/slog"
	"time"

	"github.com/tsquant/go-bars-collector/internal/models"
	"github.com/tsquant/go-bars-collector/internal/storage"
)

// barInterval is the resolution of stored bars; the incremental window
// starts one interval after the newest stored timestamp.
const barInterval = time.Minute

// Planner computes fetch windows against a storage backend.
type Planner struct {
	backend   storage.Backend
	startDate time.Time
	full      bool
	logger    *slog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// Option customizes a Planner.
type Option func(*Planner)

// WithFull forces planning from the configured start date, ignoring stored
// data (a full run).
func WithFull(full bool) Option {
	return func(p *Planner) { p.full = full }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.logger = l }
}

// New creates a Planner fetching from startDate onward.
func New(backend storage.Backend, startDate time.Time, opts ...Option) *Planner {
	p := &Planner{
		backend:   backend,
		startDate: startDate.UTC(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns the window [start, now) still needing a fetch for symbol, or
// nil when the symbol is already up to date. Start is the configured start
// date on a first or full run, otherwise one minute after the newest stored
// timestamp; already-stored bars are never re-fetched.
func (p *Planner) Plan(ctx context.Context, symbol string) (*models.FetchWindow, error) {
	start := p.startDate

	if !p.full {
		latest, ok, err := p.backend.LatestTimestamp(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if ok {
			start = latest.Add(barInterval)
			p.logger.Debug("existing data found",
				"symbol", symbol,
				"latest", latest,
				"resume_from", start)
		}
	}

	end := p.now().UTC().Truncate(barInterval)
	if !start.Before(end) {
		return nil, nil
	}

	return &models.FetchWindow{Symbol: symbol, Start: start, End: end}, nil
}
