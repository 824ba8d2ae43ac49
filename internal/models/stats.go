package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SymbolError records a per-symbol failure without aborting the run.
type SymbolError struct {
	Symbol  string
	Message string
}

// Error implements the error interface for SymbolError.
func (e SymbolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Symbol, e.Message)
}

// DownloadStats accumulates the outcome of one download run. It is mutated
// by the downloader while the run is in progress and read-only afterward.
type DownloadStats struct {
	RunID            string
	BarsDownloaded   int64
	SymbolsProcessed int
	SymbolsSkipped   int
	Errors           []SymbolError
	StartTime        time.Time
	EndTime          time.Time
}

// NewDownloadStats creates stats for a new run with a unique run identifier.
func NewDownloadStats(start time.Time) *DownloadStats {
	return &DownloadStats{
		RunID:     uuid.NewString(),
		StartTime: start,
	}
}

// RecordError appends a per-symbol failure.
func (s *DownloadStats) RecordError(symbol string, err error) {
	s.Errors = append(s.Errors, SymbolError{Symbol: symbol, Message: err.Error()})
}

// Elapsed returns the wall-clock duration of the run so far.
func (s *DownloadStats) Elapsed() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// FailedSymbols returns the symbols that recorded at least one error.
func (s *DownloadStats) FailedSymbols() []string {
	if len(s.Errors) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(s.Errors))
	symbols := make([]string, 0, len(s.Errors))
	for _, e := range s.Errors {
		if !seen[e.Symbol] {
			seen[e.Symbol] = true
			symbols = append(symbols, e.Symbol)
		}
	}
	return symbols
}
