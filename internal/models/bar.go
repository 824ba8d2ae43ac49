// Package models provides the core data structures for historical market
// data collection: OHLCV bars, fetch windows, and per-run statistics.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents one OHLCV record at a fixed time interval. Timestamps are
// UTC at minute resolution; prices use the float64 schema of the persisted
// parquet files.
type Bar struct {
	Timestamp time.Time `json:"datetime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// ValidationError reports a bar field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Validate checks the structural invariants of a bar: a non-zero UTC
// timestamp, positive prices, non-negative volume, and correct OHLC
// relationships (high >= max(open, close), low <= min(open, close)).
func (b *Bar) Validate() error {
	if b.Timestamp.IsZero() {
		return &ValidationError{Field: "datetime", Message: "timestamp cannot be zero"}
	}
	if b.Open <= 0 {
		return &ValidationError{Field: "open", Message: "open price must be greater than 0"}
	}
	if b.High <= 0 {
		return &ValidationError{Field: "high", Message: "high price must be greater than 0"}
	}
	if b.Low <= 0 {
		return &ValidationError{Field: "low", Message: "low price must be greater than 0"}
	}
	if b.Close <= 0 {
		return &ValidationError{Field: "close", Message: "close price must be greater than 0"}
	}
	if b.Volume < 0 {
		return &ValidationError{Field: "volume", Message: "volume must be greater than or equal to 0"}
	}
	maxOC := b.Open
	if b.Close > maxOC {
		maxOC = b.Close
	}
	if b.High < maxOC {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%g) must be greater than or equal to max(open, close) (%g)", b.High, maxOC),
		}
	}
	minOC := b.Open
	if b.Close < minOC {
		minOC = b.Close
	}
	if b.Low > minOC {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%g) must be less than or equal to min(open, close) (%g)", b.Low, minOC),
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (b *Bar) String() string {
	return fmt.Sprintf("Bar{Timestamp: %s, O: %g, H: %g, L: %g, C: %g, V: %d}",
		b.Timestamp.Format(time.RFC3339), b.Open, b.High, b.Low, b.Close, b.Volume)
}

// BarFromStrings builds a validated Bar from the decimal strings returned by
// the quote API. Prices are parsed through decimal.Decimal so malformed
// payloads are rejected before any lossy float conversion.
func BarFromStrings(timestamp time.Time, open, high, low, close, volume string) (Bar, error) {
	fields := []struct {
		name  string
		value string
	}{
		{"open", open},
		{"high", high},
		{"low", low},
		{"close", close},
	}

	prices := make([]float64, len(fields))
	for i, f := range fields {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return Bar{}, &ValidationError{Field: f.name, Message: fmt.Sprintf("invalid price %q: %v", f.value, err)}
		}
		prices[i], _ = d.Float64()
	}

	vol, err := decimal.NewFromString(volume)
	if err != nil {
		return Bar{}, &ValidationError{Field: "volume", Message: fmt.Sprintf("invalid volume %q: %v", volume, err)}
	}

	bar := Bar{
		Timestamp: timestamp.UTC().Truncate(time.Minute),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    vol.IntPart(),
	}

	if err := bar.Validate(); err != nil {
		return Bar{}, err
	}
	return bar, nil
}

// FetchWindow is the half-open time range [Start, End) that still needs
// fetching for a symbol. It is produced by the planner and consumed exactly
// once by the fetcher.
type FetchWindow struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// IsEmpty reports whether the window contains no fetchable interval.
func (w FetchWindow) IsEmpty() bool {
	return !w.Start.Before(w.End)
}

// String implements fmt.Stringer.
func (w FetchWindow) String() string {
	return fmt.Sprintf("FetchWindow{%s [%s, %s)}",
		w.Symbol, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}
