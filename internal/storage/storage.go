// Package storage persists bar sequences as columnar parquet files under
// one of three partitioning layouts (single file, daily, monthly) selected
// at construction time. Writes are append-only, idempotent across repeated
// runs, and durable before returning.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tsquant/go-bars-collector/internal/models"
)

// Backend is the storage abstraction consumed by the planner and the
// downloader. LatestTimestamp must reflect every previously committed write.
type Backend interface {
	// LatestTimestamp returns the newest stored bar timestamp for a symbol.
	// The boolean is false when no data exists for the symbol.
	LatestTimestamp(ctx context.Context, symbol string) (time.Time, bool, error)

	// WriteBars appends bars for a symbol. It is safe to call repeatedly
	// with disjoint, increasing time ranges; rows are never reordered or
	// duplicated across calls, and bars at or before the stored maximum
	// are dropped. The write is durable when the call returns nil.
	WriteBars(ctx context.Context, symbol string, bars []models.Bar) error
}

// Format selects the partitioning scheme.
type Format string

const (
	FormatSingle  Format = "single"
	FormatDaily   Format = "daily"
	FormatMonthly Format = "monthly"
)

// ParseFormat converts a configuration string into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSingle:
		return FormatSingle, nil
	case FormatDaily:
		return FormatDaily, nil
	case FormatMonthly:
		return FormatMonthly, nil
	default:
		return "", fmt.Errorf("invalid storage format %q (valid: single, daily, monthly)", s)
	}
}

// Compression selects the parquet codec, orthogonal to partitioning.
type Compression string

const (
	CompressionZstd   Compression = "zstd"
	CompressionSnappy Compression = "snappy"
	CompressionGzip   Compression = "gzip"
	CompressionLz4    Compression = "lz4"
	CompressionNone   Compression = "none"
)

// ParseCompression converts a configuration string into a Compression.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case CompressionZstd:
		return CompressionZstd, nil
	case CompressionSnappy:
		return CompressionSnappy, nil
	case CompressionGzip:
		return CompressionGzip, nil
	case CompressionLz4:
		return CompressionLz4, nil
	case CompressionNone:
		return CompressionNone, nil
	default:
		return "", fmt.Errorf("invalid compression %q (valid: zstd, snappy, gzip, lz4, none)", s)
	}
}

// Descriptor fixes how a symbol's bars map to files. It is supplied once at
// backend construction.
type Descriptor struct {
	Format      Format
	Compression Compression
	BaseDir     string

	// IntervalSuffix names single-file outputs, e.g. "1min" for ES_1min.parquet.
	IntervalSuffix string
}

// Open constructs the Backend variant selected by the descriptor.
func Open(desc Descriptor) (Backend, error) {
	if desc.BaseDir == "" {
		return nil, fmt.Errorf("storage: base directory is required")
	}
	if desc.IntervalSuffix == "" {
		desc.IntervalSuffix = "1min"
	}
	switch desc.Format {
	case FormatSingle, FormatDaily, FormatMonthly:
		return newParquetBackend(desc)
	default:
		return nil, fmt.Errorf("storage: unknown format %q", desc.Format)
	}
}
