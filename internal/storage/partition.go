package storage

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/tsquant/go-bars-collector/internal/models"
)

// Partition path derivation is a pure function of (symbol, timestamp,
// format) so it can be tested without touching the filesystem.

// sanitizeSymbol maps an instrument identifier to a filesystem-safe name.
// Continuous-futures roots carry a leading "@" which is dropped; separators
// that would nest directories are replaced.
func sanitizeSymbol(symbol string) string {
	s := strings.TrimPrefix(symbol, "@")
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}

// partitionStart truncates ts to the start of its partition period. For the
// single-file layout every timestamp maps to the zero partition.
func partitionStart(ts time.Time, format Format) time.Time {
	ts = ts.UTC()
	switch format {
	case FormatDaily:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	case FormatMonthly:
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}
	}
}

// barFilePath derives the file a bar at ts belongs to under the descriptor's
// layout:
//
//	single:  {dir}/{SYM}_{suffix}.parquet
//	daily:   {dir}/{SYM}/year=2006/month=01/day=02/{SYM}.parquet
//	monthly: {dir}/{SYM}/year_month=2006-01/data.parquet
func barFilePath(desc Descriptor, symbol string, ts time.Time) string {
	sym := sanitizeSymbol(symbol)
	switch desc.Format {
	case FormatDaily:
		ts = ts.UTC()
		return filepath.Join(desc.BaseDir, sym,
			ts.Format("year=2006"), ts.Format("month=01"), ts.Format("day=02"),
			sym+".parquet")
	case FormatMonthly:
		ts = ts.UTC()
		return filepath.Join(desc.BaseDir, sym,
			ts.Format("year_month=2006-01"), "data.parquet")
	default:
		return filepath.Join(desc.BaseDir, sym+"_"+desc.IntervalSuffix+".parquet")
	}
}

// symbolDir returns the directory holding a symbol's partitions. Only
// meaningful for the partitioned layouts.
func symbolDir(desc Descriptor, symbol string) string {
	return filepath.Join(desc.BaseDir, sanitizeSymbol(symbol))
}

// partitionGroup is a run of consecutive bars falling into one partition.
type partitionGroup struct {
	start time.Time
	bars  []models.Bar
}

// splitByPartition splits an ascending bar sequence at partition boundaries,
// preserving order. Bars arriving for the single-file layout form one group.
func splitByPartition(bars []models.Bar, format Format) []partitionGroup {
	if len(bars) == 0 {
		return nil
	}
	if format == FormatSingle {
		return []partitionGroup{{bars: bars}}
	}

	var groups []partitionGroup
	groupStart := 0
	current := partitionStart(bars[0].Timestamp, format)
	for i := 1; i < len(bars); i++ {
		p := partitionStart(bars[i].Timestamp, format)
		if !p.Equal(current) {
			groups = append(groups, partitionGroup{start: current, bars: bars[groupStart:i]})
			groupStart = i
			current = p
		}
	}
	groups = append(groups, partitionGroup{start: current, bars: bars[groupStart:]})
	return groups
}
