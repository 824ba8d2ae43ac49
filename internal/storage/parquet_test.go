package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsquant/go-bars-collector/internal/models"
)

func openBackend(t *testing.T, format Format) Backend {
	t.Helper()
	b, err := Open(Descriptor{
		Format:      format,
		Compression: CompressionSnappy,
		BaseDir:     t.TempDir(),
	})
	require.NoError(t, err)
	return b
}

func minuteBars(start time.Time, n int) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      100 + float64(i),
			High:      101 + float64(i),
			Low:       99 + float64(i),
			Close:     100.5 + float64(i),
			Volume:    int64(10 * (i + 1)),
		}
	}
	return bars
}

func TestLatestTimestampEmpty(t *testing.T) {
	for _, format := range []Format{FormatSingle, FormatDaily, FormatMonthly} {
		t.Run(string(format), func(t *testing.T) {
			b := openBackend(t, format)
			_, ok, err := b.LatestTimestamp(context.Background(), "@ES")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestWriteBarsRoundTrip(t *testing.T) {
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	for _, format := range []Format{FormatSingle, FormatDaily, FormatMonthly} {
		t.Run(string(format), func(t *testing.T) {
			b := openBackend(t, format)
			ctx := context.Background()

			require.NoError(t, b.WriteBars(ctx, "@ES", minuteBars(start, 3)))

			latest, ok, err := b.LatestTimestamp(ctx, "@ES")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, start.Add(2*time.Minute), latest)
		})
	}
}

func TestWriteBarsIdempotent(t *testing.T) {
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	for _, format := range []Format{FormatSingle, FormatDaily, FormatMonthly} {
		t.Run(string(format), func(t *testing.T) {
			dir := t.TempDir()
			b, err := Open(Descriptor{Format: format, Compression: CompressionNone, BaseDir: dir})
			require.NoError(t, err)
			ctx := context.Background()

			bars := minuteBars(start, 5)
			require.NoError(t, b.WriteBars(ctx, "@ES", bars))
			// Second write with the same range must be a no-op.
			require.NoError(t, b.WriteBars(ctx, "@ES", bars))
			// Overlapping write: first three duplicate, last two new.
			require.NoError(t, b.WriteBars(ctx, "@ES", minuteBars(start.Add(2*time.Minute), 5)))

			rows := readAllRows(t, dir)
			assert.Len(t, rows, 7, "no duplicates across overlapping writes")
			for i := 1; i < len(rows); i++ {
				assert.Greater(t, rows[i].Datetime, rows[i-1].Datetime, "strictly increasing timestamps")
			}
		})
	}
}

func TestDailyPartitionBoundary(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(Descriptor{Format: FormatDaily, Compression: CompressionNone, BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	bars := []models.Bar{
		{Timestamp: time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Timestamp: time.Date(2024, 1, 11, 0, 1, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 2},
	}
	require.NoError(t, b.WriteBars(ctx, "@ES", bars))

	day10 := filepath.Join(dir, "ES", "year=2024", "month=01", "day=10", "ES.parquet")
	day11 := filepath.Join(dir, "ES", "year=2024", "month=01", "day=11", "ES.parquet")

	rows10, err := parquet.ReadFile[barRow](day10)
	require.NoError(t, err)
	rows11, err := parquet.ReadFile[barRow](day11)
	require.NoError(t, err)

	require.Len(t, rows10, 1)
	require.Len(t, rows11, 1)
	assert.Equal(t, bars[0].Timestamp.UnixMilli(), rows10[0].Datetime)
	assert.Equal(t, bars[1].Timestamp.UnixMilli(), rows11[0].Datetime)

	latest, ok, err := b.LatestTimestamp(ctx, "@ES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bars[1].Timestamp, latest)
}

func TestMonthlyPartitionBoundary(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(Descriptor{Format: FormatMonthly, Compression: CompressionNone, BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	bars := []models.Bar{
		{Timestamp: time.Date(2023, 12, 31, 23, 59, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 1},
		{Timestamp: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), Open: 1, High: 2, Low: 1, Close: 2, Volume: 2},
	}
	require.NoError(t, b.WriteBars(ctx, "@ES", bars))

	dec, err := parquet.ReadFile[barRow](filepath.Join(dir, "ES", "year_month=2023-12", "data.parquet"))
	require.NoError(t, err)
	jan, err := parquet.ReadFile[barRow](filepath.Join(dir, "ES", "year_month=2024-01", "data.parquet"))
	require.NoError(t, err)

	assert.Len(t, dec, 1)
	assert.Len(t, jan, 1)

	latest, ok, err := b.LatestTimestamp(ctx, "@ES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bars[1].Timestamp, latest)
}

func TestLatestReflectsNewestPartition(t *testing.T) {
	b := openBackend(t, FormatDaily)
	ctx := context.Background()

	// Three separate days written over three calls.
	for day := 10; day <= 12; day++ {
		start := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
		require.NoError(t, b.WriteBars(ctx, "@ES", minuteBars(start, 2)))
	}

	latest, ok, err := b.LatestTimestamp(ctx, "@ES")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 12, 12, 1, 0, 0, time.UTC), latest)
}

func TestSymbolsAreIsolated(t *testing.T) {
	b := openBackend(t, FormatSingle)
	ctx := context.Background()
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	require.NoError(t, b.WriteBars(ctx, "@ES", minuteBars(start, 2)))

	_, ok, err := b.LatestTimestamp(ctx, "@NQ")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompressionVariants(t *testing.T) {
	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	for _, c := range []Compression{CompressionZstd, CompressionSnappy, CompressionGzip, CompressionLz4, CompressionNone} {
		t.Run(string(c), func(t *testing.T) {
			b, err := Open(Descriptor{Format: FormatSingle, Compression: c, BaseDir: t.TempDir()})
			require.NoError(t, err)
			ctx := context.Background()

			require.NoError(t, b.WriteBars(ctx, "@ES", minuteBars(start, 4)))
			latest, ok, err := b.LatestTimestamp(ctx, "@ES")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, start.Add(3*time.Minute), latest)
		})
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(Descriptor{Format: FormatSingle, Compression: CompressionNone, BaseDir: dir})
	require.NoError(t, err)

	start := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.WriteBars(context.Background(), "@ES", minuteBars(start, 2)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

// readAllRows collects every parquet row under dir in timestamp order.
func readAllRows(t *testing.T, dir string) []barRow {
	t.Helper()
	var rows []barRow
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".parquet" {
			return nil
		}
		fileRows, err := parquet.ReadFile[barRow](path)
		if err != nil {
			return err
		}
		rows = append(rows, fileRows...)
		return nil
	})
	require.NoError(t, err)
	sortRows(rows)
	return rows
}

func sortRows(rows []barRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].Datetime < rows[j-1].Datetime; j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}
