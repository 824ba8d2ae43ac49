package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tsquant/go-bars-collector/internal/apperrors"
	"github.com/tsquant/go-bars-collector/internal/models"
)

// barRow is the on-disk row schema. Timestamps are stored as Unix
// milliseconds in UTC.
type barRow struct {
	Datetime int64   `parquet:"datetime"`
	Open     float64 `parquet:"open"`
	High     float64 `parquet:"high"`
	Low      float64 `parquet:"low"`
	Close    float64 `parquet:"close"`
	Volume   int64   `parquet:"volume"`
}

func toRow(b models.Bar) barRow {
	return barRow{
		Datetime: b.Timestamp.UTC().UnixMilli(),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   b.Volume,
	}
}

func rowTime(r barRow) time.Time {
	return time.UnixMilli(r.Datetime).UTC()
}

// parquetBackend implements Backend for all three layouts; the layout only
// changes path derivation and boundary splitting.
type parquetBackend struct {
	desc  Descriptor
	codec parquet.WriterOption
}

func newParquetBackend(desc Descriptor) (*parquetBackend, error) {
	codec, err := compressionOption(desc.Compression)
	if err != nil {
		return nil, err
	}
	return &parquetBackend{desc: desc, codec: codec}, nil
}

func compressionOption(c Compression) (parquet.WriterOption, error) {
	switch c {
	case CompressionZstd, "":
		return parquet.Compression(&parquet.Zstd), nil
	case CompressionSnappy:
		return parquet.Compression(&parquet.Snappy), nil
	case CompressionGzip:
		return parquet.Compression(&parquet.Gzip), nil
	case CompressionLz4:
		return parquet.Compression(&parquet.Lz4Raw), nil
	case CompressionNone:
		return parquet.Compression(&parquet.Uncompressed), nil
	default:
		return nil, fmt.Errorf("storage: unknown compression %q", c)
	}
}

// LatestTimestamp implements Backend.
func (p *parquetBackend) LatestTimestamp(ctx context.Context, symbol string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}

	path, ok, err := p.newestFile(symbol)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return time.Time{}, false, apperrors.NewStorageError("read", path, err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}

	latest := rows[0].Datetime
	for _, r := range rows[1:] {
		if r.Datetime > latest {
			latest = r.Datetime
		}
	}
	return time.UnixMilli(latest).UTC(), true, nil
}

// WriteBars implements Backend. Input bars must be in ascending timestamp
// order; each affected partition file is merged and rewritten atomically.
func (p *parquetBackend) WriteBars(ctx context.Context, symbol string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	for _, group := range splitByPartition(bars, p.desc.Format) {
		if err := ctx.Err(); err != nil {
			return err
		}
		ts := group.bars[0].Timestamp
		path := barFilePath(p.desc, symbol, ts)
		if err := p.mergeInto(path, group.bars); err != nil {
			return err
		}
	}
	return nil
}

// mergeInto appends bars newer than the file's stored maximum and rewrites
// the file. Existing rows are carried over untouched, never re-verified.
func (p *parquetBackend) mergeInto(path string, bars []models.Bar) error {
	var existing []barRow
	if _, err := os.Stat(path); err == nil {
		existing, err = parquet.ReadFile[barRow](path)
		if err != nil {
			return apperrors.NewStorageError("read", path, err)
		}
	} else if !os.IsNotExist(err) {
		return apperrors.NewStorageError("stat", path, err)
	}

	var maxStored int64 = -1
	for _, r := range existing {
		if r.Datetime > maxStored {
			maxStored = r.Datetime
		}
	}

	rows := existing
	for _, b := range bars {
		row := toRow(b)
		if row.Datetime <= maxStored {
			continue
		}
		rows = append(rows, row)
		maxStored = row.Datetime
	}
	if len(rows) == len(existing) {
		// Nothing new for this partition.
		return nil
	}

	return p.writeAtomic(path, rows)
}

// writeAtomic writes rows to a temp file in the target directory, fsyncs it
// and renames it over path, so a crash mid-write never leaves a partition
// claiming rows that were not flushed.
func (p *parquetBackend) writeAtomic(path string, rows []barRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.NewStorageError("mkdir", dir, err)
	}

	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows, p.codec); err != nil {
		os.Remove(tmp)
		return apperrors.NewStorageError("write", tmp, err)
	}

	f, err := os.Open(tmp)
	if err != nil {
		os.Remove(tmp)
		return apperrors.NewStorageError("open", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperrors.NewStorageError("sync", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperrors.NewStorageError("close", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return apperrors.NewStorageError("rename", path, err)
	}
	return nil
}

// newestFile locates the file holding the newest rows for a symbol. For the
// single-file layout that is the one file; for partitioned layouts the
// hive-style path segments sort lexicographically in time order, so the
// maximal directory chain holds the newest partition.
func (p *parquetBackend) newestFile(symbol string) (string, bool, error) {
	if p.desc.Format == FormatSingle {
		path := barFilePath(p.desc, symbol, time.Time{})
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return "", false, nil
			}
			return "", false, apperrors.NewStorageError("stat", path, err)
		}
		return path, true, nil
	}

	dir := symbolDir(p.desc, symbol)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, apperrors.NewStorageError("stat", dir, err)
	}

	path, err := newestParquetUnder(dir)
	if err != nil {
		return "", false, err
	}
	return path, path != "", nil
}

// newestParquetUnder descends into the lexicographically greatest entry at
// each level until it reaches a parquet file.
func newestParquetUnder(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", apperrors.NewStorageError("readdir", dir, err)
	}

	names := make([]string, 0, len(entries))
	isDir := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
			isDir[e.Name()] = true
			continue
		}
		if filepath.Ext(e.Name()) == ".parquet" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)

	// Walk candidates from greatest to least so an empty subtree falls
	// back to its predecessor.
	for i := len(names) - 1; i >= 0; i-- {
		child := filepath.Join(dir, names[i])
		if !isDir[names[i]] {
			return child, nil
		}
		found, err := newestParquetUnder(child)
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", nil
}
