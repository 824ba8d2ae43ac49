package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsquant/go-bars-collector/internal/models"
)

// stubBackend reports a fixed latest timestamp.
type stubBackend struct {
	latest time.Time
	ok     bool
	err    error
	calls  int
}

func (s *stubBackend) LatestTimestamp(ctx context.Context, symbol string) (time.Time, bool, error) {
	s.calls++
	return s.latest, s.ok, s.err
}

func (s *stubBackend) WriteBars(ctx context.Context, symbol string, bars []models.Bar) error {
	return nil
}

var testNow = time.Date(2024, 1, 11, 12, 0, 30, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func TestPlanFirstRunStartsAtConfiguredDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := New(&stubBackend{}, start, WithClock(fixedNow))

	w, err := p.Plan(context.Background(), "@ES")
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.Equal(t, "@ES", w.Symbol)
	assert.Equal(t, start, w.Start)
	assert.Equal(t, testNow.Truncate(time.Minute), w.End, "end is now truncated to the minute")
}

func TestPlanResumesOneMinuteAfterLatest(t *testing.T) {
	latest := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	backend := &stubBackend{latest: latest, ok: true}
	p := New(backend, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), WithClock(fixedNow))

	w, err := p.Plan(context.Background(), "@ES")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, latest.Add(time.Minute), w.Start)
}

func TestPlanFullIgnoresStoredData(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	backend := &stubBackend{latest: time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC), ok: true}
	p := New(backend, start, WithFull(true), WithClock(fixedNow))

	w, err := p.Plan(context.Background(), "@ES")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, start, w.Start)
	assert.Zero(t, backend.calls, "full runs never consult storage")
}

func TestPlanNothingToDo(t *testing.T) {
	t.Run("latest at now", func(t *testing.T) {
		backend := &stubBackend{latest: testNow.Truncate(time.Minute).Add(-time.Minute), ok: true}
		p := New(backend, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), WithClock(fixedNow))

		w, err := p.Plan(context.Background(), "@ES")
		require.NoError(t, err)
		assert.Nil(t, w)
	})

	t.Run("latest ahead of now", func(t *testing.T) {
		backend := &stubBackend{latest: testNow.Add(time.Hour), ok: true}
		p := New(backend, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), WithClock(fixedNow))

		w, err := p.Plan(context.Background(), "@ES")
		require.NoError(t, err)
		assert.Nil(t, w)
	})

	t.Run("start date in the future", func(t *testing.T) {
		p := New(&stubBackend{}, testNow.Add(24*time.Hour), WithClock(fixedNow))

		w, err := p.Plan(context.Background(), "@ES")
		require.NoError(t, err)
		assert.Nil(t, w)
	})
}

func TestPlanPropagatesStorageError(t *testing.T) {
	storageErr := errors.New("disk exploded")
	p := New(&stubBackend{err: storageErr}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), WithClock(fixedNow))

	_, err := p.Plan(context.Background(), "@ES")
	assert.ErrorIs(t, err, storageErr)
}
