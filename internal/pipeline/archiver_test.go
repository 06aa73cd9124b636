package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomelab/predengine/internal/domain"
)

type fakeBlobArchiver struct {
	tradeRuns int
	swapRuns  int
	cutoff    time.Time
}

func (f *fakeBlobArchiver) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	f.tradeRuns++
	f.cutoff = before
	return 3, nil
}

func (f *fakeBlobArchiver) ArchiveSwaps(context.Context, time.Time) (int64, error) {
	f.swapRuns++
	return 1, nil
}

// fakeLocks grants or denies every acquisition and counts releases.
type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunArchivesBothHistories(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := &fakeLocks{}
	arch := NewArchiver(blob, locks, 90, testLogger())

	require.NoError(t, arch.Run(context.Background()))
	assert.Equal(t, 1, blob.tradeRuns)
	assert.Equal(t, 1, blob.swapRuns)
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)

	// The cutoff honors the retention window.
	want := time.Now().UTC().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, want, blob.cutoff, time.Minute)
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	blob := &fakeBlobArchiver{}
	locks := &fakeLocks{held: true}
	arch := NewArchiver(blob, locks, 90, testLogger())

	// Another process archiving is not an error, just a no-op here.
	require.NoError(t, arch.Run(context.Background()))
	assert.Zero(t, blob.tradeRuns)
	assert.Zero(t, blob.swapRuns)
}

func TestRunWithoutLockManager(t *testing.T) {
	blob := &fakeBlobArchiver{}
	arch := NewArchiver(blob, nil, 30, testLogger())

	require.NoError(t, arch.Run(context.Background()))
	assert.Equal(t, 1, blob.tradeRuns)
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 29, 2, 30, 0, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC), next)

	_, err = nextCronTime("0 3 * *", after)
	require.Error(t, err)
}
