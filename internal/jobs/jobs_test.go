package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMaintenance struct {
	tombstoneCutoff time.Time
	conflictCutoff  time.Time
	err             error
	tombstoneCalls  int
	conflictCalls   int
}

func (f *fakeMaintenance) PurgeTombstones(ctx context.Context, cutoff time.Time) (int, error) {
	f.tombstoneCalls++
	f.tombstoneCutoff = cutoff
	return 2, f.err
}

func (f *fakeMaintenance) PurgeConflicts(ctx context.Context, cutoff time.Time) (int, error) {
	f.conflictCalls++
	f.conflictCutoff = cutoff
	return 1, nil
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := NewScheduler(testLogger(), time.Second)

	var runs atomic.Int32
	require.NoError(t, s.Add("@every 1s", "tick", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("errors do not stop the schedule")
	}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(testLogger(), 0)

	err := s.Add("every now and then", "bad", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := NewScheduler(testLogger(), 0)

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Add("@every 1s", "slow", func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	s.Start()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}

	s.Stop()
	assert.True(t, cancelled.Load())
}

func TestRetention_Run(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeMaintenance{}
	r := NewRetention(store, 30*24*time.Hour, 90*24*time.Hour, testLogger())
	r.now = func() time.Time { return now }

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, now.Add(-30*24*time.Hour), store.tombstoneCutoff)
	assert.Equal(t, now.Add(-90*24*time.Hour), store.conflictCutoff)
}

func TestRetention_DisabledKinds(t *testing.T) {
	store := &fakeMaintenance{}
	r := NewRetention(store, 0, time.Hour, testLogger())

	require.NoError(t, r.Run(context.Background()))

	assert.Zero(t, store.tombstoneCalls)
	assert.Equal(t, 1, store.conflictCalls)
}

func TestRetention_StorageError(t *testing.T) {
	store := &fakeMaintenance{err: errors.New("disk I/O error")}
	r := NewRetention(store, time.Hour, time.Hour, testLogger())

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purge tombstones")
	assert.Zero(t, store.conflictCalls)
}
