package version

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore простое in-memory хранилище версий для тестов
type memoryStore struct {
	versions map[string]int64
	setErr   error
	sets     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{versions: make(map[string]int64)}
}

func (m *memoryStore) Version(ctx context.Context, entityID string) (int64, error) {
	return m.versions[entityID], nil
}

func (m *memoryStore) SetVersion(ctx context.Context, entityID string, version int64) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.sets++
	m.versions[entityID] = version
	return nil
}

func TestTracker_CurrentVersion_Unknown(t *testing.T) {
	tracker := NewTracker(newMemoryStore())

	v, err := tracker.CurrentVersion(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestTracker_Bump(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		current   int64
		bumpTo    int64
		wantErr   error
		wantValue int64
		wantSets  int
	}{
		{name: "forward", current: 2, bumpTo: 3, wantValue: 3, wantSets: 1},
		{name: "jump forward", current: 2, bumpTo: 7, wantValue: 7, wantSets: 1},
		{name: "equal is no-op", current: 4, bumpTo: 4, wantValue: 4, wantSets: 0},
		{name: "regression rejected", current: 5, bumpTo: 4, wantErr: ErrVersionRegression, wantValue: 5, wantSets: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			store.versions["t1"] = tt.current
			tracker := NewTracker(store)

			err := tracker.Bump(ctx, "t1", tt.bumpTo)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantValue, store.versions["t1"])
			assert.Equal(t, tt.wantSets, store.sets)
		})
	}
}

func TestTracker_Next(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	tracker := NewTracker(store)

	for want := int64(1); want <= 3; want++ {
		got, err := tracker.Next(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestTracker_Bump_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("disk full")
	tracker := NewTracker(store)

	err := tracker.Bump(context.Background(), "t1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
