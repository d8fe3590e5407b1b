package data

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/client/storage/boltdb"
	"github.com/iudanet/famsync/internal/clock"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/validation"
)

func newTestService(t *testing.T) (Service, *boltdb.Storage) {
	t.Helper()
	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "famsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, clock.New(time.Millisecond), logger), store
}

// confirm imitates a sync round-trip for everything queued so far
func confirm(t *testing.T, store *boltdb.Storage, version int64) {
	t.Helper()
	ctx := context.Background()
	pending, err := store.Pending(ctx)
	require.NoError(t, err)

	require.NoError(t, store.WithReconcileTx(ctx, func(tx storage.ReconcileTx) error {
		seqs := make([]uint64, 0, len(pending))
		for _, m := range pending {
			e := &models.Entity{
				ID:       m.EntityID,
				FamilyID: "fam",
				Type:     m.EntityType,
				Version:  version,
				Fields:   m.Payload,
				Deleted:  m.Operation == models.OperationDelete,
			}
			if _, err := applier.MergeAuthoritative(ctx, tx, e); err != nil {
				return err
			}
			seqs = append(seqs, m.Seq)
		}
		return tx.Commit(ctx, seqs)
	}))
}

func TestService_AddTask(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	id, err := svc.AddTask(ctx, &models.Task{Title: "Dishes", Assignee: "bob", Points: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	m := pending[0]
	assert.Equal(t, models.OperationCreate, m.Operation)
	assert.Equal(t, int64(0), m.BaseVersion)
	assert.Equal(t, `"open"`, string(m.Payload["status"]))
	assert.False(t, m.ClientTimestamp.IsZero())

	deviceID, err := store.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, deviceID, m.DeviceID)

	item, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dishes", item.Value.Title)
	assert.True(t, item.Pending)
	assert.Equal(t, int64(0), item.Version)
}

func TestService_AddTask_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddTask(context.Background(), &models.Task{})
	assert.Error(t, err)
}

func TestService_OversizedEditFailsAtAppend(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, err := svc.AddTask(ctx, &models.Task{
		Title:       "Plan holiday",
		Description: strings.Repeat("x", 5<<20),
	})
	require.ErrorIs(t, err, validation.ErrInvalidMutation)

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing is queued")
}

func TestService_UpdateUsesKnownVersion(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	id, err := svc.AddTask(ctx, &models.Task{Title: "Dishes"})
	require.NoError(t, err)
	confirm(t, store, 3)

	require.NoError(t, svc.CompleteTask(ctx, id))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(3), pending[0].BaseVersion)
	assert.Equal(t, models.Fields{"status": pending[0].Payload["status"]}, pending[0].Payload, "only the changed field is sent")

	item, err := svc.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, item.Value.Status)
	assert.Equal(t, "Dishes", item.Value.Title)
	assert.Equal(t, int64(3), item.Version)
}

func TestService_TimestampsIncrease(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	id, err := svc.AddTask(ctx, &models.Task{Title: "Dishes"})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateTask(ctx, id, &models.Task{Title: "Dishes!"}))
	require.NoError(t, svc.UpdateTask(ctx, id, &models.Task{Title: "Dishes!!"}))

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i := 1; i < len(pending); i++ {
		assert.True(t, pending[i].ClientTimestamp.After(pending[i-1].ClientTimestamp))
	}
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	id, err := svc.AddTask(ctx, &models.Task{Title: "Dishes"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, models.EntityTypeTask, id))

	_, err = svc.GetTask(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	tasks, err := svc.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.ErrorIs(t, svc.Delete(ctx, models.EntityTypeTask, id), ErrNotFound)
}

func TestService_WrongTypeIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	id, err := svc.AddEvent(ctx, &models.Event{Title: "Dentist"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.CompleteTask(ctx, id), ErrNotFound)
}

func TestService_ListOverlaysPending(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	first, err := svc.AddTask(ctx, &models.Task{Title: "Dishes"})
	require.NoError(t, err)
	confirm(t, store, 1)

	second, err := svc.AddTask(ctx, &models.Task{Title: "Laundry"})
	require.NoError(t, err)
	require.NoError(t, svc.UpdateTask(ctx, first, &models.Task{Assignee: "bob"}))

	tasks, err := svc.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	assert.Equal(t, first, tasks[0].ID)
	assert.Equal(t, "bob", tasks[0].Value.Assignee)
	assert.True(t, tasks[0].Pending)
	assert.Equal(t, second, tasks[1].ID)
}

func TestService_PointsAreAppendOnly(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, err := svc.AwardPoints(ctx, &models.PointsEntry{Member: "bob", Amount: 10, Reason: "dishes"})
	require.NoError(t, err)
	_, err = svc.AwardPoints(ctx, &models.PointsEntry{Member: "bob", Amount: -3, Reason: "ice cream"})
	require.NoError(t, err)
	_, err = svc.AwardPoints(ctx, &models.PointsEntry{Member: "alice", Amount: 7})
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	_, err = svc.AwardPoints(ctx, &models.PointsEntry{Member: "bob"})
	assert.Error(t, err)

	count, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestService_Badges(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.GrantBadge(ctx, &models.Badge{Member: "bob", Name: "Dish Master", Icon: "plate"})
	require.NoError(t, err)

	badges, err := svc.ListBadges(ctx)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "Dish Master", badges[0].Value.Name)
}

func TestService_AppendFailureSurfacesImmediately(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	require.NoError(t, store.Close())

	_, err := svc.AddTask(ctx, &models.Task{Title: "Dishes"})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestService_InvalidPatchRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	id, err := svc.AddTask(ctx, &models.Task{Title: "Dishes"})
	require.NoError(t, err)

	err = svc.UpdateTask(ctx, id, &models.Task{})
	assert.ErrorIs(t, err, validation.ErrInvalidMutation)
}
