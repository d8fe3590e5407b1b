package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/famsync/internal/models"
)

func TestMaterialize(t *testing.T) {
	server := []*models.Entity{
		{ID: "t1", Type: models.EntityTypeTask, Version: 3, UpdatedAt: t0, Fields: models.Fields{"title": json.RawMessage(`"Dishes"`), "status": json.RawMessage(`"open"`)}},
		{ID: "t2", Type: models.EntityTypeTask, Version: 1, UpdatedAt: t0, Fields: title("Laundry")},
	}
	pending := []*models.MutationRecord{
		{Seq: 1, EntityID: "t1", EntityType: models.EntityTypeTask, Operation: models.OperationUpdate, Payload: models.Fields{"status": json.RawMessage(`"done"`)}, ClientTimestamp: t0.Add(time.Hour)},
		{Seq: 2, EntityID: "t3", EntityType: models.EntityTypeTask, Operation: models.OperationCreate, Payload: title("Groceries"), ClientTimestamp: t0.Add(time.Hour)},
		{Seq: 3, EntityID: "t2", EntityType: models.EntityTypeTask, Operation: models.OperationDelete, ClientTimestamp: t0.Add(time.Hour)},
		{Seq: 4, EntityID: "t9", EntityType: models.EntityTypeTask, Operation: models.OperationDelete, ClientTimestamp: t0.Add(time.Hour)},
	}

	view := Materialize(server, pending)

	require.Len(t, view, 3)
	assert.Equal(t, "t1", view[0].ID)
	assert.Equal(t, `"done"`, string(view[0].Fields["status"]))
	assert.Equal(t, `"Dishes"`, string(view[0].Fields["title"]))
	assert.Equal(t, int64(3), view[0].Version, "overlay never changes the version")

	assert.Equal(t, "t2", view[1].ID)
	assert.True(t, view[1].Deleted)

	assert.Equal(t, "t3", view[2].ID)
	assert.Equal(t, int64(0), view[2].Version)
	assert.Equal(t, `"Groceries"`, string(view[2].Fields["title"]))

	// Входные данные не меняются
	assert.Equal(t, `"open"`, string(server[0].Fields["status"]))
	assert.False(t, server[1].Deleted)
}

func TestMaterialize_EditOverTombstoneStaysDeleted(t *testing.T) {
	server := []*models.Entity{
		{ID: "t1", Type: models.EntityTypeTask, Version: 4, Deleted: true, Fields: title("Dishes")},
	}
	pending := []*models.MutationRecord{
		{Seq: 1, EntityID: "t1", Operation: models.OperationUpdate, Payload: title("Dishes!")},
	}

	view := Materialize(server, pending)

	require.Len(t, view, 1)
	assert.True(t, view[0].Deleted)
	assert.Equal(t, `"Dishes"`, string(view[0].Fields["title"]))
}

func TestMaterializeEntity(t *testing.T) {
	pending := []*models.MutationRecord{
		{Seq: 1, EntityID: "t1", EntityType: models.EntityTypeTask, Operation: models.OperationCreate, Payload: title("Dishes")},
		{Seq: 2, EntityID: "t2", EntityType: models.EntityTypeTask, Operation: models.OperationCreate, Payload: title("Other")},
		{Seq: 3, EntityID: "t1", EntityType: models.EntityTypeTask, Operation: models.OperationUpdate, Payload: title("Dishes!")},
	}

	e := MaterializeEntity("t1", nil, pending)
	require.NotNil(t, e)
	assert.Equal(t, `"Dishes!"`, string(e.Fields["title"]))

	assert.Nil(t, MaterializeEntity("t5", nil, pending))
}
