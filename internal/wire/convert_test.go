package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/models"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestMutationRoundTrip(t *testing.T) {
	m := &models.MutationRecord{
		Seq:             42,
		EntityType:      models.EntityTypeTask,
		EntityID:        "T1",
		Operation:       models.OperationUpdate,
		Payload:         models.Fields{"status": json.RawMessage(`"done"`)},
		BaseVersion:     2,
		ClientTimestamp: t0,
		DeviceID:        "devA",
		Attempts:        3,
	}

	wire := ToMutation(m)
	assert.Equal(t, uint64(42), wire.MutationID)

	// device id берется из токена, а не из тела запроса
	back := FromMutation(wire, "devToken")
	assert.Equal(t, "devToken", back.DeviceID)
	assert.Zero(t, back.Attempts)
	assert.Equal(t, m.Payload, back.Payload)
	assert.Equal(t, m.BaseVersion, back.BaseVersion)
	assert.Equal(t, m.Operation, back.Operation)
}

func TestEntityRoundTrip(t *testing.T) {
	e := &models.Entity{
		ID:        "T1",
		FamilyID:  "fam",
		Type:      models.EntityTypeTask,
		Version:   4,
		UpdatedAt: t0,
		Fields:    models.Fields{"title": json.RawMessage(`"Dishes"`)},
		Stamps:    map[string]models.FieldStamp{"title": {At: t0, DeviceID: "devB"}},
	}

	back := FromEntity(ToEntity(e))
	assert.Equal(t, e, back)

	assert.Nil(t, ToEntity(nil))
	assert.Nil(t, FromEntity(nil))
}

func TestToResult(t *testing.T) {
	failed := ToResult(&applier.Result{Seq: 1, EntityID: "T1", Outcome: applier.OutcomeFailed, Code: models.CodeRejected, Reason: "bad"})
	assert.Equal(t, "failed", failed.Outcome)
	assert.Empty(t, failed.Strategy)
	assert.Nil(t, failed.ResolvedEntity)

	decision := &models.ConflictDecision{
		Strategy:  models.StrategyLastWriterWins,
		Discarded: models.Fields{"title": json.RawMessage(`"Mine"`)},
	}
	conflict := ToResult(&applier.Result{
		Seq: 2, EntityID: "T1", Outcome: applier.OutcomeConflict, Strategy: decision.Strategy,
		Decision: decision, Entity: &models.Entity{ID: "T1", Version: 5},
	})
	assert.Equal(t, "conflict", conflict.Outcome)
	assert.Equal(t, "last_writer_wins", conflict.Strategy)
	require.NotNil(t, conflict.ResolvedEntity)
	assert.Equal(t, int64(5), conflict.ResolvedEntity.Version)
	assert.Equal(t, `"Mine"`, string(conflict.Discarded["title"]))
}
