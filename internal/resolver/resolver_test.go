package resolver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/famsync/internal/models"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func raw(v string) json.RawMessage {
	return json.RawMessage(v)
}

func remoteTask(version int64, fields models.Fields, stamps map[string]models.FieldStamp) *models.Entity {
	return &models.Entity{
		ID:       "T1",
		FamilyID: "fam",
		Type:     models.EntityTypeTask,
		Version:  version,
		Fields:   fields,
		Stamps:   stamps,
	}
}

func localMutation(op models.Operation, base int64, at time.Time, device string, payload models.Fields) *models.MutationRecord {
	return &models.MutationRecord{
		EntityType:      models.EntityTypeTask,
		EntityID:        "T1",
		Operation:       op,
		Payload:         payload,
		BaseVersion:     base,
		ClientTimestamp: at,
		DeviceID:        device,
	}
}

func TestResolve_RemoteMissing(t *testing.T) {
	r := New()
	local := localMutation(models.OperationCreate, 0, t0, "devA", models.Fields{"title": raw(`"Dishes"`)})

	d := r.Resolve(local, nil)

	assert.Equal(t, models.StrategyNone, d.Strategy)
	assert.True(t, d.Changed)
	assert.False(t, d.Deleted)
	assert.Equal(t, `"Dishes"`, string(d.WinningPayload["title"]))
}

func TestResolve_DeletionPrecedence(t *testing.T) {
	r := New()
	fields := models.Fields{"title": raw(`"Dishes"`), "status": raw(`"open"`)}

	tests := []struct {
		local         *models.MutationRecord
		remote        *models.Entity
		name          string
		wantStrategy  models.Strategy
		wantChanged   bool
		wantDiscarded bool
	}{
		{
			name:         "local delete beats newer remote update",
			local:        localMutation(models.OperationDelete, 1, t0, "devA", nil),
			remote:       remoteTask(5, fields, map[string]models.FieldStamp{"title": {At: t0.Add(time.Hour), DeviceID: "devB"}}),
			wantStrategy: models.StrategyDeletionPrecedence,
			wantChanged:  true,
		},
		{
			name:          "remote tombstone beats local update",
			local:         localMutation(models.OperationUpdate, 1, t0.Add(time.Hour), "devA", models.Fields{"title": raw(`"Laundry"`)}),
			remote:        &models.Entity{ID: "T1", Type: models.EntityTypeTask, Version: 2, Deleted: true, Fields: fields},
			wantStrategy:  models.StrategyDeletionPrecedence,
			wantChanged:   false,
			wantDiscarded: true,
		},
		{
			name:         "both deleted is a no-op",
			local:        localMutation(models.OperationDelete, 5, t0, "devA", nil),
			remote:       &models.Entity{ID: "T1", Type: models.EntityTypeTask, Version: 6, Deleted: true, Fields: fields},
			wantStrategy: models.StrategyNoOp,
			wantChanged:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Resolve(tt.local, tt.remote)

			assert.Equal(t, tt.wantStrategy, d.Strategy)
			assert.True(t, d.Deleted, "resolved state must always be deleted")
			assert.Equal(t, tt.wantChanged, d.Changed)
			assert.Equal(t, tt.wantDiscarded, d.LocalDiscarded)
		})
	}
}

func TestResolve_DeletionPrecedence_AnyVersions(t *testing.T) {
	r := New()
	for base := int64(0); base < 4; base++ {
		for remoteVersion := int64(1); remoteVersion < 6; remoteVersion++ {
			local := localMutation(models.OperationDelete, base, t0, "devA", nil)
			remote := remoteTask(remoteVersion, models.Fields{"title": raw(`"x"`)}, nil)

			d := r.Resolve(local, remote)
			require.True(t, d.Deleted, "base=%d remote=%d", base, remoteVersion)
		}
	}
}

func TestResolve_FalseConflict(t *testing.T) {
	r := New()
	remote := remoteTask(4,
		models.Fields{"title": raw(`"Dishes"`), "status": raw(`"done"`)},
		map[string]models.FieldStamp{"status": {At: t0, DeviceID: "devA"}},
	)
	// Повторная отправка уже примененной правки
	local := localMutation(models.OperationUpdate, 3, t0, "devA", models.Fields{"status": raw(`"done"`)})

	d := r.Resolve(local, remote)

	assert.True(t, d.IsNoOp())
	assert.False(t, d.Changed)
	assert.False(t, d.LocalDiscarded)
	assert.Equal(t, remote.Fields, d.WinningPayload)
}

func TestResolve_StatusPrecedence(t *testing.T) {
	r := New()

	tests := []struct {
		name          string
		localStatus   string
		remoteStatus  string
		localAt       time.Time
		remoteAt      time.Time
		wantStatus    string
		wantDiscarded bool
	}{
		{
			name:         "local done beats newer remote open",
			localStatus:  `"done"`,
			remoteStatus: `"open"`,
			localAt:      t0,
			remoteAt:     t0.Add(time.Hour),
			wantStatus:   `"done"`,
		},
		{
			name:          "remote done beats newer local in_progress",
			localStatus:   `"in_progress"`,
			remoteStatus:  `"done"`,
			localAt:       t0.Add(time.Hour),
			remoteAt:      t0,
			wantStatus:    `"done"`,
			wantDiscarded: true,
		},
		{
			name:         "both non-terminal falls back to LWW (local newer)",
			localStatus:  `"in_progress"`,
			remoteStatus: `"open"`,
			localAt:      t0.Add(time.Hour),
			remoteAt:     t0,
			wantStatus:   `"in_progress"`,
		},
		{
			name:          "both non-terminal falls back to LWW (remote newer)",
			localStatus:   `"in_progress"`,
			remoteStatus:  `"open"`,
			localAt:       t0,
			remoteAt:      t0.Add(time.Hour),
			wantStatus:    `"open"`,
			wantDiscarded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := remoteTask(3,
				models.Fields{"status": raw(tt.remoteStatus)},
				map[string]models.FieldStamp{"status": {At: tt.remoteAt, DeviceID: "devB"}},
			)
			local := localMutation(models.OperationUpdate, 2, tt.localAt, "devA", models.Fields{"status": raw(tt.localStatus)})

			d := r.Resolve(local, remote)

			assert.Equal(t, tt.wantStatus, string(d.WinningPayload["status"]))
			assert.Equal(t, tt.wantDiscarded, d.LocalDiscarded)
			assert.Equal(t, !tt.wantDiscarded, d.Changed)
		})
	}
}

func TestResolve_StatusPrecedence_OnlyForTasks(t *testing.T) {
	r := New()
	remote := &models.Entity{
		ID:      "E1",
		Type:    models.EntityTypeEvent,
		Version: 3,
		Fields:  models.Fields{"status": raw(`"open"`)},
		Stamps:  map[string]models.FieldStamp{"status": {At: t0.Add(time.Hour), DeviceID: "devB"}},
	}
	local := localMutation(models.OperationUpdate, 2, t0, "devA", models.Fields{"status": raw(`"done"`)})
	local.EntityType = models.EntityTypeEvent

	d := r.Resolve(local, remote)

	assert.Equal(t, models.StrategyLastWriterWins, d.Strategy)
	assert.Equal(t, `"open"`, string(d.WinningPayload["status"]))
	assert.True(t, d.LocalDiscarded)
}

func TestResolve_FieldLevelMerge(t *testing.T) {
	r := New()
	// Клиент B уже поменял title; клиент A офлайн закрыл задачу
	remote := remoteTask(3,
		models.Fields{"title": raw(`"Updated title"`), "status": raw(`"open"`)},
		map[string]models.FieldStamp{
			"title":  {At: t0.Add(2 * time.Minute), DeviceID: "devB"},
			"status": {At: t0.Add(-time.Hour), DeviceID: "devB"},
		},
	)
	local := localMutation(models.OperationUpdate, 2, t0, "devA", models.Fields{"status": raw(`"done"`)})

	d := r.Resolve(local, remote)

	assert.True(t, d.Changed)
	assert.False(t, d.LocalDiscarded)
	assert.Equal(t, `"done"`, string(d.WinningPayload["status"]))
	assert.Equal(t, `"Updated title"`, string(d.WinningPayload["title"]))
	assert.Equal(t, models.StrategyStatusPrecedence, d.FieldStrategies["status"])
}

func TestResolve_LastWriterWins_PerField(t *testing.T) {
	r := New()
	remote := remoteTask(3,
		models.Fields{"title": raw(`"Remote title"`), "description": raw(`"Remote desc"`)},
		map[string]models.FieldStamp{
			"title":       {At: t0.Add(time.Hour), DeviceID: "devB"},
			"description": {At: t0.Add(-time.Hour), DeviceID: "devB"},
		},
	)
	local := localMutation(models.OperationUpdate, 2, t0, "devA", models.Fields{
		"title":       raw(`"Local title"`),
		"description": raw(`"Local desc"`),
	})

	d := r.Resolve(local, remote)

	assert.Equal(t, models.StrategyLastWriterWins, d.Strategy)
	assert.Equal(t, `"Remote title"`, string(d.WinningPayload["title"]))
	assert.Equal(t, `"Local desc"`, string(d.WinningPayload["description"]))
	assert.Equal(t, models.Fields{"title": raw(`"Local title"`)}, d.Discarded)
	assert.Equal(t, models.Fields{"description": raw(`"Local desc"`)}, d.Accepted)
	assert.True(t, d.Changed)
	assert.True(t, d.LocalDiscarded)
}

func TestResolve_LastWriterWins_TieBrokenByDevice(t *testing.T) {
	r := New()
	remote := remoteTask(3,
		models.Fields{"title": raw(`"From A"`)},
		map[string]models.FieldStamp{"title": {At: t0, DeviceID: "devA"}},
	)
	local := localMutation(models.OperationUpdate, 2, t0, "devB", models.Fields{"title": raw(`"From B"`)})

	d := r.Resolve(local, remote)
	assert.Equal(t, `"From B"`, string(d.WinningPayload["title"]))

	// Зеркальный случай дает тот же результат на стороне A
	remote.Fields["title"] = raw(`"From B"`)
	remote.Stamps["title"] = models.FieldStamp{At: t0, DeviceID: "devB"}
	local = localMutation(models.OperationUpdate, 2, t0, "devA", models.Fields{"title": raw(`"From A"`)})

	d = r.Resolve(local, remote)
	assert.Equal(t, `"From B"`, string(d.WinningPayload["title"]))
}

func TestResolve_DoesNotMutateInputs(t *testing.T) {
	r := New()
	remote := remoteTask(3,
		models.Fields{"title": raw(`"Remote"`)},
		map[string]models.FieldStamp{"title": {At: t0.Add(-time.Hour), DeviceID: "devB"}},
	)
	local := localMutation(models.OperationUpdate, 2, t0, "devA", models.Fields{"title": raw(`"Local"`)})

	before := remote.Clone()
	d := r.Resolve(local, remote)

	assert.Equal(t, `"Local"`, string(d.WinningPayload["title"]))
	assert.Equal(t, before, remote)
}
