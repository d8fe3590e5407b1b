// Package wire converts between domain models and the JSON types of pkg/api.
package wire

import (
	"github.com/iudanet/famsync/internal/applier"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/pkg/api"
)

// ToMutation converts a queued record to its wire form.
func ToMutation(m *models.MutationRecord) api.Mutation {
	return api.Mutation{
		MutationID:      m.Seq,
		EntityType:      string(m.EntityType),
		EntityID:        m.EntityID,
		Operation:       string(m.Operation),
		Payload:         m.Payload.Clone(),
		BaseVersion:     m.BaseVersion,
		ClientTimestamp: m.ClientTimestamp,
	}
}

// FromMutation converts a wire mutation sent by deviceID.
func FromMutation(m api.Mutation, deviceID string) models.MutationRecord {
	return models.MutationRecord{
		Seq:             m.MutationID,
		EntityType:      models.EntityType(m.EntityType),
		EntityID:        m.EntityID,
		Operation:       models.Operation(m.Operation),
		Payload:         models.Fields(m.Payload),
		BaseVersion:     m.BaseVersion,
		ClientTimestamp: m.ClientTimestamp,
		DeviceID:        deviceID,
	}
}

// ToEntity converts a snapshot to its wire form.
func ToEntity(e *models.Entity) *api.Entity {
	if e == nil {
		return nil
	}
	out := &api.Entity{
		ID:         e.ID,
		FamilyID:   e.FamilyID,
		EntityType: string(e.Type),
		Version:    e.Version,
		UpdatedAt:  e.UpdatedAt,
		Deleted:    e.Deleted,
		Fields:     e.Fields.Clone(),
	}
	if len(e.Stamps) > 0 {
		out.Stamps = make(map[string]api.FieldStamp, len(e.Stamps))
		for field, stamp := range e.Stamps {
			out.Stamps[field] = api.FieldStamp{At: stamp.At, DeviceID: stamp.DeviceID}
		}
	}
	return out
}

// FromEntity converts a wire snapshot.
func FromEntity(e *api.Entity) *models.Entity {
	if e == nil {
		return nil
	}
	out := &models.Entity{
		ID:        e.ID,
		FamilyID:  e.FamilyID,
		Type:      models.EntityType(e.EntityType),
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
		Deleted:   e.Deleted,
		Fields:    models.Fields(e.Fields).Clone(),
	}
	if len(e.Stamps) > 0 {
		out.Stamps = make(map[string]models.FieldStamp, len(e.Stamps))
		for field, stamp := range e.Stamps {
			out.Stamps[field] = models.FieldStamp{At: stamp.At, DeviceID: stamp.DeviceID}
		}
	}
	return out
}

// ToResult converts an applier result to its wire form.
func ToResult(r *applier.Result) api.MutationResult {
	out := api.MutationResult{
		MutationID:     r.Seq,
		EntityID:       r.EntityID,
		Outcome:        string(r.Outcome),
		Reason:         r.Reason,
		Code:           r.Code,
		ResolvedEntity: ToEntity(r.Entity),
	}
	if r.Outcome != applier.OutcomeFailed {
		out.Strategy = string(r.Strategy)
	}
	if r.Decision != nil && len(r.Decision.Discarded) > 0 {
		out.Discarded = r.Decision.Discarded.Clone()
	}
	return out
}
