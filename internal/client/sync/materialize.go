package sync

import (
	"maps"

	"github.com/iudanet/famsync/internal/models"
)

// Materialize overlays pending mutations on server-confirmed snapshots and
// returns what the user should see. Inputs are not modified.
//
// Snapshots come first in their given order, followed by entities that exist
// only locally, in the order they were created. Tombstones are kept with
// Deleted set; callers filter them out for display.
func Materialize(server []*models.Entity, pending []*models.MutationRecord) []*models.Entity {
	view := make(map[string]*models.Entity, len(server))
	order := make([]string, 0, len(server))

	for _, e := range server {
		if _, ok := view[e.ID]; !ok {
			order = append(order, e.ID)
		}
		view[e.ID] = e.Clone()
	}

	for _, m := range pending {
		current, ok := view[m.EntityID]
		if !ok {
			if m.Operation == models.OperationDelete {
				continue
			}
			order = append(order, m.EntityID)
		}
		view[m.EntityID] = overlay(current, m)
	}

	out := make([]*models.Entity, 0, len(order))
	for _, id := range order {
		out = append(out, view[id])
	}
	return out
}

// MaterializeEntity is Materialize for a single entity. server may be nil.
// Returns nil if the entity exists neither on the server nor locally.
func MaterializeEntity(entityID string, server *models.Entity, pending []*models.MutationRecord) *models.Entity {
	var current *models.Entity
	if server != nil {
		current = server.Clone()
	}
	for _, m := range pending {
		if m.EntityID != entityID {
			continue
		}
		if current == nil && m.Operation == models.OperationDelete {
			continue
		}
		current = overlay(current, m)
	}
	return current
}

// overlay applies one mutation on top of current (which may be nil), without touching the version
func overlay(current *models.Entity, m *models.MutationRecord) *models.Entity {
	if current == nil {
		current = &models.Entity{
			ID:        m.EntityID,
			Type:      m.EntityType,
			UpdatedAt: m.ClientTimestamp,
		}
	}
	if current.Fields == nil {
		current.Fields = make(models.Fields)
	}
	if current.Stamps == nil {
		current.Stamps = make(map[string]models.FieldStamp)
	}

	switch m.Operation {
	case models.OperationDelete:
		current.Deleted = true
	default:
		// Правка поверх tombstone на сервере проиграет, показываем удаленным
		if current.Deleted {
			return current
		}
		maps.Copy(current.Fields, m.Payload.Clone())
		for field := range m.Payload {
			current.Stamps[field] = m.Stamp()
		}
	}
	if m.ClientTimestamp.After(current.UpdatedAt) {
		current.UpdatedAt = m.ClientTimestamp
	}
	return current
}
