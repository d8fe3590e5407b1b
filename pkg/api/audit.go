package api

import (
	"encoding/json"
	"time"
)

// ConflictRecord описывает одно разрешенное сервером расхождение
type ConflictRecord struct {
	ResolvedAt     time.Time                  `json:"resolved_at"`
	Accepted       map[string]json.RawMessage `json:"accepted,omitempty"`
	Discarded      map[string]json.RawMessage `json:"discarded,omitempty"`
	DeviceID       string                     `json:"device_id"`
	EntityID       string                     `json:"entity_id"`
	EntityType     string                     `json:"entity_type"`
	Strategy       string                     `json:"strategy"`
	BaseVersion    int64                      `json:"base_version"`
	Version        int64                      `json:"version"`
	LocalDiscarded bool                       `json:"local_discarded"`
}

// ConflictsResponse представляет ответ GET /api/v1/conflicts
type ConflictsResponse struct {
	Conflicts []ConflictRecord `json:"conflicts"`
}
