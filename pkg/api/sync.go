package api

import (
	"encoding/json"
	"time"
)

// Outcome values of MutationResult.Outcome
const (
	OutcomeApplied  = "applied"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// MaxBatchSize - максимальное число мутаций в одном запросе
const MaxBatchSize = 100

// Mutation представляет одну локальную правку в запросе синхронизации
type Mutation struct {
	ClientTimestamp time.Time                  `json:"client_timestamp"`
	Payload         map[string]json.RawMessage `json:"payload,omitempty"`
	EntityType      string                     `json:"entity_type"`
	EntityID        string                     `json:"entity_id"`
	Operation       string                     `json:"operation"`    // create | update | delete
	MutationID      uint64                     `json:"mutation_id"`  // локальный seq клиента
	BaseVersion     int64                      `json:"base_version"` // версия, от которой сделана правка
}

// SyncRequest представляет запрос на синхронизацию от клиента
type SyncRequest struct {
	LastSyncedAt time.Time  `json:"last_synced_at"` // курсор устройства, нулевое время - полная выгрузка
	DeviceID     string     `json:"device_id"`
	Mutations    []Mutation `json:"mutations"`
}

// FieldStamp описывает, кто и когда последним изменил поле
type FieldStamp struct {
	At       time.Time `json:"at"`
	DeviceID string    `json:"device_id"`
}

// Entity представляет авторитетное состояние объекта на сервере
type Entity struct {
	UpdatedAt  time.Time                  `json:"updated_at"`
	Fields     map[string]json.RawMessage `json:"fields"`
	Stamps     map[string]FieldStamp      `json:"stamps,omitempty"`
	ID         string                     `json:"id"`
	FamilyID   string                     `json:"family_id"`
	EntityType string                     `json:"entity_type"`
	Version    int64                      `json:"version"`
	Deleted    bool                       `json:"deleted"`
}

// MutationResult описывает судьбу одной мутации
type MutationResult struct {
	ResolvedEntity *Entity                    `json:"resolved_entity,omitempty"`
	Discarded      map[string]json.RawMessage `json:"discarded,omitempty"` // локальные поля, проигравшие конфликт
	EntityID       string                     `json:"entity_id"`
	Outcome        string                     `json:"outcome"`            // applied | conflict | failed
	Strategy       string                     `json:"strategy,omitempty"` // правило разрешения конфликта
	Reason         string                     `json:"reason,omitempty"`
	Code           string                     `json:"code,omitempty"`
	MutationID     uint64                     `json:"mutation_id"`
}

// SyncResponse представляет ответ сервера на синхронизацию
// При HasMore курсором становится updated_at последнего изменения, а не ServerTime
type SyncResponse struct {
	ServerTime time.Time        `json:"server_time"` // новый курсор устройства
	Results    []MutationResult `json:"results"`
	Changes    []Entity         `json:"changes"`            // изменения других устройств после last_synced_at
	HasMore    bool             `json:"has_more,omitempty"` // изменения не поместились в ответ
}

// Nudge сообщает устройствам семьи, что на сервере появились изменения
type Nudge struct {
	ServerTime time.Time `json:"server_time"`
	FamilyID   string    `json:"family_id"`
	DeviceID   string    `json:"device_id"` // устройство, чей батч вызвал изменения
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Time   time.Time `json:"time"`
	Status string    `json:"status"`
}
