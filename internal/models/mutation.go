package models

import "time"

// Operation is the kind of change a mutation carries.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// MutationRecord is one pending local change.
type MutationRecord struct {
	ClientTimestamp time.Time  `json:"client_timestamp"` // ClientTimestamp время правки на устройстве
	Payload         Fields     `json:"payload"`          // Payload новое (возможно частичное) состояние
	EntityType      EntityType `json:"entity_type"`      // EntityType тип объекта
	EntityID        string     `json:"entity_id"`        // EntityID идентификатор объекта
	Operation       Operation  `json:"operation"`        // Operation create | update | delete
	DeviceID        string     `json:"device_id"`        // DeviceID устройство-автор
	LastError       string     `json:"last_error,omitempty"`
	Seq             uint64     `json:"seq"`          // Seq локальный порядковый номер, строго возрастает
	BaseVersion     int64      `json:"base_version"` // BaseVersion версия, которую клиент считал текущей
	Attempts        int        `json:"attempts"`     // Attempts счетчик повторов
}

// Stamp returns the field stamp this mutation would write.
func (m *MutationRecord) Stamp() FieldStamp {
	return FieldStamp{At: m.ClientTimestamp, DeviceID: m.DeviceID}
}

// Clone returns a deep copy of the record.
func (m *MutationRecord) Clone() *MutationRecord {
	c := *m
	c.Payload = m.Payload.Clone()
	return &c
}

// Failure codes for mutations the server refused.
const (
	CodeRejected         = "rejected"
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeUnavailable      = "unavailable"
)

// DeadLetter is a mutation set aside for manual handling.
type DeadLetter struct {
	DeadAt   time.Time      `json:"dead_at"`
	Reason   string         `json:"reason"`
	Code     string         `json:"code"`
	Mutation MutationRecord `json:"mutation"`
}

// SyncCursor is the per-device sync position.
type SyncCursor struct {
	LastSyncedAt time.Time `json:"last_synced_at"`
	DeviceID     string    `json:"device_id"`
}
