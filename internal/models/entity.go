package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// EntityType перечисляет синхронизируемые типы доменных объектов.
type EntityType string

const (
	EntityTypeTask        EntityType = "task"         // задачи и поручения
	EntityTypeEvent       EntityType = "event"        // события календаря
	EntityTypePointsEntry EntityType = "points_entry" // записи журнала очков
	EntityTypeBadge       EntityType = "badge"        // выданные значки
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeTask, EntityTypeEvent, EntityTypePointsEntry, EntityTypeBadge:
		return true
	}
	return false
}

// Fields holds a partial or full entity state as field name -> compact JSON value.
type Fields map[string]json.RawMessage

// FieldStamp records which write last set a field.
// Used for field-level last-writer-wins.
type FieldStamp struct {
	At       time.Time `json:"at"`        // At client timestamp той записи, которая установила поле
	DeviceID string    `json:"device_id"` // DeviceID устройство-автор
}

// IsNewerThan compares two stamps the same way entries were ordered before:
// later timestamp wins, equal timestamps are broken by device id.
func (s FieldStamp) IsNewerThan(other FieldStamp) bool {
	if s.At.After(other.At) {
		return true
	}
	if s.At.Before(other.At) {
		return false
	}
	// Timestamps равны - сравниваем DeviceID для детерминизма
	return s.DeviceID > other.DeviceID
}

// Entity is the authoritative state of any syncable domain object.
type Entity struct {
	UpdatedAt time.Time             `json:"updated_at"` // UpdatedAt время коммита на сервере
	Fields    Fields                `json:"fields"`     // Fields текущее состояние объекта
	Stamps    map[string]FieldStamp `json:"stamps"`     // Stamps кто и когда последним менял каждое поле
	ID        string                `json:"id"`         // ID клиентский UUID
	FamilyID  string                `json:"family_id"`  // FamilyID владелец записи
	Type      EntityType            `json:"type"`       // Type тип объекта
	Version   int64                 `json:"version"`    // Version растет на каждую принятую запись
	Deleted   bool                  `json:"deleted"`    // Deleted tombstone
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Fields = e.Fields.Clone()
	if e.Stamps != nil {
		c.Stamps = maps.Clone(e.Stamps)
	}
	return &c
}

// Clone returns a deep copy of the field map.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		dup := make(json.RawMessage, len(v))
		copy(dup, v)
		out[k] = dup
	}
	return out
}

// Equal reports whether a field holds the same JSON value in both maps.
// Values are expected to be compacted by Normalize.
func (f Fields) Equal(key string, other Fields) bool {
	a, okA := f[key]
	b, okB := other[key]
	if okA != okB {
		return false
	}
	return bytes.Equal(a, b)
}

// Normalize compacts every value so that byte comparison means value equality.
func (f Fields) Normalize() (Fields, error) {
	out := make(Fields, len(f))
	for k, v := range f {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = buf.Bytes()
	}
	return out, nil
}

// String extracts a string field, "" if absent or not a string.
func (f Fields) String(key string) string {
	raw, ok := f[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// FieldsOf marshals a typed payload into a field map.
// Zero-valued fields tagged omitempty are left out, so partial updates stay partial.
func FieldsOf(v any) (Fields, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to split payload into fields: %w", err)
	}
	return fields.Normalize()
}

// Decode unmarshals the field map into a typed payload.
func (f Fields) Decode(v any) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode fields: %w", err)
	}
	return nil
}
