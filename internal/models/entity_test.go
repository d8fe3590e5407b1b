package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldStamp_IsNewerThan(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		self     FieldStamp
		other    FieldStamp
		name     string
		expected bool
	}{
		{
			name:     "self timestamp greater",
			self:     FieldStamp{At: base.Add(time.Second), DeviceID: "devA"},
			other:    FieldStamp{At: base, DeviceID: "devA"},
			expected: true,
		},
		{
			name:     "self timestamp smaller",
			self:     FieldStamp{At: base, DeviceID: "devB"},
			other:    FieldStamp{At: base.Add(time.Second), DeviceID: "devA"},
			expected: false,
		},
		{
			name:     "timestamps equal, self DeviceID greater lex",
			self:     FieldStamp{At: base, DeviceID: "devB"},
			other:    FieldStamp{At: base, DeviceID: "devA"},
			expected: true,
		},
		{
			name:     "timestamps equal, self DeviceID lower lex",
			self:     FieldStamp{At: base, DeviceID: "devA"},
			other:    FieldStamp{At: base, DeviceID: "devB"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.self.IsNewerThan(tt.other))
		})
	}
}

func TestEntity_Clone(t *testing.T) {
	original := &Entity{
		ID:       "t1",
		FamilyID: "fam",
		Type:     EntityTypeTask,
		Version:  3,
		Fields:   Fields{"title": json.RawMessage(`"Dishes"`)},
		Stamps:   map[string]FieldStamp{"title": {DeviceID: "devA"}},
	}

	clone := original.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, original, clone)

	// Изменения копии не должны затрагивать оригинал
	clone.Fields["title"][1] = 'X'
	clone.Stamps["title"] = FieldStamp{DeviceID: "devB"}
	assert.Equal(t, `"Dishes"`, string(original.Fields["title"]))
	assert.Equal(t, "devA", original.Stamps["title"].DeviceID)

	var nilEntity *Entity
	assert.Nil(t, nilEntity.Clone())
}

func TestFields_NormalizeAndEqual(t *testing.T) {
	a, err := Fields{"members": json.RawMessage(`[ "anna",  "ben" ]`)}.Normalize()
	require.NoError(t, err)
	b, err := Fields{"members": json.RawMessage(`["anna","ben"]`)}.Normalize()
	require.NoError(t, err)

	assert.True(t, a.Equal("members", b))
	assert.False(t, a.Equal("title", Fields{"title": json.RawMessage(`"x"`)}))
	assert.True(t, a.Equal("missing", b))

	_, err = Fields{"bad": json.RawMessage(`{`)}.Normalize()
	assert.Error(t, err)
}

func TestFieldsOf_Partial(t *testing.T) {
	fields, err := FieldsOf(Task{Status: TaskStatusDone})
	require.NoError(t, err)

	assert.Len(t, fields, 1)
	assert.Equal(t, "done", fields.String("status"))

	var task Task
	require.NoError(t, fields.Decode(&task))
	assert.Equal(t, TaskStatusDone, task.Status)
	assert.Empty(t, task.Title)
}

func TestEntityType_Valid(t *testing.T) {
	assert.True(t, EntityTypeTask.Valid())
	assert.True(t, EntityTypeBadge.Valid())
	assert.False(t, EntityType("photo").Valid())
	assert.True(t, OperationDelete.Valid())
	assert.False(t, Operation("upsert").Valid())
}
