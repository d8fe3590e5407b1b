package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/iudanet/famsync/internal/models"
)

// ErrInvalidMutation is returned for mutations the server must reject permanently.
var ErrInvalidMutation = errors.New("invalid mutation")

const (
	// MaxTitleLen ограничивает длину заголовков задач и событий
	MaxTitleLen = 200
	// MaxFieldBytes ограничивает JSON одного поля (описание, заметки, место)
	MaxFieldBytes = 16 << 10
	// MaxPayloadBytes ограничивает payload мутации. Полный батч таких мутаций
	// должен помещаться в лимит тела запроса сервера.
	MaxPayloadBytes = 32 << 10
)

// allowedFields перечисляет поля доменных типов, которые можно синхронизировать
var allowedFields = map[models.EntityType][]string{
	models.EntityTypeTask:        {"title", "description", "assignee", "status", "points", "due"},
	models.EntityTypeEvent:       {"title", "start", "end", "location", "notes", "members"},
	models.EntityTypePointsEntry: {"member", "amount", "reason", "task_id"},
	models.EntityTypeBadge:       {"member", "name", "icon"},
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMutation, fmt.Sprintf(format, args...))
}

// ValidateMutation checks a mutation before it is queued or applied.
// All errors wrap ErrInvalidMutation.
func ValidateMutation(m *models.MutationRecord) error {
	if m == nil {
		return invalid("mutation is nil")
	}
	if !m.EntityType.Valid() {
		return invalid("unknown entity type %q", m.EntityType)
	}
	if !m.Operation.Valid() {
		return invalid("unknown operation %q", m.Operation)
	}
	if _, err := uuid.Parse(m.EntityID); err != nil {
		return invalid("entity id %q is not a uuid", m.EntityID)
	}
	if m.BaseVersion < 0 {
		return invalid("negative base version %d", m.BaseVersion)
	}
	if m.ClientTimestamp.IsZero() {
		return invalid("client timestamp is required")
	}

	switch m.Operation {
	case models.OperationDelete:
		// Для удаления payload не нужен
		return nil
	case models.OperationCreate:
		if m.BaseVersion != 0 {
			return invalid("create must have base version 0, got %d", m.BaseVersion)
		}
	case models.OperationUpdate:
		if len(m.Payload) == 0 {
			return invalid("update without fields")
		}
	}

	if err := validateFields(m.EntityType, m.Payload); err != nil {
		return err
	}

	return validatePayload(m)
}

func validateFields(entityType models.EntityType, payload models.Fields) error {
	allowed := allowedFields[entityType]
	total := 0
	for field, raw := range payload {
		if !slices.Contains(allowed, field) {
			return invalid("unknown field %q for %s", field, entityType)
		}
		if len(raw) > MaxFieldBytes {
			return invalid("field %q is %d bytes, limit is %d", field, len(raw), MaxFieldBytes)
		}
		if !json.Valid(raw) {
			return invalid("field %q is not valid JSON", field)
		}
		total += len(field) + len(raw)
	}
	if total > MaxPayloadBytes {
		return invalid("payload is %d bytes, limit is %d", total, MaxPayloadBytes)
	}
	return nil
}

func validatePayload(m *models.MutationRecord) error {
	create := m.Operation == models.OperationCreate

	switch m.EntityType {
	case models.EntityTypeTask:
		var task models.Task
		if err := m.Payload.Decode(&task); err != nil {
			return invalid("task payload: %v", err)
		}
		return validateTask(&task, m.Payload, create)

	case models.EntityTypeEvent:
		var event models.Event
		if err := m.Payload.Decode(&event); err != nil {
			return invalid("event payload: %v", err)
		}
		return validateEvent(&event, create)

	case models.EntityTypePointsEntry:
		if !create {
			return invalid("points entries are append-only")
		}
		var entry models.PointsEntry
		if err := m.Payload.Decode(&entry); err != nil {
			return invalid("points entry payload: %v", err)
		}
		return validatePointsEntry(&entry)

	case models.EntityTypeBadge:
		var badge models.Badge
		if err := m.Payload.Decode(&badge); err != nil {
			return invalid("badge payload: %v", err)
		}
		return validateBadge(&badge, m.Payload, create)
	}

	return nil
}

func validateTask(task *models.Task, payload models.Fields, create bool) error {
	if create && task.Title == "" {
		return invalid("task title is required")
	}
	if _, ok := payload["title"]; ok && task.Title == "" {
		return invalid("task title cannot be cleared")
	}
	if len(task.Title) > MaxTitleLen {
		return invalid("task title exceeds %d characters", MaxTitleLen)
	}
	if _, ok := payload["status"]; ok {
		switch task.Status {
		case models.TaskStatusOpen, models.TaskStatusInProgress, models.TaskStatusDone:
		default:
			return invalid("unknown task status %q", task.Status)
		}
	}
	if task.Points < 0 {
		return invalid("task points cannot be negative")
	}
	if task.Assignee != "" {
		if err := ValidateMember(task.Assignee); err != nil {
			return invalid("assignee: %v", err)
		}
	}
	return nil
}

func validateEvent(event *models.Event, create bool) error {
	if create && event.Title == "" {
		return invalid("event title is required")
	}
	if len(event.Title) > MaxTitleLen {
		return invalid("event title exceeds %d characters", MaxTitleLen)
	}
	if event.Start != nil && event.End != nil && event.End.Before(*event.Start) {
		return invalid("event ends before it starts")
	}
	for _, member := range event.Members {
		if err := ValidateMember(member); err != nil {
			return invalid("event member: %v", err)
		}
	}
	return nil
}

func validatePointsEntry(entry *models.PointsEntry) error {
	if err := ValidateMember(entry.Member); err != nil {
		return invalid("points member: %v", err)
	}
	if entry.Amount == 0 {
		return invalid("points amount cannot be zero")
	}
	if entry.TaskID != "" {
		if _, err := uuid.Parse(entry.TaskID); err != nil {
			return invalid("points task id %q is not a uuid", entry.TaskID)
		}
	}
	return nil
}

func validateBadge(badge *models.Badge, payload models.Fields, create bool) error {
	if _, ok := payload["member"]; create || ok {
		if err := ValidateMember(badge.Member); err != nil {
			return invalid("badge member: %v", err)
		}
	}
	if create && badge.Name == "" {
		return invalid("badge name is required")
	}
	return nil
}
