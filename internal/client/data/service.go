// Package data implements family organizer operations on the local store.
//
// Every edit is appended to the mutation log and becomes visible immediately
// through Materialize. Nothing here talks to the server.
package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/client/sync"
	"github.com/iudanet/famsync/internal/clock"
	"github.com/iudanet/famsync/internal/models"
	"github.com/iudanet/famsync/internal/validation"
)

// ErrNotFound is returned for entities that do not exist or are deleted
var ErrNotFound = errors.New("not found")

//go:generate moq -out service_mock.go . Service

// Service определяет интерфейс клиентского data сервиса
type Service interface {
	AddTask(ctx context.Context, task *models.Task) (string, error)
	UpdateTask(ctx context.Context, id string, patch *models.Task) error
	CompleteTask(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*Item[models.Task], error)
	ListTasks(ctx context.Context) ([]*Item[models.Task], error)

	AddEvent(ctx context.Context, event *models.Event) (string, error)
	UpdateEvent(ctx context.Context, id string, patch *models.Event) error
	ListEvents(ctx context.Context) ([]*Item[models.Event], error)

	AwardPoints(ctx context.Context, entry *models.PointsEntry) (string, error)
	ListPoints(ctx context.Context) ([]*Item[models.PointsEntry], error)
	Balance(ctx context.Context, member string) (int, error)

	GrantBadge(ctx context.Context, badge *models.Badge) (string, error)
	ListBadges(ctx context.Context) ([]*Item[models.Badge], error)

	Delete(ctx context.Context, entityType models.EntityType, id string) error
}

// Item is a materialized entity decoded into its domain type.
type Item[T any] struct {
	UpdatedAt time.Time
	Value     T
	ID        string
	Version   int64 // последняя подтвержденная сервером версия, 0 для новых
	Pending   bool  // есть неотправленные правки
}

// Store is the part of the local store the service needs.
type Store interface {
	storage.MutationLog
	storage.SnapshotStorage
	storage.MetadataStorage
}

type service struct {
	store  Store
	clock  *clock.Clock
	logger *slog.Logger
}

// NewService creates a new data service
func NewService(store Store, clk *clock.Clock, logger *slog.Logger) Service {
	return &service{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// record appends one mutation atop the last-known server version.
// A failed append is returned to the caller: the edit is not kept anywhere else.
func (s *service) record(ctx context.Context, entityType models.EntityType, id string, op models.Operation, payload models.Fields) error {
	deviceID, err := s.store.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device id: %w", err)
	}

	base, err := s.store.Version(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read version of %s: %w", id, err)
	}

	m := &models.MutationRecord{
		EntityType:      entityType,
		EntityID:        id,
		Operation:       op,
		Payload:         payload,
		BaseVersion:     base,
		ClientTimestamp: s.clock.Now(),
		DeviceID:        deviceID,
	}
	if err := validation.ValidateMutation(m); err != nil {
		return err
	}

	seq, err := s.store.Append(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", op, entityType, err)
	}
	if err := s.store.SaveClock(ctx, s.clock.Last()); err != nil {
		s.logger.Warn("Failed to persist device clock", "error", err)
	}

	s.logger.Debug("Mutation queued",
		"seq", seq,
		"entity_type", entityType,
		"entity_id", id,
		"operation", op,
		"base_version", base)
	return nil
}

func (s *service) create(ctx context.Context, entityType models.EntityType, v any) (string, error) {
	payload, err := models.FieldsOf(v)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	if err := s.record(ctx, entityType, id, models.OperationCreate, payload); err != nil {
		return "", err
	}
	return id, nil
}

func (s *service) update(ctx context.Context, entityType models.EntityType, id string, patch any) error {
	if _, _, err := s.current(ctx, entityType, id); err != nil {
		return err
	}
	payload, err := models.FieldsOf(patch)
	if err != nil {
		return err
	}
	return s.record(ctx, entityType, id, models.OperationUpdate, payload)
}

// current returns the materialized entity, or ErrNotFound.
func (s *service) current(ctx context.Context, entityType models.EntityType, id string) (*models.Entity, bool, error) {
	snapshot, err := s.store.GetEntity(ctx, id)
	switch {
	case errors.Is(err, models.ErrEntityNotFound):
		snapshot = nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to load %s: %w", id, err)
	}

	pending, err := s.pendingFor(ctx, id)
	if err != nil {
		return nil, false, err
	}

	e := sync.MaterializeEntity(id, snapshot, pending)
	if e == nil || e.Deleted || e.Type != entityType {
		return nil, false, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	return e, len(pending) > 0, nil
}

func (s *service) pendingFor(ctx context.Context, id string) ([]*models.MutationRecord, error) {
	all, err := s.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending mutations: %w", err)
	}
	out := all[:0]
	for _, m := range all {
		if m.EntityID == id {
			out = append(out, m)
		}
	}
	return out, nil
}

// Delete queues a tombstone for any entity type
func (s *service) Delete(ctx context.Context, entityType models.EntityType, id string) error {
	if _, _, err := s.current(ctx, entityType, id); err != nil {
		return err
	}
	return s.record(ctx, entityType, id, models.OperationDelete, nil)
}

// get returns one materialized item
func get[T any](ctx context.Context, s *service, entityType models.EntityType, id string) (*Item[T], error) {
	e, pending, err := s.current(ctx, entityType, id)
	if err != nil {
		return nil, err
	}
	return decodeItem[T](e, pending)
}

// list returns all live items of a type: snapshots with pending edits overlaid
func list[T any](ctx context.Context, s *service, entityType models.EntityType) ([]*Item[T], error) {
	snapshots, err := s.store.ListEntities(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}
	all, err := s.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending mutations: %w", err)
	}

	pending := make([]*models.MutationRecord, 0, len(all))
	touched := make(map[string]bool)
	for _, m := range all {
		if m.EntityType == entityType {
			pending = append(pending, m)
			touched[m.EntityID] = true
		}
	}

	view := sync.Materialize(snapshots, pending)
	items := make([]*Item[T], 0, len(view))
	for _, e := range view {
		if e.Deleted {
			continue
		}
		item, err := decodeItem[T](e, touched[e.ID])
		if err != nil {
			s.logger.Warn("Skipping undecodable entity", "entity_id", e.ID, "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem[T any](e *models.Entity, pending bool) (*Item[T], error) {
	item := &Item[T]{
		ID:        e.ID,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
		Pending:   pending,
	}
	if err := e.Fields.Decode(&item.Value); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", e.Type, e.ID, err)
	}
	return item, nil
}
