package applier

import (
	"context"
	"errors"
	"maps"

	"github.com/iudanet/famsync/internal/models"
)

// memoryStore транзакционное in-memory хранилище для тестов:
// изменения видны только после успешного завершения WithTx
type memoryStore struct {
	entities  map[string]*models.Entity
	versions  map[string]int64
	failPut   map[string]error // ошибки PutEntity по id объекта
	conflicts []ConflictRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		entities: make(map[string]*models.Entity),
		versions: make(map[string]int64),
		failPut:  make(map[string]error),
	}
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(tx *memoryTx) error) error {
	tx := &memoryTx{
		entities:  make(map[string]*models.Entity, len(s.entities)),
		versions:  maps.Clone(s.versions),
		conflicts: append([]ConflictRecord(nil), s.conflicts...),
		failPut:   s.failPut,
	}
	for id, e := range s.entities {
		tx.entities[id] = e.Clone()
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.entities = tx.entities
	s.versions = tx.versions
	s.conflicts = tx.conflicts
	return nil
}

func (s *memoryStore) put(e *models.Entity) {
	s.entities[e.ID] = e.Clone()
	s.versions[e.ID] = e.Version
}

type memoryTx struct {
	entities  map[string]*models.Entity
	versions  map[string]int64
	failPut   map[string]error
	conflicts []ConflictRecord
}

func (t *memoryTx) Version(ctx context.Context, entityID string) (int64, error) {
	return t.versions[entityID], nil
}

func (t *memoryTx) SetVersion(ctx context.Context, entityID string, v int64) error {
	t.versions[entityID] = v
	return nil
}

func (t *memoryTx) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	e, ok := t.entities[entityID]
	if !ok {
		return nil, models.ErrEntityNotFound
	}
	return e.Clone(), nil
}

func (t *memoryTx) PutEntity(ctx context.Context, e *models.Entity) error {
	if err := t.failPut[e.ID]; err != nil {
		return err
	}
	t.entities[e.ID] = e.Clone()
	return nil
}

func (t *memoryTx) RecordConflict(ctx context.Context, record ConflictRecord) error {
	t.conflicts = append(t.conflicts, record)
	return nil
}

var errDiskFull = errors.New("disk full")
