package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/models"
)

// GetEntity returns the last-known server snapshot
func (s *Storage) GetEntity(ctx context.Context, entityID string) (*models.Entity, error) {
	var entity *models.Entity

	err := s.view(func(tx *bbolt.Tx) error {
		var err error
		entity, err = s.getEntity(tx, entityID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entity, nil
}

// ListEntities returns all snapshots of a type, tombstones included
func (s *Storage) ListEntities(ctx context.Context, entityType models.EntityType) ([]*models.Entity, error) {
	var entities []*models.Entity

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketEntities)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var e models.Entity
			if err := s.decodeJSON(bucketEntities, k, v, &e); err != nil {
				return fmt.Errorf("entity %s: %w", k, err)
			}
			if entityType == "" || e.Type == entityType {
				entities = append(entities, &e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	return entities, nil
}

// Version returns the last acknowledged version of an entity
func (s *Storage) Version(ctx context.Context, entityID string) (int64, error) {
	var v int64

	err := s.view(func(tx *bbolt.Tx) error {
		var err error
		v, err = getVersion(tx, entityID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get version: %w", err)
	}

	return v, nil
}

func (s *Storage) getEntity(tx *bbolt.Tx, entityID string) (*models.Entity, error) {
	b, err := bucket(tx, bucketEntities)
	if err != nil {
		return nil, err
	}

	key := []byte(entityID)
	v := b.Get(key)
	if v == nil {
		return nil, models.ErrEntityNotFound
	}

	var e models.Entity
	if err := s.decodeJSON(bucketEntities, key, v, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Storage) putEntity(tx *bbolt.Tx, entity *models.Entity) error {
	b, err := bucket(tx, bucketEntities)
	if err != nil {
		return err
	}
	return s.putJSON(b, bucketEntities, []byte(entity.ID), entity)
}

func getVersion(tx *bbolt.Tx, entityID string) (int64, error) {
	b, err := bucket(tx, bucketVersions)
	if err != nil {
		return 0, err
	}
	return valueInt64(b.Get([]byte(entityID))), nil
}

func setVersion(tx *bbolt.Tx, entityID string, v int64) error {
	b, err := bucket(tx, bucketVersions)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(entityID), int64Value(v)); err != nil {
		return fmt.Errorf("failed to set version: %w", err)
	}
	return nil
}
