package boltdb

import (
	"context"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/models"
)

// Append assigns the next sequence number and durably stores the mutation
func (s *Storage) Append(ctx context.Context, m *models.MutationRecord) (uint64, error) {
	var seq uint64

	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMutations)
		if err != nil {
			return err
		}

		// NextSequence растет монотонно и не переиспользуется после удаления
		seq, err = b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		record := m.Clone()
		record.Seq = seq
		return s.putJSON(b, bucketMutations, seqKey(seq), record)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append mutation: %w", err)
	}

	m.Seq = seq
	return seq, nil
}

// Drain returns up to max pending mutations in sequence order
func (s *Storage) Drain(ctx context.Context, max int) ([]*models.MutationRecord, error) {
	var records []*models.MutationRecord

	err := s.view(func(tx *bbolt.Tx) error {
		var err error
		records, err = s.readMutations(tx, max)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to drain mutations: %w", err)
	}

	return records, nil
}

// Pending returns every queued mutation
func (s *Storage) Pending(ctx context.Context) ([]*models.MutationRecord, error) {
	return s.Drain(ctx, 0)
}

// PendingCount returns the queue length
func (s *Storage) PendingCount(ctx context.Context) (int, error) {
	var count int

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMutations)
		if err != nil {
			return err
		}
		count = b.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", err)
	}

	return count, nil
}

// Commit atomically removes acknowledged mutations
func (s *Storage) Commit(ctx context.Context, seqs []uint64) error {
	return s.update(func(tx *bbolt.Tx) error {
		return commitMutations(tx, seqs)
	})
}

// MarkAttempt increments Attempts on each mutation and stores the reason
func (s *Storage) MarkAttempt(ctx context.Context, seqs []uint64, reason string) error {
	return s.update(func(tx *bbolt.Tx) error {
		return s.markAttempt(tx, seqs, reason)
	})
}

// readMutations reads up to max (0 - all) mutations in key order.
// Big-endian ключи дают порядок по seq
func (s *Storage) readMutations(tx *bbolt.Tx, max int) ([]*models.MutationRecord, error) {
	b, err := bucket(tx, bucketMutations)
	if err != nil {
		return nil, err
	}

	var records []*models.MutationRecord
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if max > 0 && len(records) >= max {
			break
		}
		var m models.MutationRecord
		if err := s.decodeJSON(bucketMutations, k, v, &m); err != nil {
			return nil, fmt.Errorf("mutation %d: %w", keySeq(k), err)
		}
		records = append(records, &m)
	}
	return records, nil
}

func (s *Storage) getMutation(tx *bbolt.Tx, seq uint64) (*models.MutationRecord, error) {
	b, err := bucket(tx, bucketMutations)
	if err != nil {
		return nil, err
	}

	key := seqKey(seq)
	v := b.Get(key)
	if v == nil {
		return nil, storage.ErrMutationNotFound
	}

	var m models.MutationRecord
	if err := s.decodeJSON(bucketMutations, key, v, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func commitMutations(tx *bbolt.Tx, seqs []uint64) error {
	b, err := bucket(tx, bucketMutations)
	if err != nil {
		return err
	}
	for _, seq := range seqs {
		if err := b.Delete(seqKey(seq)); err != nil {
			return fmt.Errorf("failed to commit mutation %d: %w", seq, err)
		}
	}
	return nil
}

func (s *Storage) markAttempt(tx *bbolt.Tx, seqs []uint64, reason string) error {
	b, err := bucket(tx, bucketMutations)
	if err != nil {
		return err
	}

	for _, seq := range seqs {
		m, err := s.getMutation(tx, seq)
		if errors.Is(err, storage.ErrMutationNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		m.Attempts++
		m.LastError = reason
		if err := s.putJSON(b, bucketMutations, seqKey(seq), m); err != nil {
			return err
		}
	}
	return nil
}

// rebase moves pending mutations of one entity from fromBase to toBase
func (s *Storage) rebase(tx *bbolt.Tx, entityID string, fromBase, toBase int64) (int, error) {
	b, err := bucket(tx, bucketMutations)
	if err != nil {
		return 0, err
	}

	records, err := s.readMutations(tx, 0)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range records {
		if m.EntityID != entityID || m.BaseVersion != fromBase {
			continue
		}
		m.BaseVersion = toBase
		if err := s.putJSON(b, bucketMutations, seqKey(m.Seq), m); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
