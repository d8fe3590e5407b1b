package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/client/storage"
	"github.com/iudanet/famsync/internal/models"
)

// DeadLetters returns all dead letters in original sequence order
func (s *Storage) DeadLetters(ctx context.Context) ([]*models.DeadLetter, error) {
	var letters []*models.DeadLetter

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketDeadLetters)
		if err != nil {
			return err
		}

		return b.ForEach(func(k, v []byte) error {
			var dl models.DeadLetter
			if err := s.decodeJSON(bucketDeadLetters, k, v, &dl); err != nil {
				return fmt.Errorf("dead letter %d: %w", keySeq(k), err)
			}
			letters = append(letters, &dl)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	return letters, nil
}

// Requeue moves a dead letter back into the log with a fresh sequence number
func (s *Storage) Requeue(ctx context.Context, seq uint64) (uint64, error) {
	var newSeq uint64

	err := s.update(func(tx *bbolt.Tx) error {
		dlBucket, err := bucket(tx, bucketDeadLetters)
		if err != nil {
			return err
		}
		logBucket, err := bucket(tx, bucketMutations)
		if err != nil {
			return err
		}

		key := seqKey(seq)
		v := dlBucket.Get(key)
		if v == nil {
			return storage.ErrDeadLetterNotFound
		}

		var dl models.DeadLetter
		if err := s.decodeJSON(bucketDeadLetters, key, v, &dl); err != nil {
			return err
		}

		newSeq, err = logBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}

		m := dl.Mutation
		m.Seq = newSeq
		m.Attempts = 0
		m.LastError = ""
		if err := s.putJSON(logBucket, bucketMutations, seqKey(newSeq), &m); err != nil {
			return err
		}

		return dlBucket.Delete(key)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to requeue dead letter %d: %w", seq, err)
	}

	return newSeq, nil
}

// Discard drops a dead letter
func (s *Storage) Discard(ctx context.Context, seq uint64) error {
	err := s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketDeadLetters)
		if err != nil {
			return err
		}

		key := seqKey(seq)
		if b.Get(key) == nil {
			return storage.ErrDeadLetterNotFound
		}
		return b.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to discard dead letter %d: %w", seq, err)
	}
	return nil
}

// deadLetter moves a mutation from the log into the dead-letter bucket
func (s *Storage) deadLetter(tx *bbolt.Tx, dl *models.DeadLetter) error {
	dlBucket, err := bucket(tx, bucketDeadLetters)
	if err != nil {
		return err
	}

	key := seqKey(dl.Mutation.Seq)
	if err := s.putJSON(dlBucket, bucketDeadLetters, key, dl); err != nil {
		return err
	}
	return commitMutations(tx, []uint64{dl.Mutation.Seq})
}
