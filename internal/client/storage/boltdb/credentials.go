package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/client/storage"
)

var credentialsKey = []byte("current")

// SaveCredentials stores device credentials
func (s *Storage) SaveCredentials(ctx context.Context, creds *storage.Credentials) error {
	return s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketCredentials)
		if err != nil {
			return err
		}
		return s.putJSON(b, bucketCredentials, credentialsKey, creds)
	})
}

// GetCredentials retrieves stored credentials
func (s *Storage) GetCredentials(ctx context.Context) (*storage.Credentials, error) {
	var creds *storage.Credentials

	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketCredentials)
		if err != nil {
			return err
		}

		data := b.Get(credentialsKey)
		if data == nil {
			return storage.ErrCredentialsNotFound
		}

		creds = &storage.Credentials{}
		return s.decodeJSON(bucketCredentials, credentialsKey, data, creds)
	})
	if err != nil {
		return nil, err
	}

	return creds, nil
}

// DeleteCredentials removes stored credentials
func (s *Storage) DeleteCredentials(ctx context.Context) error {
	return s.update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketCredentials)
		if err != nil {
			return err
		}

		// Проверяем существование данных
		if b.Get(credentialsKey) == nil {
			return storage.ErrCredentialsNotFound
		}

		if err := b.Delete(credentialsKey); err != nil {
			return fmt.Errorf("failed to delete credentials: %w", err)
		}
		return nil
	})
}
