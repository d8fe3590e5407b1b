package boltdb

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/crypto"
)

// Unlock derives the storage key from the passphrase and enables sealing.
// On first use a salt and a key check are generated and stored; later calls
// verify the passphrase against the stored check.
// Values written before sealing stay readable.
func (s *Storage) Unlock(ctx context.Context, passphrase string) error {
	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		return err
	}

	var salt []byte
	var check string
	err = s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		if v := b.Get(keySealSalt); v != nil {
			salt = append([]byte(nil), v...)
		}
		check = string(b.Get(keySealCheck))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to read sealing parameters: %w", err)
	}

	first := salt == nil
	if first {
		if salt, err = crypto.GenerateSalt(); err != nil {
			return err
		}
	}

	key, err := crypto.DeriveKey(passphrase, deviceID, salt)
	if err != nil {
		return err
	}

	if first {
		if check, err = crypto.KeyCheck(key); err != nil {
			return err
		}
		err = s.update(func(tx *bbolt.Tx) error {
			b, err := bucket(tx, bucketMetadata)
			if err != nil {
				return err
			}
			if err := b.Put(keySealSalt, salt); err != nil {
				return err
			}
			return b.Put(keySealCheck, []byte(check))
		})
		if err != nil {
			return fmt.Errorf("failed to store sealing parameters: %w", err)
		}
	} else if err := crypto.VerifyKey(key, check); err != nil {
		return err
	}

	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sealer = sealer
	s.mu.Unlock()
	return nil
}

// Sealed reports whether sealing was ever enabled for this file
func (s *Storage) Sealed(ctx context.Context) (bool, error) {
	var sealed bool
	err := s.view(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, bucketMetadata)
		if err != nil {
			return err
		}
		sealed = b.Get(keySealSalt) != nil
		return nil
	})
	return sealed, err
}
