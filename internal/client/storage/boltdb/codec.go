package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/client/storage"
)

// Значения хранятся как JSON; при включенном шифровании JSON запечатывается

const (
	formatPlain  byte = 'p'
	formatSealed byte = 's'
)

func label(bucketName, key []byte) []byte {
	out := make([]byte, 0, len(bucketName)+1+len(key))
	out = append(out, bucketName...)
	out = append(out, '/')
	return append(out, key...)
}

// putJSON marshals v and stores it under key, sealing it if a sealer is set
func (s *Storage) putJSON(b *bbolt.Bucket, bucketName, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	value := append([]byte{formatPlain}, data...)
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(label(bucketName, key), data)
		if err != nil {
			return fmt.Errorf("failed to seal value: %w", err)
		}
		value = append([]byte{formatSealed}, sealed...)
	}

	if err := b.Put(key, value); err != nil {
		return fmt.Errorf("failed to put value: %w", err)
	}
	return nil
}

// decodeJSON unseals (if needed) and unmarshals a stored value
func (s *Storage) decodeJSON(bucketName, key, value []byte, v any) error {
	if len(value) == 0 {
		return fmt.Errorf("empty value for %s", label(bucketName, key))
	}

	data := value[1:]
	switch value[0] {
	case formatPlain:
	case formatSealed:
		if s.sealer == nil {
			return storage.ErrLocked
		}
		opened, err := s.sealer.Open(label(bucketName, key), data)
		if err != nil {
			return fmt.Errorf("failed to open value: %w", err)
		}
		data = opened
	default:
		return fmt.Errorf("unknown value format %q", value[0])
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func keySeq(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

func int64Value(v int64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(v))
	return out
}

func valueInt64(data []byte) int64 {
	if len(data) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}
