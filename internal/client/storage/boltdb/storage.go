package boltdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/famsync/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketCredentials = []byte("credentials")
	bucketMutations   = []byte("mutations")
	bucketDeadLetters = []byte("dead_letters")
	bucketEntities    = []byte("entities")
	bucketVersions    = []byte("versions")
	bucketMetadata    = []byte("metadata")

	allBuckets = [][]byte{
		bucketCredentials,
		bucketMutations,
		bucketDeadLetters,
		bucketEntities,
		bucketVersions,
		bucketMetadata,
	}
)

// Sealer encrypts values at rest. label binds a value to its bucket and key.
type Sealer interface {
	Seal(label, value []byte) ([]byte, error)
	Open(label, value []byte) ([]byte, error)
}

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db     *bbolt.DB
	sealer Sealer
	mu     sync.RWMutex
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB; таймаут защищает от второго процесса с тем же файлом
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	// Инициализируем buckets
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// update runs fn in a read-write transaction. bbolt fsyncs on commit,
// so a nil error means the change is durable.
func (s *Storage) update(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return mapClosed(s.db.Update(fn))
}

// view runs fn in a read-only transaction
func (s *Storage) view(fn func(tx *bbolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return mapClosed(s.db.View(fn))
}

func mapClosed(err error) error {
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) {
		return storage.ErrStorageClosed
	}
	return err
}

// bucket returns a bucket that initBuckets guarantees to exist
func bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}
