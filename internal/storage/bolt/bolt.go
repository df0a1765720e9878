package bolt

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/storage"
	"go.etcd.io/bbolt"
)

const bucketSnapshots = "snapshots"

// Store implements storage.SnapshotStore using bbolt. Each date is one key
// in the snapshots bucket.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSnapshots)); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketSnapshots, err)
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write stores the snapshot for date.
func (s *Store) Write(ctx context.Context, date string, data []byte) error {
	if err := storage.ValidateDate(date); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSnapshots))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketSnapshots)
		}
		return b.Put([]byte(date), data)
	})
}

// Read returns the snapshot for date.
func (s *Store) Read(ctx context.Context, date string) ([]byte, error) {
	if err := storage.ValidateDate(date); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSnapshots))
		if b == nil {
			return storage.ErrNotFound
		}
		value := b.Get([]byte(date))
		if value == nil {
			return storage.ErrNotFound
		}
		// value is only valid for the life of the transaction
		data = bytes.Clone(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Dates returns the stored snapshot dates in ascending order.
func (s *Store) Dates(ctx context.Context) ([]string, error) {
	dates := make([]string, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketSnapshots))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			dates = append(dates, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return dates, nil
}
