// Package file stores usage snapshots as one JSON file per date.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/natefinch/atomic"
)

const (
	filePrefix = "data-"
	fileSuffix = ".json"
)

// Store implements storage.SnapshotStore on a directory. Snapshots are
// written to data-YYYY-MM-DD.json and replaced atomically, so a reader never
// observes a partially written file.
type Store struct {
	dir string
}

// Open creates the directory if needed and returns a store rooted there.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := storage.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the file a date's snapshot is stored in.
func (s *Store) Path(date string) string {
	return filepath.Join(s.dir, filePrefix+date+fileSuffix)
}

// Write atomically replaces the snapshot file for date.
func (s *Store) Write(ctx context.Context, date string, data []byte) error {
	if err := storage.ValidateDate(date); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := atomic.WriteFile(s.Path(date), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot %s: %w", date, err)
	}
	return nil
}

// Read returns the snapshot file contents for date.
func (s *Store) Read(ctx context.Context, date string) ([]byte, error) {
	if err := storage.ValidateDate(date); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(date))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read snapshot %s: %w", date, err)
	}
	return data, nil
}

// Dates lists the snapshot files present in the directory.
func (s *Store) Dates(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if storage.ValidateDate(date) != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
