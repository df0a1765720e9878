package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD calendar dates.
var ErrInvalidDate = errors.New("storage: invalid date")

// DateLayout is the format of snapshot dates.
const DateLayout = "2006-01-02"

// SnapshotStore persists one serialized usage snapshot per calendar date.
// Implementations do not interpret the bytes.
type SnapshotStore interface {
	// Write stores data for date, replacing any previous snapshot.
	Write(ctx context.Context, date string, data []byte) error
	// Read returns the snapshot for date, or ErrNotFound.
	Read(ctx context.Context, date string) ([]byte, error)
	// Dates lists the stored snapshot dates in ascending order.
	Dates(ctx context.Context) ([]string, error)
	Close() error
}

// ValidateDate checks that date is a YYYY-MM-DD calendar date. Backends use
// it before building file names or keys from caller supplied dates.
func ValidateDate(date string) error {
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidDate, date, err)
	}
	if parsed.Format(DateLayout) != date {
		return fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	return nil
}

// EnsureDir creates path and any missing parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
