package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/google/go-cmp/cmp"
)

func TestWriteRead(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "2024-01-15", []byte(`{"bob":null}`)); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	got, err := store.Read(ctx, "2024-01-15")
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if string(got) != `{"bob":null}` {
		t.Fatalf("unexpected snapshot %s", got)
	}

	if filepath.Base(store.Path("2024-01-15")) != "data-2024-01-15.json" {
		t.Fatalf("unexpected snapshot path %s", store.Path("2024-01-15"))
	}
}

func TestReadMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if _, err := store.Read(context.Background(), "2024-01-15"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsTraversal(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	for _, date := range []string{"../../etc/passwd", "2024-1-5", "2024-02-30", ""} {
		if _, err := store.Read(context.Background(), date); err == nil || errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected validation error for %q, got %v", date, err)
		}
	}
}

func TestDates(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()

	for _, date := range []string{"2024-01-16", "2024-01-15"} {
		if err := store.Write(ctx, date, []byte(`{}`)); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data-latest.json"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}

	dates, err := store.Dates(ctx)
	if err != nil {
		t.Fatalf("list dates: %v", err)
	}
	if diff := cmp.Diff([]string{"2024-01-15", "2024-01-16"}, dates); diff != "" {
		t.Fatalf("dates mismatch (-want +got):\n%s", diff)
	}
}
