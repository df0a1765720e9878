package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/config"
	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T, retention string) (*Store, *miniredis.Miniredis) {
	t.Helper()

	// Create miniredis instance
	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so we use it directly
	cfg := config.RedisConfig{
		Host:         mr.Addr(), // Full address "host:port"
		Port:         0,         // Not used when host contains port
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
		KeyPrefix:    "test",
		Retention:    retention,
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestStore_WriteRead(t *testing.T) {
	store, mr := setupTestStore(t, "")
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	data := []byte(`{"alice":{"devices":{},"monitor":{}}}`)

	if err := store.Write(ctx, "2024-05-01", data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Expected %s, got %s", data, got)
	}

	if !mr.Exists("test:snapshot:2024-05-01") {
		t.Error("Expected snapshot key to exist")
	}
	if mr.TTL("test:snapshot:2024-05-01") != 0 {
		t.Error("Expected no TTL without retention")
	}

	// Overwrite replaces
	if err := store.Write(ctx, "2024-05-01", []byte(`{}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err = store.Read(ctx, "2024-05-01")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("Expected overwritten snapshot, got %s", got)
	}
}

func TestStore_ReadNotFound(t *testing.T) {
	store, _ := setupTestStore(t, "")
	defer func() { _ = store.Close() }()

	_, err := store.Read(context.Background(), "2024-05-02")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_InvalidDate(t *testing.T) {
	store, _ := setupTestStore(t, "")
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Write(ctx, "2024-5-1", []byte("{}")); err == nil {
		t.Error("Expected error for malformed date")
	}
	if _, err := store.Read(ctx, "*"); err == nil {
		t.Error("Expected error for wildcard date")
	}
}

func TestStore_Retention(t *testing.T) {
	store, mr := setupTestStore(t, "48h")
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Write(ctx, "2024-05-01", []byte("{}")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if ttl := mr.TTL("test:snapshot:2024-05-01"); ttl != 48*time.Hour {
		t.Errorf("Expected TTL 48h, got %v", ttl)
	}

	mr.FastForward(49 * time.Hour)

	if _, err := store.Read(ctx, "2024-05-01"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestStore_Dates(t *testing.T) {
	store, mr := setupTestStore(t, "")
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	dates, err := store.Dates(ctx)
	if err != nil {
		t.Fatalf("Dates failed: %v", err)
	}
	if len(dates) != 0 {
		t.Errorf("Expected no dates, got %v", dates)
	}

	for _, date := range []string{"2024-05-03", "2024-05-01", "2024-05-02"} {
		if err := store.Write(ctx, date, []byte("{}")); err != nil {
			t.Fatalf("Write %s failed: %v", date, err)
		}
	}

	// Simulate an expired snapshot still listed in the index
	mr.Del("test:snapshot:2024-05-02")

	dates, err = store.Dates(ctx)
	if err != nil {
		t.Fatalf("Dates failed: %v", err)
	}
	want := []string{"2024-05-01", "2024-05-03"}
	if len(dates) != len(want) {
		t.Fatalf("Expected %v, got %v", want, dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, dates)
			break
		}
	}

	// Stale entry is pruned from the index
	members, err := mr.Members("test:snapshots")
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 indexed dates after pruning, got %v", members)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.RedisConfig
	}{
		{
			name: "bad dial timeout",
			cfg:  config.RedisConfig{Host: mr.Addr(), DialTimeout: "x", ReadTimeout: "1s", WriteTimeout: "1s"},
		},
		{
			name: "bad retention",
			cfg:  config.RedisConfig{Host: mr.Addr(), DialTimeout: "1s", ReadTimeout: "1s", WriteTimeout: "1s", Retention: "forever"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.cfg); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
