package usage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/Allen-B1/monitor-v3/internal/activity"
	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/rs/zerolog"
)

var errSinkDown = errors.New("sink down")

// memSink is an in-memory snapshot sink that can be made to fail.
type memSink struct {
	mu     sync.Mutex
	data   map[string][]byte
	writes []string
	fail   bool
}

func newMemSink() *memSink {
	return &memSink{data: make(map[string][]byte)}
}

func (m *memSink) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *memSink) Write(ctx context.Context, date string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errSinkDown
	}
	m.data[date] = append([]byte(nil), data...)
	m.writes = append(m.writes, date)
	return nil
}

func (m *memSink) Read(ctx context.Context, date string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errSinkDown
	}
	data, ok := m.data[date]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memSink) Dates(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dates := make([]string, 0, len(m.data))
	for date := range m.data {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) snapshot(t *testing.T, date string) Snapshot {
	t.Helper()
	m.mu.Lock()
	data, ok := m.data[date]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("No snapshot written for %s", date)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}
	return snap
}

func newTestStore() *Store {
	return NewStore(zerolog.Nop())
}

func active(program, subprogram string) activity.ActiveProgramKey {
	return activity.ActiveProgramKey{Program: program, Subprogram: subprogram}
}

func open(program string) activity.ProgramKey {
	return activity.ProgramKey{Program: program}
}

// blockingSink holds every Write open until release is closed.
type blockingSink struct {
	*memSink
	started chan string
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		memSink: newMemSink(),
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
}

func (b *blockingSink) Write(ctx context.Context, date string, data []byte) error {
	b.started <- date
	<-b.release
	return b.memSink.Write(ctx, date, data)
}
