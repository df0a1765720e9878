package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestRotator(t *testing.T, now time.Time) (*Rotator, *Store, *memSink, *TestClock) {
	t.Helper()
	store := newTestStore()
	sink := newMemSink()
	clock := &TestClock{CurrentTime: now}
	return NewRotator(store, sink, clock, time.Hour, zerolog.Nop()), store, sink, clock
}

func day(d, hour int) time.Time {
	return time.Date(2024, time.March, d, hour, 0, 0, 0, time.Local)
}

func TestRotator_LoadMissing(t *testing.T) {
	r, store, _, _ := newTestRotator(t, day(1, 12))
	store.MergeUsage("stale", batchOf(1, ActiveTotals{active("Code", ""): 1}, nil))

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(store.Accounts()) != 0 {
		t.Errorf("Expected empty store, got %v", store.Accounts())
	}
}

func TestRotator_LoadRestores(t *testing.T) {
	r, store, sink, _ := newTestRotator(t, day(1, 12))
	sink.data["2024-03-01"] = []byte(`{"alice":{"devices":{},"monitor":{"1":{"active":{"Code":9},"open":{"Code":9}}}}}`)

	if err := r.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	state, ok := store.ReadAccount("alice")
	if !ok {
		t.Fatal("Expected alice to be restored")
	}
	if state.Monitor[1].Active[active("Code", "")] != 9 {
		t.Errorf("Expected Code 9s, got %v", state.Monitor[1].Active)
	}
}

func TestRotator_LoadErrors(t *testing.T) {
	r, _, sink, _ := newTestRotator(t, day(1, 12))
	sink.data["2024-03-01"] = []byte("not json")

	if err := r.Load(context.Background()); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("Expected ErrCorruptSnapshot, got %v", err)
	}

	sink.setFail(true)
	if err := r.Load(context.Background()); !errors.Is(err, errSinkDown) {
		t.Errorf("Expected sink error, got %v", err)
	}
}

func TestRotator_TickWritesToday(t *testing.T) {
	r, store, sink, _ := newTestRotator(t, day(1, 12))
	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 4}, nil))

	r.Tick(context.Background())

	snap := sink.snapshot(t, "2024-03-01")
	if snap["alice"].Monitor[1].Active[active("Code", "")] != 4 {
		t.Errorf("Expected Code 4s in snapshot, got %v", snap["alice"].Monitor[1].Active)
	}
	if r.Date() != "2024-03-01" {
		t.Errorf("Expected date 2024-03-01, got %s", r.Date())
	}
}

func TestRotator_Rotation(t *testing.T) {
	r, store, sink, clock := newTestRotator(t, day(1, 23))
	ctx := context.Background()

	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 4}, nil))
	r.Tick(ctx)

	// Usage arriving before the next tick still belongs to the old day
	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 6}, nil))

	clock.Set(day(2, 0))
	r.Tick(ctx)

	if r.Date() != "2024-03-02" {
		t.Fatalf("Expected date 2024-03-02, got %s", r.Date())
	}
	if len(store.Accounts()) != 0 {
		t.Errorf("Expected empty state after rotation, got %v", store.Accounts())
	}

	snap := sink.snapshot(t, "2024-03-01")
	if got := snap["alice"].Monitor[1].Active[active("Code", "")]; got != 10 {
		t.Errorf("Expected final old-day snapshot with 10s, got %d", got)
	}

	// One periodic write and one final write under the old date
	if len(sink.writes) != 2 || sink.writes[0] != "2024-03-01" || sink.writes[1] != "2024-03-01" {
		t.Errorf("Unexpected write sequence: %v", sink.writes)
	}

	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 1}, nil))
	r.Tick(ctx)
	snap = sink.snapshot(t, "2024-03-02")
	if got := snap["alice"].Monitor[1].Active[active("Code", "")]; got != 1 {
		t.Errorf("Expected new-day snapshot with 1s, got %d", got)
	}
}

func TestRotator_RotationRetriesFailedWrite(t *testing.T) {
	r, store, sink, clock := newTestRotator(t, day(1, 23))
	ctx := context.Background()

	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 8}, nil))

	sink.setFail(true)
	clock.Set(day(2, 0))
	r.Tick(ctx)

	if len(store.Accounts()) != 0 {
		t.Errorf("Expected rotation to proceed despite write failure")
	}
	pending, ok := r.Pending("2024-03-01")
	if !ok {
		t.Fatal("Expected old-day snapshot to be pending")
	}
	if pending["alice"].Monitor[1].Active[active("Code", "")] != 8 {
		t.Errorf("Unexpected pending snapshot: %v", pending["alice"].Monitor[1].Active)
	}

	// Still failing: stays pending
	r.Tick(ctx)
	if _, ok := r.Pending("2024-03-01"); !ok {
		t.Fatal("Expected snapshot to remain pending while the sink fails")
	}

	sink.setFail(false)
	r.Tick(ctx)

	if _, ok := r.Pending("2024-03-01"); ok {
		t.Error("Expected pending snapshot to be written")
	}
	snap := sink.snapshot(t, "2024-03-01")
	if snap["alice"].Monitor[1].Active[active("Code", "")] != 8 {
		t.Errorf("Expected retried snapshot with 8s, got %v", snap["alice"].Monitor[1].Active)
	}
}

func TestRotator_TickFailureKeepsState(t *testing.T) {
	r, store, sink, _ := newTestRotator(t, day(1, 12))
	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 4}, nil))

	sink.setFail(true)
	r.Tick(context.Background())

	if _, ok := store.ReadAccount("alice"); !ok {
		t.Error("Expected live state to survive a failed write")
	}
	if err := r.Flush(context.Background()); !errors.Is(err, errSinkDown) {
		t.Errorf("Expected Flush to report sink error, got %v", err)
	}
}

func TestRotator_StartStop(t *testing.T) {
	store := newTestStore()
	sink := newMemSink()
	r := NewRotator(store, sink, &TestClock{CurrentTime: day(1, 12)}, 10*time.Millisecond, zerolog.Nop())

	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 2}, nil))
	r.Start()
	time.Sleep(50 * time.Millisecond)

	store.MergeUsage("alice", batchOf(1, ActiveTotals{active("Code", ""): 3}, nil))
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Final flush captures everything merged before Stop
	snap := sink.snapshot(t, "2024-03-01")
	if got := snap["alice"].Monitor[1].Active[active("Code", "")]; got != 5 {
		t.Errorf("Expected 5s after final flush, got %d", got)
	}
}

func TestRotator_StopWithoutStart(t *testing.T) {
	r, _, _, _ := newTestRotator(t, day(1, 12))
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
