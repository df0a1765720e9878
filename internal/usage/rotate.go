package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/metrics"
	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultSnapshotInterval is how often the live state is persisted.
const DefaultSnapshotInterval = 30 * time.Second

const stopFlushTimeout = 10 * time.Second

// Rotator persists the live store to a snapshot sink and starts a fresh,
// empty state whenever the calendar date changes.
type Rotator struct {
	store    *Store
	sink     storage.SnapshotStore
	clock    Clock
	interval time.Duration
	logger   zerolog.Logger

	// runMu serializes ticks and flushes. mu guards date and pending and is
	// never held across I/O.
	runMu   sync.Mutex
	mu      sync.RWMutex
	date    string
	pending map[string]Snapshot // rotated days whose final write failed

	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewRotator creates a rotator for store. A nil clock uses the system time
// and a non-positive interval uses DefaultSnapshotInterval.
func NewRotator(store *Store, sink storage.SnapshotStore, clock Clock, interval time.Duration, logger zerolog.Logger) *Rotator {
	if clock == nil {
		clock = RealClock{}
	}
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}

	return &Rotator{
		store:    store,
		sink:     sink,
		clock:    clock,
		interval: interval,
		logger:   logger.With().Str("component", "rotator").Logger(),
		date:     dateOf(clock.Now()),
		pending:  make(map[string]Snapshot),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Date returns the date the live state belongs to.
func (r *Rotator) Date() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.date
}

// Pending returns a copy of a rotated snapshot that has not been written yet.
func (r *Rotator) Pending(date string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.pending[date]
	if !ok {
		return nil, false
	}
	return snap.Clone(), true
}

// Load restores today's snapshot into the store. A missing snapshot starts
// the day empty; an undecodable one is an error.
func (r *Rotator) Load(ctx context.Context) error {
	date := r.Date()

	data, err := r.sink.Read(ctx, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			r.logger.Info().Str("date", date).Msg("No snapshot for today, starting empty")
			r.store.Replace(make(Snapshot))
			return nil
		}
		return fmt.Errorf("failed to read snapshot for %s: %w", date, err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("snapshot for %s: %w", date, err)
	}

	r.store.Replace(snap)
	r.logger.Info().
		Str("date", date).
		Int("accounts", len(snap)).
		Msg("Restored snapshot")
	return nil
}

// Tick performs one persistence step. On an unchanged date the live state
// is written under that date. On a date change the live state is swapped
// for an empty one and written under the old date. Write failures are
// logged; a failed rotation write is retried on later ticks.
func (r *Rotator) Tick(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.retryPending(ctx)

	today := dateOf(r.clock.Now())
	current := r.Date()

	if today == current {
		if err := r.write(ctx, current, r.store.Export()); err != nil {
			r.logger.Error().Err(err).Str("date", current).Msg("Failed to write snapshot")
		}
		return
	}

	// The old day stays queryable as pending until its final write lands.
	r.mu.Lock()
	snap := r.store.Swap()
	r.pending[current] = snap
	r.date = today
	pending := len(r.pending)
	r.mu.Unlock()
	metrics.Rotations.Inc()
	metrics.PendingSnapshots.Set(float64(pending))

	r.logger.Info().
		Str("old_date", current).
		Str("new_date", today).
		Int("accounts", len(snap)).
		Msg("Date changed, rotating usage state")

	if err := r.write(ctx, current, snap); err != nil {
		r.logger.Error().Err(err).Str("date", current).Msg("Failed to write rotated snapshot, will retry")
		return
	}

	r.mu.Lock()
	delete(r.pending, current)
	pending = len(r.pending)
	r.mu.Unlock()
	metrics.PendingSnapshots.Set(float64(pending))
}

// Flush writes the live state under the current date and retries any
// pending rotated snapshots.
func (r *Rotator) Flush(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	var errs []error
	if err := r.retryPending(ctx); err != nil {
		errs = append(errs, err)
	}
	date := r.Date()
	if err := r.write(ctx, date, r.store.Export()); err != nil {
		errs = append(errs, fmt.Errorf("failed to write snapshot for %s: %w", date, err))
	}
	return errors.Join(errs...)
}

// Start begins the periodic snapshot loop
func (r *Rotator) Start() {
	r.started.Store(true)
	go r.run()
	r.logger.Info().
		Dur("interval", r.interval).
		Str("date", r.Date()).
		Msg("Snapshot rotator started")
}

// Stop stops the loop and performs a final flush
func (r *Rotator) Stop() error {
	r.stopOnce.Do(func() {
		close(r.stopChan)
		if r.started.Load() {
			<-r.doneChan
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), stopFlushTimeout)
	defer cancel()

	err := r.Flush(ctx)
	r.logger.Info().Err(err).Msg("Snapshot rotator stopped")
	return err
}

// run is the main loop
func (r *Rotator) run() {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick(context.Background())
		case <-r.stopChan:
			return
		}
	}
}

// retryPending writes every pending snapshot. Must be called with runMu held.
func (r *Rotator) retryPending(ctx context.Context) error {
	r.mu.RLock()
	dates := make([]string, 0, len(r.pending))
	for date := range r.pending {
		dates = append(dates, date)
	}
	r.mu.RUnlock()

	var errs []error
	for _, date := range dates {
		r.mu.RLock()
		snap := r.pending[date]
		r.mu.RUnlock()

		if err := r.write(ctx, date, snap); err != nil {
			errs = append(errs, fmt.Errorf("failed to write pending snapshot for %s: %w", date, err))
			continue
		}

		r.mu.Lock()
		delete(r.pending, date)
		pending := len(r.pending)
		r.mu.Unlock()
		metrics.PendingSnapshots.Set(float64(pending))

		r.logger.Info().Str("date", date).Msg("Wrote pending snapshot")
	}

	if len(errs) > 0 {
		r.logger.Warn().Int("pending", len(errs)).Msg("Pending snapshots still unwritten")
	}
	return errors.Join(errs...)
}

func (r *Rotator) write(ctx context.Context, date string, snap Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		return err
	}

	start := time.Now()
	err = r.sink.Write(ctx, date, data)
	metrics.SnapshotWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		return err
	}

	metrics.SnapshotWrites.WithLabelValues("ok").Inc()
	r.logger.Debug().
		Str("date", date).
		Int("bytes", len(data)).
		Msg("Wrote snapshot")
	return nil
}
