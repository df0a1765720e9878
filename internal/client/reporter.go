package client

import (
	"context"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/activity"
	"github.com/Allen-B1/monitor-v3/internal/metrics"
	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/rs/zerolog"
)

const (
	// DefaultTick is the polling period; each tick counts as one second.
	DefaultTick = time.Second
	// DefaultFlushTicks is how many ticks accumulate before a batch is sent.
	DefaultFlushTicks = 15

	finalSendTimeout = 5 * time.Second
)

// Config holds reporter settings.
type Config struct {
	Account    string
	Device     usage.DeviceID
	Info       usage.DeviceInfo
	Tick       time.Duration
	FlushTicks int
}

// Reporter polls a window backend, accumulates the tallies into a batch and
// sends the batch every FlushTicks ticks. A failed send keeps the batch, so
// its usage rides along with the next attempt.
type Reporter struct {
	cfg     Config
	builder *activity.Builder
	backend activity.WindowBackend
	sender  Sender
	logger  zerolog.Logger

	batch       *usage.Batch
	tickSeconds uint32
	ticks       int
	registered  bool
}

// NewReporter creates a reporter.
func NewReporter(cfg Config, builder *activity.Builder, backend activity.WindowBackend, sender Sender, logger zerolog.Logger) *Reporter {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.FlushTicks <= 0 {
		cfg.FlushTicks = DefaultFlushTicks
	}

	return &Reporter{
		cfg:     cfg,
		builder: builder,
		backend: backend,
		sender:  sender,
		logger: logger.With().
			Str("component", "reporter").
			Str("account", cfg.Account).
			Uint16("device", uint16(cfg.Device)).
			Logger(),
		batch:       usage.NewBatch(cfg.Device),
		tickSeconds: tickSeconds(cfg.Tick),
	}
}

// tickSeconds is the usage credited for one observation. Ticks shorter
// than a second still count as one.
func tickSeconds(tick time.Duration) uint32 {
	if secs := tick / time.Second; secs > 1 {
		return uint32(secs)
	}
	return 1
}

// Run registers the device and polls until ctx is cancelled. On return it
// makes one last attempt to send what has accumulated.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info().
		Dur("tick", r.cfg.Tick).
		Int("flush_ticks", r.cfg.FlushTicks).
		Str("info", r.cfg.Info.String()).
		Msg("Reporter started")

	r.register(ctx)

	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.finalFlush()
			r.logger.Info().Msg("Reporter stopped")
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step performs one polling tick and sends the batch when it is due.
func (r *Reporter) Step(ctx context.Context) {
	tally, err := r.builder.Tick(ctx, r.backend)
	if err != nil {
		metrics.ClientTickErrors.Inc()
		r.logger.Warn().Err(err).Msg("Tick failed")
	} else {
		r.batch.AddTally(tally, r.tickSeconds)
	}

	r.ticks++
	if r.ticks >= r.cfg.FlushTicks {
		r.ticks = 0
		r.flush(ctx)
	}
}

// Pending returns the unsent batch.
func (r *Reporter) Pending() *usage.Batch {
	return r.batch
}

func (r *Reporter) register(ctx context.Context) {
	record := usage.DeviceRecord{ID: r.cfg.Device, Data: r.cfg.Info}
	if err := r.sender.SendDevice(ctx, r.cfg.Account, record); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to register device, will retry")
		return
	}
	r.registered = true
	r.logger.Info().Msg("Device registered")
}

func (r *Reporter) flush(ctx context.Context) {
	if !r.registered {
		r.register(ctx)
	}
	if r.batch.Empty() {
		return
	}

	if err := r.sender.SendBatch(ctx, r.cfg.Account, r.batch); err != nil {
		metrics.ClientSends.WithLabelValues("error").Inc()
		r.logger.Warn().
			Err(err).
			Int("active_keys", len(r.batch.Active)).
			Int("open_keys", len(r.batch.Open)).
			Msg("Failed to send usage, keeping batch")
		return
	}

	metrics.ClientSends.WithLabelValues("ok").Inc()
	r.logger.Debug().
		Int("active_keys", len(r.batch.Active)).
		Int("open_keys", len(r.batch.Open)).
		Msg("Sent usage")
	r.batch = usage.NewBatch(r.cfg.Device)
}

func (r *Reporter) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), finalSendTimeout)
	defer cancel()
	r.flush(ctx)
}
