package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

var (
	// Ingest metrics
	BatchesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_batches_merged_total",
			Help: "Total usage batches merged into the live store",
		},
	)

	SecondsMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_seconds_merged_total",
			Help: "Total usage seconds merged into the live store",
		},
		[]string{"kind"},
	)

	DeviceUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_device_updates_total",
			Help: "Total device info updates",
		},
	)

	Accounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_accounts",
			Help: "Number of accounts with state for the current date",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monitor_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	// Persistence metrics
	SnapshotWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_snapshot_writes_total",
			Help: "Total snapshot writes by result",
		},
		[]string{"result"},
	)

	SnapshotWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_snapshot_write_duration_seconds",
			Help:    "Snapshot write duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	Rotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_rotations_total",
			Help: "Total date rotations",
		},
	)

	PendingSnapshots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_pending_snapshots",
			Help: "Rotated snapshots waiting for a successful write",
		},
	)

	// Client metrics
	ClientSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_client_sends_total",
			Help: "Total batch sends by result",
		},
		[]string{"result"},
	)

	ClientTickErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_client_tick_errors_total",
			Help: "Ticks aborted by a window backend error",
		},
	)

	ClassifierCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_classifier_cache_hits_total",
			Help: "Window classification cache hits",
		},
	)

	ClassifierCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_classifier_cache_misses_total",
			Help: "Window classification cache misses",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		BatchesMerged,
		SecondsMerged,
		DeviceUpdates,
		Accounts,
		RequestDuration,
		SnapshotWrites,
		SnapshotWriteDuration,
		Rotations,
		PendingSnapshots,
		ClientSends,
		ClientTickErrors,
		ClassifierCacheHits,
		ClassifierCacheMisses,
	)
}

// Server exposes /metrics and /health.
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // set for systemd socket activation
}

// NewServer creates a metrics server for addr.
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener, unless one was provided, and serves in the
// background. Bind errors are returned.
func (s *Server) Start() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
		}
		s.listener = ln
	} else {
		s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
	}

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight scrapes.
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
