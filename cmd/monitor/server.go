package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/api"
	"github.com/Allen-B1/monitor-v3/internal/config"
	"github.com/Allen-B1/monitor-v3/internal/metrics"
	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/Allen-B1/monitor-v3/internal/storage/bolt"
	"github.com/Allen-B1/monitor-v3/internal/storage/file"
	"github.com/Allen-B1/monitor-v3/internal/storage/redis"
	"github.com/Allen-B1/monitor-v3/internal/systemd"
	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const loadTimeout = 30 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Monitor server",
	Long:  `Start the usage API, the snapshot rotator and the metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting Monitor")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to get systemd listeners")
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}
	if systemd.IsSystemdService() {
		logger.Debug().Msg("Running as a systemd notify service")
	}

	sink, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	store := usage.NewStore(logger)
	interval := parseDuration(cfg.Snapshot.Interval, usage.DefaultSnapshotInterval)
	rotator := usage.NewRotator(store, sink, nil, interval, logger)

	loadCtx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	err = rotator.Load(loadCtx)
	cancel()
	if err != nil {
		// A corrupt snapshot must not be silently replaced by an empty day.
		return fmt.Errorf("failed to restore today's snapshot: %w", err)
	}

	rotator.Start()
	logger.Info().
		Str("date", rotator.Date()).
		Dur("interval", interval).
		Msg("Snapshot rotator started")

	service := usage.NewService(store, rotator, logger)

	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	apiServer := api.NewServer(apiAddr, service, logger)
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		if stopErr := rotator.Stop(); stopErr != nil {
			logger.Error().Err(stopErr).Msg("Failed to flush snapshots")
		}
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.Info().Str("addr", apiAddr).Msg("API server started")

	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 || (sdListeners.Activated && sdListeners.Metrics != nil) {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Failed to start Metrics Server")
			metricsServer = nil
		} else {
			logger.Info().Str("addr", metricsAddr).Msg("Metrics Server started")
		}
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	stopWatchdog := make(chan struct{})
	if interval := systemd.WatchdogInterval(); interval > 0 {
		go runWatchdog(interval, stopWatchdog, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, writing snapshot")
			rotator.Tick(context.Background())
			continue
		}
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	close(stopWatchdog)

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop accepting submissions before the final snapshot write.
	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	if err := rotator.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to write final snapshot")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("Monitor stopped")

	return nil
}

func runWatchdog(interval time.Duration, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		}
	}
}

func openStorage(cfg config.StorageConfig) (storage.SnapshotStore, error) {
	switch cfg.Type {
	case "", "file":
		return file.Open(cfg.Path)
	case "bolt":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be file, bolt or redis)", cfg.Type)
	}
}
