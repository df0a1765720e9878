package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Allen-B1/monitor-v3/internal/activity"
	"github.com/Allen-B1/monitor-v3/internal/client"
	"github.com/Allen-B1/monitor-v3/internal/config"
	"github.com/Allen-B1/monitor-v3/internal/usage"
	"github.com/Allen-B1/monitor-v3/internal/x11"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	clientName      string
	clientServerURL string
	clientDeviceID  int
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Report local window usage to a Monitor server",
	Long: `Poll the X11 display once per tick and send the accumulated usage for
the configured account to the server.`,
	Example: `  monitor client --name alice
  monitor -c /etc/monitor/config.yaml client --server http://monitor.home.local:8080`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientName, "name", "", "Account name (overrides client.name)")
	clientCmd.Flags().StringVar(&clientServerURL, "server", "", "Server URL (overrides client.server_url)")
	clientCmd.Flags().IntVar(&clientDeviceID, "device", -1, "Device id (overrides client.device_id)")
	rootCmd.AddCommand(clientCmd)
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	if clientName != "" {
		cfg.Client.Name = clientName
	}
	if clientServerURL != "" {
		cfg.Client.ServerURL = clientServerURL
	}
	if cmd.Flags().Changed("device") {
		cfg.Client.DeviceID = clientDeviceID
	}

	if cfg.Client.Name == "" {
		return fmt.Errorf("an account name is required (set client.name or --name)")
	}

	device, err := resolveDeviceID(cfg.Client.DeviceID)
	if err != nil {
		return err
	}

	deviceType, err := usage.ParseDeviceType(cfg.Client.DeviceType)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg.Client.SiteRules)
	if err != nil {
		return err
	}

	builder, err := activity.NewBuilder(registry, cfg.Client.CacheSize)
	if err != nil {
		return err
	}

	sender, err := client.NewHTTPSender(cfg.Client.ServerURL)
	if err != nil {
		return err
	}

	display := x11.NewBackend(nil)
	var backend activity.WindowBackend = display
	gate, err := x11.NewLockGate()
	if err != nil {
		logger.Warn().Err(err).Msg("Session lock state unavailable, counting while locked")
	} else {
		defer gate.Close()
		backend = x11.Session{Backend: display, LockGate: gate}
	}

	reporter := client.NewReporter(client.Config{
		Account:    cfg.Client.Name,
		Device:     device,
		Info:       client.DetectDeviceInfo(deviceType),
		Tick:       parseDuration(cfg.Client.Tick, client.DefaultTick),
		FlushTicks: cfg.Client.FlushTicks,
	}, builder, backend, sender, logger)

	logger.Info().
		Str("version", version).
		Str("server", cfg.Client.ServerURL).
		Msg("Starting Monitor client")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return reporter.Run(ctx)
}

// resolveDeviceID returns the configured id, or derives one from the local
// address when id is negative.
func resolveDeviceID(id int) (usage.DeviceID, error) {
	if id >= 0 {
		if id > 65535 {
			return 0, fmt.Errorf("invalid device id: %d", id)
		}
		return usage.DeviceID(id), nil
	}
	derived, err := client.DiscoverDeviceID()
	if err != nil {
		return 0, fmt.Errorf("failed to derive device id (set client.device_id): %w", err)
	}
	return derived, nil
}

// buildRegistry returns the built-in classification rules extended with the
// configured site rules.
func buildRegistry(rules []config.SiteRuleConfig) (*activity.Registry, error) {
	registry := activity.DefaultRegistry()
	for i, rule := range rules {
		kind, err := activity.ParseMatchKind(rule.Match)
		if err != nil {
			return nil, fmt.Errorf("client.site_rules[%d]: %w", i, err)
		}
		site := activity.SiteMatcher{Kind: kind, Literal: rule.Literal, Label: rule.Label}
		if err := registry.AddSite(rule.Process, site); err != nil {
			return nil, fmt.Errorf("client.site_rules[%d]: %w", i, err)
		}
	}
	return registry, nil
}
