package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Client   ClientConfig   `mapstructure:"client"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"` // 0 disables the metrics server
}

// StorageConfig defines the snapshot backend
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "file", "bolt" or "redis"
	Path  string      `mapstructure:"path"` // directory for file, database file for bolt
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	Retention    string `mapstructure:"retention"` // empty keeps snapshots forever
}

// SnapshotConfig defines persistence cadence
type SnapshotConfig struct {
	Interval string `mapstructure:"interval"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ClientConfig defines the reporting client
type ClientConfig struct {
	Name       string           `mapstructure:"name"`
	DeviceID   int              `mapstructure:"device_id"` // -1 derives the id from the local address
	ServerURL  string           `mapstructure:"server_url"`
	Tick       string           `mapstructure:"tick"`
	FlushTicks int              `mapstructure:"flush_ticks"`
	DeviceType string           `mapstructure:"device_type"`
	CacheSize  int              `mapstructure:"cache_size"`
	SiteRules  []SiteRuleConfig `mapstructure:"site_rules"`
}

// SiteRuleConfig adds a site matcher to a browser's classification rule
type SiteRuleConfig struct {
	Process string `mapstructure:"process"`
	Match   string `mapstructure:"match"` // "equals", "prefix" or "suffix"
	Literal string `mapstructure:"literal"`
	Label   string `mapstructure:"label"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("MONITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "file")
	v.SetDefault("storage.path", "/var/lib/monitor")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")
	v.SetDefault("storage.redis.key_prefix", "monitor")
	v.SetDefault("storage.redis.retention", "")

	// Snapshot defaults
	v.SetDefault("snapshot.interval", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Client defaults
	v.SetDefault("client.name", "")
	v.SetDefault("client.device_id", -1)
	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.tick", "1s")
	v.SetDefault("client.flush_ticks", 15)
	v.SetDefault("client.device_type", "other")
	v.SetDefault("client.cache_size", 1024)
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// KnownKeys returns the set of recognised configuration keys. List valued
// keys such as client.site_rules are matched as a whole.
func KnownKeys() map[string]bool {
	v := viper.New()
	setDefaults(v)

	keys := map[string]bool{"client.site_rules": true}
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "file"
	}
	switch cfg.Storage.Type {
	case "file", "bolt":
		// Validate storage path
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
		if cfg.Storage.Redis.Retention != "" {
			if _, err := parsePositive("storage.redis.retention", cfg.Storage.Redis.Retention); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown storage type: %s (must be file, bolt or redis)", cfg.Storage.Type)
	}

	if _, err := parsePositive("snapshot.interval", cfg.Snapshot.Interval); err != nil {
		return err
	}
	tick, err := parsePositive("client.tick", cfg.Client.Tick)
	if err != nil {
		return err
	}
	if tick%time.Second != 0 {
		return fmt.Errorf("client.tick must be a whole number of seconds, got %s", cfg.Client.Tick)
	}

	if cfg.Client.FlushTicks <= 0 {
		return fmt.Errorf("client.flush_ticks must be positive, got %d", cfg.Client.FlushTicks)
	}
	if cfg.Client.DeviceID < -1 || cfg.Client.DeviceID > 65535 {
		return fmt.Errorf("invalid client.device_id: %d", cfg.Client.DeviceID)
	}
	if cfg.Client.CacheSize <= 0 {
		return fmt.Errorf("client.cache_size must be positive, got %d", cfg.Client.CacheSize)
	}
	if strings.Contains(cfg.Client.Name, "/") {
		return fmt.Errorf("client.name must not contain '/'")
	}
	if _, err := url.Parse(cfg.Client.ServerURL); err != nil {
		return fmt.Errorf("invalid client.server_url: %w", err)
	}

	for i, rule := range cfg.Client.SiteRules {
		if rule.Process == "" || rule.Literal == "" || rule.Label == "" {
			return fmt.Errorf("client.site_rules[%d]: process, literal and label are required", i)
		}
	}

	return nil
}

func parsePositive(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}
