package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Allen-B1/monitor-v3/internal/config"
	"github.com/Allen-B1/monitor-v3/internal/storage"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "monitor"

// Store implements storage.SnapshotStore using Redis. Each date is a string
// key; a set indexes the stored dates.
type Store struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	var retention time.Duration
	if cfg.Retention != "" {
		retention, err = time.ParseDuration(cfg.Retention)
		if err != nil {
			return nil, fmt.Errorf("invalid retention: %w", err)
		}
	}

	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &Store{
		client:    client,
		keyPrefix: prefix,
		retention: retention,
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) snapshotKey(date string) string {
	return fmt.Sprintf("%s:snapshot:%s", s.keyPrefix, date)
}

func (s *Store) indexKey() string {
	return s.keyPrefix + ":snapshots"
}

// Write stores the snapshot for date and records it in the date index.
func (s *Store) Write(ctx context.Context, date string, data []byte) error {
	if err := storage.ValidateDate(date); err != nil {
		return err
	}

	script := redis.NewScript(writeSnapshotScript)
	keys := []string{s.snapshotKey(date), s.indexKey()}
	args := []interface{}{date, data, int64(s.retention / time.Second)}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Read returns the snapshot for date.
func (s *Store) Read(ctx context.Context, date string) ([]byte, error) {
	if err := storage.ValidateDate(date); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.snapshotKey(date)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Dates returns the indexed dates whose snapshot has not expired. Expired
// entries are pruned from the index.
func (s *Store) Dates(ctx context.Context) ([]string, error) {
	dates, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return []string{}, nil
	}

	// Use pipeline for efficient existence checks
	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(dates))
	for i, date := range dates {
		cmds[i] = pipe.Exists(ctx, s.snapshotKey(date))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	live := make([]string, 0, len(dates))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			live = append(live, dates[i])
		} else {
			stale = append(stale, dates[i])
		}
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, err
		}
	}

	sort.Strings(live)
	return live, nil
}
