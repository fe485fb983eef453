// Package config loads renderqueued's operational configuration from
// a TOML file, applies environment-variable overrides, and watches
// the file for changes so a subset of tuning knobs can be hot-reloaded
// without restarting the process.
package config

import (
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/go-faster/errors"
	"github.com/renderqueue/core/queue"
)

// StoreConfig names the SQLite database files backing each subsystem.
// A single file may be shared by setting QueueDBPath and WebhookDBPath
// to the same path.
type StoreConfig struct {
	QueueDBPath   string `toml:"queue_db_path"`
	WebhookDBPath string `toml:"webhook_db_path"`
}

// SchedulerConfig mirrors queue.SchedulerConfig's tunable fields as
// plain, TOML/env friendly types (durations as milliseconds).
type SchedulerConfig struct {
	Concurrency      int    `toml:"concurrency"`
	BatchSize        int    `toml:"batch_size"`
	ClaimQueue       string `toml:"claim_queue"`
	JobTimeoutMs     int64  `toml:"job_timeout_ms"`
	PollIntervalMs   int64  `toml:"poll_interval_ms"`
	BackoffStrategy  string `toml:"backoff_strategy"` // fixed|linear|exponential
	BaseDelayMs      int64  `toml:"base_delay_ms"`
	MaxDelayMs       int64  `toml:"max_delay_ms"`
	MaxAttempts      uint32 `toml:"max_attempts"`
	StallCheckMs     int64  `toml:"stall_check_ms"`
	RetentionMs      int64  `toml:"retention_ms"`
	StatsIntervalMs  int64  `toml:"stats_interval_ms"`
}

// WebhookConfig controls outbound delivery tuning.
type WebhookConfig struct {
	Concurrency        int    `toml:"concurrency"`
	MaxAttempts        uint32 `toml:"delivery_max_retries"`
	DeliveryTimeoutMs  int64  `toml:"delivery_timeout_ms"`
	BreakerMaxFailures uint32 `toml:"breaker_max_failures"`
	DisableAfterFailures uint32 `toml:"disable_after_failures"`
}

// IdemCacheConfig controls the optional redis read-through cache.
// Addr empty disables the cache entirely.
type IdemCacheConfig struct {
	Addr  string `toml:"addr"`
	TTLMs int64  `toml:"ttl_ms"`
}

// TTL returns the configured cache entry lifetime as a time.Duration.
func (c *IdemCacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// Config is the full operational configuration of renderqueued.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Webhook   WebhookConfig   `toml:"webhook"`
	IdemCache IdemCacheConfig `toml:"idemcache"`
}

// Default returns a Config populated with the values spec §6
// recommends as operational defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			QueueDBPath:   "renderqueue.db",
			WebhookDBPath: "renderqueue.db",
		},
		Scheduler: SchedulerConfig{
			Concurrency:     8,
			BatchSize:       16,
			JobTimeoutMs:    30_000,
			PollIntervalMs:  500,
			BackoffStrategy: "exponential",
			BaseDelayMs:     1_000,
			MaxDelayMs:      3_600_000,
			MaxAttempts:     5,
			StallCheckMs:    30_000,
			RetentionMs:     7 * 24 * 60 * 60 * 1000,
			StatsIntervalMs: 60_000,
		},
		Webhook: WebhookConfig{
			Concurrency:          4,
			MaxAttempts:          5,
			DeliveryTimeoutMs:    10_000,
			BreakerMaxFailures:   5,
			DisableAfterFailures: 20,
		},
		IdemCache: IdemCacheConfig{
			TTLMs: 5 * 60 * 1000,
		},
	}
}

// Load reads path as TOML on top of Default, then applies environment
// overrides. A missing path is not an error; Default with env
// overrides applied is returned instead.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("QUEUE_DB_PATH"); v != "" {
		cfg.Store.QueueDBPath = v
	}
	if v := os.Getenv("WEBHOOK_DB_PATH"); v != "" {
		cfg.Store.WebhookDBPath = v
	} else if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Store.QueueDBPath = v
		cfg.Store.WebhookDBPath = v
	}
	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.Concurrency = n
		}
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.BatchSize = n
		}
	}
	if v := os.Getenv("BACKOFF_STRATEGY"); v != "" {
		cfg.Scheduler.BackoffStrategy = v
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Scheduler.MaxAttempts = uint32(n)
		}
	}
	if v := os.Getenv("IDEMCACHE_ADDR"); v != "" {
		cfg.IdemCache.Addr = v
	}
}

// BackoffStrategyValue resolves the configured strategy name to a
// queue.BackoffStrategy, defaulting to queue.BackoffExponential for an
// unrecognized or empty value.
func (c *SchedulerConfig) BackoffStrategyValue() queue.BackoffStrategy {
	switch c.BackoffStrategy {
	case "fixed":
		return queue.BackoffFixed
	case "linear":
		return queue.BackoffLinear
	default:
		return queue.BackoffExponential
	}
}

// ToSchedulerConfig converts the TOML-friendly SchedulerConfig into
// queue.SchedulerConfig, with duration fields expanded from their
// millisecond representation.
func (c *SchedulerConfig) ToSchedulerConfig() *queue.SchedulerConfig {
	return &queue.SchedulerConfig{
		Concurrency:  c.Concurrency,
		BatchSize:    c.BatchSize,
		ClaimQueue:   c.ClaimQueue,
		PollInterval: time.Duration(c.PollIntervalMs) * time.Millisecond,
		Lease:        time.Duration(c.JobTimeoutMs) * time.Millisecond,
		Backoff: queue.BackoffConfig{
			MaxRetries: c.MaxAttempts,
			Strategy:   c.BackoffStrategyValue(),
			BaseDelay:  time.Duration(c.BaseDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(c.MaxDelayMs) * time.Millisecond,
		},
	}
}
