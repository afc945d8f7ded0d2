// Package config loads hermesd's runtime configuration from environment
// variables (with an optional .env file for local development), adapted
// from the teacher's env/v11 + godotenv config loader.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all hermesd configuration. Tags:
//
//	env:        environment variable name
//	envDefault: default value if unset
type Config struct {
	// Server basics
	WSAddr      string `env:"HERMES_WS_ADDR" envDefault:":8910"`
	HTTPAddr    string `env:"HERMES_HTTP_ADDR" envDefault:":8911"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Ingestion
	IngestTransport string `env:"HERMES_INGEST_TRANSPORT" envDefault:"nats"` // "nats" | "kafka"
	NATSURL         string `env:"HERMES_NATS_URL" envDefault:"nats://localhost:4222"`
	NATSSubject     string `env:"HERMES_NATS_SUBJECT" envDefault:"pythnet.accumulator"`
	KafkaBrokers    string `env:"HERMES_KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaTopic      string `env:"HERMES_KAFKA_TOPIC" envDefault:"pythnet-accumulator"`
	KafkaGroup      string `env:"HERMES_KAFKA_CONSUMER_GROUP" envDefault:"hermes-aggregator"`

	// Guardian set bootstrap: a local JSON file is the only supported source
	// (no on-chain RPC client is wired, see DESIGN.md); the in-memory store
	// otherwise starts empty until a governance VAA populates it.
	GuardianSetPath string `env:"HERMES_GUARDIAN_SET_PATH" envDefault:""`

	// Accepted VAA sources (spec.md §4.2's source allow-list)
	PythnetChainID           uint16 `env:"HERMES_PYTHNET_CHAIN_ID" envDefault:"26"`
	PythnetEmitterAddress    string `env:"HERMES_PYTHNET_EMITTER_ADDRESS" envDefault:"000000000000000000000000000000000000000000000000000000000000000f"`
	GovernanceChainID        uint16 `env:"HERMES_GOVERNANCE_CHAIN_ID" envDefault:"1"`
	GovernanceEmitterAddress string `env:"HERMES_GOVERNANCE_EMITTER_ADDRESS" envDefault:"0000000000000000000000000000000000000000000000000000000000000004"`

	// Capacity / limits
	MaxConnections int    `env:"HERMES_WS_MAX_CONNECTIONS" envDefault:"0"` // 0 = size from the memory limit
	BytesPerSecond int    `env:"HERMES_WS_BYTES_PER_SECOND" envDefault:"262144"` // 256 KiB/s
	ClientIPHeader string `env:"HERMES_CLIENT_IP_HEADER" envDefault:""`          // e.g. "X-Forwarded-For" behind a reverse proxy

	// Cache sizing
	CachePerFeedCapacity int `env:"HERMES_CACHE_PER_FEED_CAPACITY" envDefault:"1000"`

	// Readiness thresholds
	MaxStaleness time.Duration `env:"HERMES_MAX_STALENESS" envDefault:"30s"`
	MaxSlotLag   uint64        `env:"HERMES_MAX_SLOT_LAG" envDefault:"10"`

	// Ingestion backpressure worker pool
	IngestWorkers  int `env:"HERMES_INGEST_WORKERS" envDefault:"8"`
	IngestQueueCap int `env:"HERMES_INGEST_QUEUE_CAPACITY" envDefault:"1024"`

	// Resource limits (from container), used to size MaxConnections when unset
	CPULimit    float64 `env:"HERMES_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"HERMES_MEMORY_LIMIT" envDefault:"0"` // 0 = auto-detect via cgroup

	// Monitoring
	MetricsInterval time.Duration `env:"HERMES_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from a .env file (if present) and environment
// variables. Priority: env vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.WSAddr == "" {
		return fmt.Errorf("HERMES_WS_ADDR is required")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("HERMES_WS_MAX_CONNECTIONS must be >= 0, got %d", c.MaxConnections)
	}
	if c.BytesPerSecond < 1 {
		return fmt.Errorf("HERMES_WS_BYTES_PER_SECOND must be > 0, got %d", c.BytesPerSecond)
	}
	if c.IngestTransport != "nats" && c.IngestTransport != "kafka" {
		return fmt.Errorf("HERMES_INGEST_TRANSPORT must be one of: nats, kafka (got %q)", c.IngestTransport)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got %q)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got %q)", c.LogFormat)
	}

	return nil
}

// LogConfig emits the loaded configuration via structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("ws_addr", c.WSAddr).
		Str("http_addr", c.HTTPAddr).
		Str("ingest_transport", c.IngestTransport).
		Int("max_connections", c.MaxConnections).
		Int("bytes_per_second", c.BytesPerSecond).
		Int("cache_per_feed_capacity", c.CachePerFeedCapacity).
		Dur("max_staleness", c.MaxStaleness).
		Uint64("max_slot_lag", c.MaxSlotLag).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
