// Package config loads process configuration from environment variables
// (prefix CASETRAIL_) with an optional YAML file underneath.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sink kinds accepted by Audit.Sink.
const (
	SinkMemory      = "memory"
	SinkPostgres    = "postgres"
	SinkRedisStream = "redis_stream"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
	Audit    Audit
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	AdminToken  string
	// SchemaPath points at the YAML schema for case dynamic data.
	SchemaPath string
}

// Database configures the Postgres connection used by the outbox.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the optional Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Stream is the key of the audit stream when the redis_stream sink is used.
	Stream       string
	StreamMaxLen int64
}

// Kafka configures the outbox relay producer and the materializing consumer.
type Kafka struct {
	Brokers         []string
	ConsumerGroup   string
	ComplianceTopic string
	OperationsTopic string
}

// Enabled reports whether any broker is configured.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Audit configures the sink chain and the relay.
type Audit struct {
	Sink             string
	AsyncBufferSize  int
	BreakerThreshold int
	BreakerCooldown  time.Duration
	RelayInterval    time.Duration
	RelayBatchSize   int
}

// Log configures the slog handler.
type Log struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"server.addr":                ":8080",
	"server.environment":         "dev",
	"server.admin_token":         "",
	"server.schema_path":         "",
	"database.url":               "",
	"database.max_open_conns":    20,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 30 * time.Minute,
	"redis.url":                  "",
	"redis.pool_size":            10,
	"redis.min_idle_conns":       2,
	"redis.dial_timeout":         5 * time.Second,
	"redis.read_timeout":         3 * time.Second,
	"redis.write_timeout":        3 * time.Second,
	"redis.stream":               "casetrail:audit",
	"redis.stream_max_len":       100000,
	"kafka.brokers":              "",
	"kafka.consumer_group":       "casetrail-audit-materializer",
	"kafka.compliance_topic":     "casetrail.audit.compliance",
	"kafka.operations_topic":     "casetrail.audit.operations",
	"audit.sink":                 SinkMemory,
	"audit.async_buffer_size":    0,
	"audit.breaker_threshold":    5,
	"audit.breaker_cooldown":     30 * time.Second,
	"audit.relay_interval":       time.Second,
	"audit.relay_batch_size":     100,
	"log.level":                  "info",
	"log.format":                 "json",
}

// Load reads configuration from the environment, layered over the YAML file
// at path when path is not empty.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("CASETRAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:        v.GetString("server.addr"),
			Environment: v.GetString("server.environment"),
			AdminToken:  v.GetString("server.admin_token"),
			SchemaPath:  v.GetString("server.schema_path"),
		},
		Database: Database{
			URL:             v.GetString("database.url"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
			Stream:       v.GetString("redis.stream"),
			StreamMaxLen: v.GetInt64("redis.stream_max_len"),
		},
		Kafka: Kafka{
			Brokers:         splitList(v.GetString("kafka.brokers")),
			ConsumerGroup:   v.GetString("kafka.consumer_group"),
			ComplianceTopic: v.GetString("kafka.compliance_topic"),
			OperationsTopic: v.GetString("kafka.operations_topic"),
		},
		Audit: Audit{
			Sink:             strings.ToLower(v.GetString("audit.sink")),
			AsyncBufferSize:  v.GetInt("audit.async_buffer_size"),
			BreakerThreshold: v.GetInt("audit.breaker_threshold"),
			BreakerCooldown:  v.GetDuration("audit.breaker_cooldown"),
			RelayInterval:    v.GetDuration("audit.relay_interval"),
			RelayBatchSize:   v.GetInt("audit.relay_batch_size"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if cfg.Server.Environment == "dev" && cfg.Server.AdminToken == "" {
		// Development default; any other environment must set its own token.
		cfg.Server.AdminToken = "dev-admin-token"
	}
	return cfg, cfg.Validate()
}

// FromEnv loads configuration from environment variables only.
func FromEnv() (Config, error) {
	return Load("")
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.Audit.Sink {
	case SinkMemory:
	case SinkPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("audit sink postgres requires CASETRAIL_DATABASE_URL"))
		}
	case SinkRedisStream:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("audit sink redis_stream requires CASETRAIL_REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit sink %q", c.Audit.Sink))
	}
	if c.Kafka.Enabled() && c.Database.URL == "" {
		errs = append(errs, errors.New("kafka relay requires CASETRAIL_DATABASE_URL"))
	}
	if c.Audit.AsyncBufferSize < 0 {
		errs = append(errs, errors.New("audit async buffer size must not be negative"))
	}
	if c.Audit.BreakerThreshold < 1 {
		errs = append(errs, errors.New("audit breaker threshold must be at least 1"))
	}
	if c.Server.AdminToken == "" {
		errs = append(errs, errors.New("CASETRAIL_SERVER_ADMIN_TOKEN is required outside dev"))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
