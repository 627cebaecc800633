// Package config defines the configuration structures for the combinator.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
)

// Sink names accepted in sinks.enabled.
const (
	SinkKafka    = "kafka"
	SinkPostgres = "postgres"
	SinkNeo4j    = "neo4j"
	SinkMinIO    = "minio"
)

// Result-cache encodings accepted in redis.compression.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
)

// KnownSinks lists every sink name in the order the service fans out to them.
var KnownSinks = []string{SinkKafka, SinkPostgres, SinkNeo4j, SinkMinIO}

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// EngineConfig tunes the substitution engine.
type EngineConfig struct {
	// Workers above 1 enable parallel grafting; output order is then
	// unspecified.
	Workers int `mapstructure:"workers"`

	// MaxVariants rejects requests whose exact variant count exceeds it.
	// Zero disables the check.
	MaxVariants uint64 `mapstructure:"max_variants"`

	// CarbonOnly restricts sites to carbon atoms.
	CarbonOnly bool `mapstructure:"carbon_only"`

	// DropDuplicateSMILES removes byte-identical SMILES from results.
	DropDuplicateSMILES bool `mapstructure:"drop_duplicate_smiles"`

	// RunTimeout bounds a single enumeration; zero means no limit.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// GRPCPort serves the standard gRPC health service next to the HTTP API.
	GRPCPort       int  `mapstructure:"grpc_port"`
	GRPCReflection bool `mapstructure:"grpc_reflection"`
	// HealthInterval is how often the gRPC health status re-runs the
	// readiness checks.
	HealthInterval time.Duration `mapstructure:"health_interval"`

	// RateLimit throttles the /api/v1 routes per client address.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits requests per client.  With Distributed set the
// counters live in Redis and are shared by every API replica.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	Distributed       bool    `mapstructure:"distributed"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	Namespace            string `mapstructure:"namespace"`
	Path                 string `mapstructure:"path"`
	EnableProcessMetrics bool   `mapstructure:"enable_process_metrics"`
	EnableGoMetrics      bool   `mapstructure:"enable_go_metrics"`
}

// KafkaConfig holds producer and consumer parameters.
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	GroupID       string        `mapstructure:"group_id"`
	VariantsTopic string        `mapstructure:"variants_topic"`
	RequestsTopic string        `mapstructure:"requests_topic"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`

	// Compression is the producer codec: none, gzip, snappy, lz4 or zstd.
	Compression string `mapstructure:"compression"`

	// DeadLetterTopic receives requests the worker gave up on.  Empty
	// disables dead-lettering.
	DeadLetterTopic string `mapstructure:"dead_letter_topic"`

	// AutoCreateTopics creates the variant, request and dead-letter topics
	// at startup with ReplicationFactor replicas.
	AutoCreateTopics  bool `mapstructure:"auto_create_topics"`
	ReplicationFactor int  `mapstructure:"replication_factor"`

	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"`
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`
}

// RedisConfig holds the result-cache connection.  Addrs, when set, names
// cluster nodes or Sentinels and takes precedence over Addr.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Addrs        []string      `mapstructure:"addrs"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	Compression  string        `mapstructure:"compression"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// Neo4jConfig holds Neo4j connection parameters.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	Database              string        `mapstructure:"database"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
	BatchSize             int           `mapstructure:"batch_size"`

	// TxTimeout bounds each server-side transaction; zero uses the server
	// setting.
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
}

// MinIOConfig holds object-storage parameters.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
	// RetentionDays expires archived runs under Prefix; zero keeps them.
	RetentionDays int `mapstructure:"retention_days"`
}

// SinksConfig selects where variants are published.
type SinksConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// WorkerConfig holds queue-consumer parameters.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRetries  int `mapstructure:"max_retries"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Engine   EngineConfig      `mapstructure:"engine"`
	Server   ServerConfig      `mapstructure:"server"`
	Log      logging.LogConfig `mapstructure:"log"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Postgres PostgresConfig    `mapstructure:"postgres"`
	Neo4j    Neo4jConfig       `mapstructure:"neo4j"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Sinks    SinksConfig       `mapstructure:"sinks"`
	Worker   WorkerConfig      `mapstructure:"worker"`
}

// SinkEnabled reports whether name appears in sinks.enabled.
func (c *Config) SinkEnabled(name string) bool {
	for _, s := range c.Sinks.Enabled {
		if s == name {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate returns the first semantic error in c.  Backend sections are only
// checked when the matching sink or cache is enabled.
func (c *Config) Validate() error {
	if c.Engine.Workers < 1 {
		return fmt.Errorf("config: engine.workers must be ≥ 1, got %d", c.Engine.Workers)
	}
	if c.Engine.RunTimeout < 0 {
		return fmt.Errorf("config: engine.run_timeout must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("config: server.grpc_port %d is out of range [1, 65535]", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort == c.Server.Port {
		return fmt.Errorf("config: server.grpc_port must differ from server.port")
	}
	if rl := c.Server.RateLimit; rl.Enabled {
		if rl.RequestsPerSecond <= 0 || rl.Burst < 1 {
			return fmt.Errorf("config: server.rate_limit needs a positive rate and burst")
		}
		if rl.Distributed && !c.Redis.Enabled {
			return fmt.Errorf("config: server.rate_limit.distributed requires redis.enabled")
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}

	seen := make(map[string]bool, len(c.Sinks.Enabled))
	for _, s := range c.Sinks.Enabled {
		if !isKnownSink(s) {
			return fmt.Errorf("config: sinks.enabled contains unknown sink %q", s)
		}
		if seen[s] {
			return fmt.Errorf("config: sinks.enabled lists %q twice", s)
		}
		seen[s] = true
	}

	if c.SinkEnabled(SinkKafka) {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.VariantsTopic == "" {
			return fmt.Errorf("config: kafka.variants_topic is required")
		}
	}
	switch c.Kafka.Compression {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("config: kafka.compression %q is invalid; expected none|gzip|snappy|lz4|zstd", c.Kafka.Compression)
	}
	if c.Kafka.ReplicationFactor < 0 {
		return fmt.Errorf("config: kafka.replication_factor must not be negative")
	}
	if c.Kafka.SASLEnabled {
		switch c.Kafka.SASLMechanism {
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
		default:
			return fmt.Errorf("config: kafka.sasl_mechanism %q is not supported", c.Kafka.SASLMechanism)
		}
		if c.Kafka.SASLUsername == "" || c.Kafka.SASLPassword == "" {
			return fmt.Errorf("config: kafka.sasl_username and kafka.sasl_password are required")
		}
	}
	if c.SinkEnabled(SinkPostgres) {
		if c.Postgres.Host == "" {
			return fmt.Errorf("config: postgres.host is required")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			return fmt.Errorf("config: postgres.port %d is out of range [1, 65535]", c.Postgres.Port)
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("config: postgres.user is required")
		}
		if c.Postgres.DBName == "" {
			return fmt.Errorf("config: postgres.db_name is required")
		}
	}
	if c.SinkEnabled(SinkNeo4j) && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required")
	}
	if c.SinkEnabled(SinkMinIO) {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("config: redis.addr is required when the cache is enabled")
	}
	switch c.Redis.Compression {
	case "", CompressionNone, CompressionZstd:
	default:
		return fmt.Errorf("config: redis.compression %q is invalid; expected none|zstd", c.Redis.Compression)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}
	return nil
}

func isKnownSink(name string) bool {
	for _, s := range KnownSinks {
		if s == name {
			return true
		}
	}
	return false
}

//Personal.AI order the ending
