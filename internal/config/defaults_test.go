package config

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, runtime.NumCPU(), cfg.Engine.Workers)
	assert.Equal(t, DefaultMaxVariants, cfg.Engine.MaxVariants)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultGRPCPort, cfg.Server.GRPCPort)
	assert.Equal(t, DefaultHealthInterval, cfg.Server.HealthInterval)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultMetricsNamespace, cfg.Metrics.Namespace)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaVariantsTopic, cfg.Kafka.VariantsTopic)
	assert.Equal(t, DefaultKafkaRequestsTopic, cfg.Kafka.RequestsTopic)
	assert.Equal(t, DefaultCacheTTL, cfg.Redis.DefaultTTL)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Equal(t, DefaultNeo4jBatchSize, cfg.Neo4j.BatchSize)
	assert.Equal(t, DefaultMinIOPrefix, cfg.MinIO.Prefix)
	assert.Empty(t, cfg.Sinks.Enabled)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Engine.Workers = 3
	cfg.Server.Port = 9999
	cfg.Redis.DefaultTTL = time.Minute
	ApplyDefaults(cfg)

	assert.Equal(t, 3, cfg.Engine.Workers)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Redis.DefaultTTL)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

//Personal.AI order the ending
