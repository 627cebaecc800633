package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
engine:
  workers: 4
  max_variants: 5000
  carbon_only: true
  run_timeout: 30s
server:
  port: 8081
log:
  level: debug
  format: console
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
postgres:
  user: combinator
  password: secret
sinks:
  enabled: [kafka, postgres]
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, uint64(5000), cfg.Engine.MaxVariants)
	assert.True(t, cfg.Engine.CarbonOnly)
	assert.Equal(t, 30*time.Second, cfg.Engine.RunTimeout)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{SinkKafka, SinkPostgres}, cfg.Sinks.Enabled)
	// defaults fill the rest
	assert.Equal(t, DefaultKafkaVariantsTopic, cfg.Kafka.VariantsTopic)
	assert.Equal(t, DefaultPostgresPort, cfg.Postgres.Port)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "engine: ["))
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "sinks:\n  enabled: [postgres]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.user")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COMBINATOR_SERVER_PORT", "9999")
	t.Setenv("COMBINATOR_POSTGRES_HOST", "db-host")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db-host", cfg.Postgres.Host)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COMBINATOR_ENGINE_WORKERS", "2")
	t.Setenv("COMBINATOR_ENGINE_MAX_VARIANTS", "10")
	t.Setenv("COMBINATOR_SINKS_ENABLED", "minio,neo4j")
	t.Setenv("COMBINATOR_MINIO_BUCKET", "variants")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.Workers)
	assert.Equal(t, uint64(10), cfg.Engine.MaxVariants)
	assert.Equal(t, []string{SinkMinIO, SinkNeo4j}, cfg.Sinks.Enabled)
	assert.Equal(t, "variants", cfg.MinIO.Bucket)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)

	cfg, err = LoadOrDefault(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestLoadOrDefault_MissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("COMBINATOR_ENGINE_WORKERS", "3")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Workers)
}

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Empty(t, cfg.Sinks.Enabled)
	assert.Equal(t, CompressionZstd, cfg.Redis.Compression)
	assert.True(t, cfg.Kafka.AutoCreateTopics)
	assert.Equal(t, 9090, cfg.Server.GRPCPort)
	assert.Equal(t, 10*time.Second, cfg.Server.HealthInterval)
}

func TestLoadFirst(t *testing.T) {
	dir := t.TempDir()
	present := createTempConfigFile(t, validConfigYAML)

	cfg, used, err := LoadFirst(filepath.Join(dir, "a.yaml"), dir, present)
	require.NoError(t, err)
	assert.Equal(t, present, used, "directories are skipped")
	assert.NotNil(t, cfg)

	cfg, used, err = LoadFirst(filepath.Join(dir, "a.yaml"))
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.NotNil(t, cfg)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	var level atomic.Value
	var failures atomic.Int32
	require.NoError(t, Watch(path, func(c *Config) { level.Store(c.Log.Level) }, func(error) { failures.Add(1) }))

	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  workers: 4
log:
  level: error
`), 0o644))

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "error"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}

//Personal.AI order the ending
