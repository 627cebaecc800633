// Package app assembles the enumeration service and its sinks from
// configuration.  The API server, the worker and the CLI share it.
package app

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/keyip-combinator/internal/application/enumeration"
	"github.com/turtacn/keyip-combinator/internal/config"
	domainEnum "github.com/turtacn/keyip-combinator/internal/domain/enumeration"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/database/neo4j"
	neo4jrepo "github.com/turtacn/keyip-combinator/internal/infrastructure/database/neo4j/repositories"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/database/postgres"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/database/redis"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/storage/minio"
)

// HealthCheck probes one backing store.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Components holds everything built from one Config.  Close releases the
// connections in reverse order of creation.
type Components struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.EngineMetrics
	Service   enumeration.Service

	Redis    *redis.Client
	Cache    redis.Cache
	Producer *kafka.Producer
	Postgres *postgres.Connection
	Neo4j    *neo4j.Driver
	MinIO    *minio.Client
	Archive  *minio.VariantArchive

	Checks []HealthCheck

	closers []func(ctx context.Context) error
}

// Option adjusts what Build creates.
type Option func(*options)

type options struct {
	sinks       []string
	skipCache   bool
	skipMetrics bool
	version     string
}

// WithSinkNames overrides sinks.enabled.
func WithSinkNames(names ...string) Option {
	return func(o *options) { o.sinks = names }
}

// WithoutCache skips the Redis result cache even when redis.enabled is set.
func WithoutCache() Option {
	return func(o *options) { o.skipCache = true }
}

// WithVersion publishes version in the build_info metric.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// WithoutMetrics uses no-op metrics.  The CLI has nothing to scrape them.
func WithoutMetrics() Option {
	return func(o *options) { o.skipMetrics = true }
}

// Build connects to every enabled backend and assembles the service.  On
// failure the connections opened so far are closed.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger, opts ...Option) (c *Components, err error) {
	o := options{sinks: cfg.Sinks.Enabled}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	c = &Components{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
			c = nil
		}
	}()

	c.Metrics = prometheus.NewEngineMetrics(nil)
	if cfg.Metrics.Enabled && !o.skipMetrics {
		c.Collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: cfg.Metrics.EnableProcessMetrics,
			EnableGoMetrics:      cfg.Metrics.EnableGoMetrics,
			Version:              o.version,
		}, logger)
		if err != nil {
			return c, err
		}
		c.Metrics = prometheus.NewEngineMetrics(c.Collector)
	}

	svcOpts := []enumeration.ServiceOption{enumeration.WithMetrics(c.Metrics)}

	if cfg.Redis.Enabled {
		c.Redis, err = redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return c, err
		}
		c.closers = append(c.closers, func(context.Context) error { return c.Redis.Close() })
		c.Checks = append(c.Checks, HealthCheck{Name: "redis", Check: c.Redis.HealthCheck})
		if !o.skipCache {
			cacheOpts := []redis.CacheOption{
				redis.WithPrefix(cfg.Redis.KeyPrefix),
				redis.WithDefaultTTL(cfg.Redis.DefaultTTL),
				redis.WithJitter(0.1),
			}
			if cfg.Redis.Compression == config.CompressionZstd {
				codec, err := redis.NewZstdCodec()
				if err != nil {
					return c, err
				}
				cacheOpts = append(cacheOpts, redis.WithCodec(codec))
			}
			cache := redis.NewRedisCache(c.Redis, logger, cacheOpts...)
			c.Cache = cache
			svcOpts = append(svcOpts, enumeration.WithCache(cache, cfg.Redis.DefaultTTL))
		}
	}

	sinks, err := c.buildSinks(ctx, o.sinks)
	if err != nil {
		return c, err
	}
	svcOpts = append(svcOpts, enumeration.WithSinks(sinks...))

	c.Service = enumeration.NewService(cfg.Engine, logger, svcOpts...)
	return c, nil
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg, logger)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg))
}

func (c *Components) buildSinks(ctx context.Context, names []string) ([]domainEnum.Sink, error) {
	cfg := c.Config
	var sinks []domainEnum.Sink
	for _, name := range config.KnownSinks {
		if !contains(names, name) {
			continue
		}
		switch name {
		case config.SinkKafka:
			if cfg.Kafka.AutoCreateTopics {
				if err := ensureTopics(ctx, cfg.Kafka, c.Logger); err != nil {
					return nil, err
				}
			}
			p, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), c.Logger)
			if err != nil {
				return nil, err
			}
			c.Producer = p
			c.closers = append(c.closers, func(context.Context) error { return p.Close() })
			if c.Collector != nil {
				if err := c.Collector.Register(p.StatsCollector(cfg.Metrics.Namespace)); err != nil {
					c.Logger.Warn("kafka writer metrics unavailable", logging.Err(err))
				}
			}
			pub, err := kafka.NewVariantPublisher(p, cfg.Kafka.VariantsTopic, cfg.Kafka.BatchSize, c.Logger)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, pub)

		case config.SinkPostgres:
			conn, err := postgres.NewConnection(ctx, cfg.Postgres, c.Logger)
			if err != nil {
				return nil, err
			}
			c.Postgres = conn
			c.closers = append(c.closers, func(context.Context) error { return conn.Close() })
			c.Checks = append(c.Checks, HealthCheck{Name: "postgres", Check: conn.HealthCheck})
			if c.Collector != nil {
				if err := c.Collector.Register(conn.StatsCollector()); err != nil {
					c.Logger.Warn("postgres pool metrics unavailable", logging.Err(err))
				}
			}
			if cfg.Postgres.AutoMigrate {
				if err := conn.RunMigrations(); err != nil {
					return nil, err
				}
			}
			sinks = append(sinks, postgres.NewRunRepository(conn, c.Logger))

		case config.SinkNeo4j:
			d, err := neo4j.NewDriver(ctx, cfg.Neo4j, c.Logger)
			if err != nil {
				return nil, err
			}
			c.Neo4j = d
			c.closers = append(c.closers, d.Close)
			c.Checks = append(c.Checks, HealthCheck{Name: "neo4j", Check: d.HealthCheck})
			sinks = append(sinks, neo4jrepo.NewVariantGraphRepo(d, cfg.Neo4j.BatchSize, c.Logger))

		case config.SinkMinIO:
			mc, err := minio.NewClient(ctx, cfg.MinIO, c.Logger)
			if err != nil {
				return nil, err
			}
			c.MinIO = mc
			c.closers = append(c.closers, func(context.Context) error { return mc.Close() })
			c.Checks = append(c.Checks, HealthCheck{Name: "minio", Check: mc.HealthCheck})
			c.Archive = minio.NewVariantArchive(mc, c.Logger)
			sinks = append(sinks, c.Archive)
		}
	}
	return sinks, ctx.Err()
}

// Close releases every connection and returns the joined errors.
func (c *Components) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return stderrors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

//Personal.AI order the ending
