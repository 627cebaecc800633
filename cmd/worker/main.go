// Command worker consumes enumeration requests from Kafka and publishes the
// resulting variants to the configured sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/keyip-combinator/internal/app"
	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/database/redis"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/keyip-combinator/internal/interfaces/http"
	"github.com/turtacn/keyip-combinator/internal/interfaces/http/handlers"
	"github.com/turtacn/keyip-combinator/internal/interfaces/queue"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultHealthPort = 8081

	// requestLeaseTTL bounds how long a crashed worker blocks a redelivered
	// request.  It is refreshed while the run is alive.
	requestLeaseTTL     = 2 * time.Minute
	requestLeaseRefresh = 30 * time.Second
)

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	healthPort := flag.Int("health-port", defaultHealthPort, "port serving probes and /metrics")
	flag.Parse()

	if err := run(*configPath, *healthPort); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, healthPort int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()
	defer logging.RedirectStdLog(logger)()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Results must reach a sink; a worker writing nowhere would drop them.
	sinks := cfg.Sinks.Enabled
	if len(sinks) == 0 {
		sinks = []string{config.SinkKafka}
	}
	c, err := app.Build(ctx, cfg, logger, app.WithSinkNames(sinks...), app.WithVersion(version))
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			logger.Error("failed to release backends", logging.Err(err))
		}
	}()

	handlerOpts := []queue.HandlerOption{
		queue.WithDefaultSinks(sinks...),
		queue.WithMetrics(c.Metrics),
	}
	if c.Redis != nil {
		leases := redis.NewLeaseManager(c.Redis, cfg.Redis.KeyPrefix+"request:", logger,
			redis.WithLeaseTTL(requestLeaseTTL), redis.WithAutoRefresh(requestLeaseRefresh))
		handlerOpts = append(handlerOpts, queue.WithLeaser(queue.LeaserFunc(
			func(ctx context.Context, id string) (queue.Lease, bool, error) {
				l, ok, err := leases.Acquire(ctx, id)
				if !ok {
					return nil, false, err
				}
				return l, true, nil
			})))
	}
	handler := queue.NewRequestHandler(c.Service, logger, handlerOpts...)

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	consumers := make([]*kafka.Consumer, 0, concurrency)
	defer func() {
		for _, cons := range consumers {
			if err := cons.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}
	}()
	for i := 0; i < concurrency; i++ {
		ccfg := kafka.ConsumerConfigFrom(cfg.Kafka, cfg.Worker.MaxRetries)
		ccfg.RetryConfig.Retryable = queue.Retryable
		cons, err := kafka.NewConsumer(ccfg, logger.With(logging.Int("consumer", i)))
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		consumers = append(consumers, cons)
		cons.Subscribe(cfg.Kafka.RequestsTopic, handler.Handle)
		if err := cons.Start(ctx); err != nil {
			return fmt.Errorf("start consumer: %w", err)
		}
	}

	checks := make([]handlers.HealthChecker, 0, len(c.Checks))
	for _, hc := range c.Checks {
		checks = append(checks, handlers.CheckFunc{Component: hc.Name, Fn: hc.Check})
	}
	healthCfg := cfg.Server
	healthCfg.Port = healthPort
	srv := httpserver.NewServer(healthCfg, httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, handlers.WithChecks(checks...), handlers.WithSinkNames(c.Service.SinkNames()...)),
		MetricsCollector: c.Collector,
	}), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	logger.Info("worker started",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.RequestsTopic),
		logging.String("group", cfg.Kafka.GroupID),
		logging.Int("consumers", concurrency),
		logging.Any("sinks", sinks))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("health server failed", logging.Err(err))
		}
	}
	stop()

	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}
	logger.Info("worker stopped")
	return nil
}

//Personal.AI order the ending
