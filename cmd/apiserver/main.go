// Command apiserver serves the substitution API over HTTP and the gRPC
// health service.
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
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	grpcserver "github.com/turtacn/keyip-combinator/internal/interfaces/grpc"
	httpserver "github.com/turtacn/keyip-combinator/internal/interfaces/http"
	"github.com/turtacn/keyip-combinator/internal/interfaces/http/handlers"
	"github.com/turtacn/keyip-combinator/internal/interfaces/http/middleware"
)

const defaultConfigPath = "configs/config.yaml"

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides config)")
	grpcPort := flag.Int("grpc-port", 0, "gRPC port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port, *grpcPort); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port, grpcPort int) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if grpcPort > 0 {
		cfg.Server.GRPCPort = grpcPort
	}
	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logging.Sync(logger) }()
	defer logging.RedirectStdLog(logger)()

	if _, statErr := os.Stat(configPath); statErr == nil {
		err := config.Watch(configPath, func(next *config.Config) {
			if logging.SetLevel(logger, next.Log.Level) {
				logger.Info("log level reloaded", logging.String("level", next.Log.Level))
			}
		}, func(err error) {
			logger.Warn("ignoring invalid configuration change", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config watch disabled", logging.Err(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, logger, app.WithVersion(version))
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			logger.Error("failed to release backends", logging.Err(err))
		}
	}()

	checks := make([]handlers.HealthChecker, 0, len(c.Checks))
	grpcChecks := make([]grpcserver.Check, 0, len(c.Checks))
	for _, hc := range c.Checks {
		checks = append(checks, handlers.CheckFunc{Component: hc.Name, Fn: hc.Check})
		grpcChecks = append(grpcChecks, grpcserver.Check{Name: hc.Name, Fn: hc.Check})
	}

	routerCfg := httpserver.RouterConfig{
		HealthHandler:       handlers.NewHealthHandler(version, handlers.WithChecks(checks...), handlers.WithSinkNames(c.Service.SinkNames()...)),
		SubstitutionHandler: handlers.NewSubstitutionHandler(c.Service, logger, cfg.Server.MaxBodySize),
		LoggingMiddleware:   middleware.NewLoggingMiddleware(logger, c.Metrics, middleware.DefaultLoggingConfig()),
		MetricsCollector:    c.Collector,
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		var limiter middleware.RateLimiter
		switch {
		case rl.Distributed && c.Redis != nil:
			limiter = middleware.NewWindowLimiter(redis.NewWindowCounter(c.Redis, cfg.Redis.KeyPrefix+"ratelimit:"), rl.Burst, time.Second)
		default:
			if rl.Distributed {
				logger.Warn("distributed rate limiting needs redis.enabled; using in-process limiter")
			}
			limiter = middleware.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst, time.Minute)
		}
		routerCfg.RateLimitMiddleware = middleware.NewRateLimitMiddleware(limiter, middleware.RateLimitConfig{}, logger)
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	grpcSrv := grpcserver.NewServer(cfg.Server, logger, grpcserver.WithChecks(grpcChecks...))

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := grpcSrv.Start(); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go grpcSrv.WatchHealth(watchCtx, cfg.Server.HealthInterval)

	logger.Info("api server started",
		logging.String("version", version),
		logging.String("addr", srv.Addr()),
		logging.String("grpc_addr", grpcSrv.Addr()),
		logging.Any("sinks", cfg.Sinks.Enabled))

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error("server failed, shutting down", logging.Err(serveErr))
	}

	stopWatch()
	grpcSrv.Stop(context.Background())
	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("http server shutdown error", logging.Err(err))
	}
	logger.Info("api server stopped")
	return serveErr
}

//Personal.AI order the ending
