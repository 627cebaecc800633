// Package grpc serves the standard gRPC health service for the API server.
// Its serving status follows the same backing-store checks as /readyz, so
// gRPC-aware load balancers and Kubernetes gRPC health checks can drain a replica
// that lost its sinks.
package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
)

const (
	defaultCheckTimeout    = 5 * time.Second
	defaultGracefulTimeout = 10 * time.Second
)

var keepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle:     15 * time.Minute,
	MaxConnectionAgeGrace: 5 * time.Second,
	Time:                  5 * time.Minute,
	Timeout:               time.Second,
}

// Check tests one backing store.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Option func(*Server)

// WithChecks adds backing stores that must be up for SERVING.
func WithChecks(checks ...Check) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithCheckTimeout bounds one round of checks.
func WithCheckTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.checkTimeout = d
		}
	}
}

// Server is a gRPC server carrying the health service and, optionally,
// server reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	addr   string
	logger logging.Logger

	checks          []Check
	checkTimeout    time.Duration
	gracefulTimeout time.Duration

	mu      sync.Mutex
	serving bool
	stopped bool
}

// NewServer builds the server.  The overall status starts NOT_SERVING and
// turns SERVING after the first Refresh in which every check passes.
func NewServer(cfg config.ServerConfig, logger logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("grpc")

	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepaliveParams),
		grpc.ChainUnaryInterceptor(recoveryUnary(logger), loggingUnary(logger)),
		grpc.ChainStreamInterceptor(recoveryStream(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if cfg.GRPCReflection {
		reflection.Register(gs)
	}

	s := &Server{
		grpc:            gs,
		health:          hs,
		addr:            net.JoinHostPort("", strconv.Itoa(cfg.GRPCPort)),
		logger:          logger,
		checkTimeout:    defaultCheckTimeout,
		gracefulTimeout: cfg.ShutdownTimeout,
	}
	if s.gracefulTimeout <= 0 {
		s.gracefulTimeout = defaultGracefulTimeout
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Addr() string { return s.addr }

// Start listens on the configured port and blocks until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("grpc listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("grpc server listening", logging.String("addr", ln.Addr().String()))
	if err := s.grpc.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Refresh runs every check concurrently and publishes the overall status.
// It reports whether every check passed.
func (s *Server) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	errs := make([]error, len(s.checks))
	var g errgroup.Group
	for i, c := range s.checks {
		i, c := i, c
		g.Go(func() error {
			errs[i] = c.Fn(ctx)
			return nil
		})
	}
	_ = g.Wait()

	var down []string
	for i, err := range errs {
		if err != nil {
			down = append(down, s.checks[i].Name)
			s.logger.Debug("readiness check failed", logging.String(logging.FieldComponent, s.checks[i].Name), logging.Err(err))
		}
	}
	up := len(down) == 0
	s.setServing(up, down)
	return up
}

func (s *Server) setServing(up bool, down []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)

	if up == s.serving {
		return
	}
	s.serving = up
	if up {
		s.logger.Info("grpc health serving")
	} else {
		s.logger.Warn("grpc health not serving", logging.String("down", strings.Join(down, ",")))
	}
}

// WatchHealth refreshes the status now and then every interval until ctx
// is done.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// Stop marks every service NOT_SERVING, then drains open calls.  Calls still
// running after the graceful timeout or ctx are cut off.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(ctx, s.gracefulTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpc.Stop()
		<-done
	}
	s.logger.Info("grpc server stopped")
}

func isHealthMethod(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

func recoveryUnary(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())))
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func recoveryStream(logger logging.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc stream panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprint(r)))
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(srv, ss)
	}
}

// loggingUnary logs every call except health checks.
func loggingUnary(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []logging.Field{
			logging.String("method", info.FullMethod),
			logging.String("code", status.Code(err).String()),
			logging.Duration("duration", time.Since(start)),
		}
		if m, ok := req.(proto.Message); ok {
			fields = append(fields, logging.Int("bytes", proto.Size(m)))
		}
		if err != nil {
			logger.Warn("grpc request failed", append(fields, logging.Err(err))...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}

//Personal.AI order the ending
