package redis

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyip-combinator/internal/config"
	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

const defaultPingTimeout = 5 * time.Second

var (
	ErrClientClosed     = errors.New(errors.ErrCodeCacheError, "redis client is closed")
	ErrConnectionFailed = errors.New(errors.ErrCodeCacheError, "redis connection failed")
)

// Client is a go-redis client that refuses commands once Close has been
// called.  Every go-redis command is available on it directly.
type Client struct {
	redis.UniversalClient
	logger logging.Logger
	closed atomic.Bool
}

// NewClient connects and pings within ctx.  Several addresses select a
// cluster, a master name selects Sentinel, anything else a single server.
func NewClient(ctx context.Context, cfg config.RedisConfig, log logging.Logger) (*Client, error) {
	addrs := cfg.Addrs
	if len(addrs) == 0 {
		addrs = []string{cfg.Addr}
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		MasterName:   cfg.MasterName,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	client := NewClientWithUniversal(rdb, log)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := client.HealthCheck(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, ErrConnectionFailed.WithCause(err).WithDetailf("addrs=%v", addrs)
	}

	client.logger.Info("redis client connected", logging.Any("addrs", addrs), logging.Int("db", cfg.DB))
	return client, nil
}

// NewClientWithUniversal wraps an existing client without pinging it.
func NewClientWithUniversal(rdb redis.UniversalClient, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Client{UniversalClient: rdb, logger: log}
	rdb.AddHook(closedGuard{c})
	return c
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the connection pool.  Later calls are no-ops.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.UniversalClient.Close(); err != nil {
		c.logger.Error("failed to close redis client", logging.Err(err))
		return err
	}
	c.logger.Info("closed redis client")
	return nil
}

func (c *Client) isClosed() bool {
	return c.closed.Load()
}

// closedGuard fails every command and pipeline with ErrClientClosed after
// Close.
type closedGuard struct {
	c *Client
}

func (g closedGuard) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if g.c.isClosed() {
			return nil, ErrClientClosed
		}
		return next(ctx, network, addr)
	}
}

func (g closedGuard) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if g.c.isClosed() {
			cmd.SetErr(ErrClientClosed)
			return ErrClientClosed
		}
		return next(ctx, cmd)
	}
}

func (g closedGuard) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if g.c.isClosed() {
			for _, cmd := range cmds {
				cmd.SetErr(ErrClientClosed)
			}
			return ErrClientClosed
		}
		return next(ctx, cmds)
	}
}

//Personal.AI order the ending
