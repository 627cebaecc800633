package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

const purgeScanCount = 500

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// Cache stores encoded enumeration results under a key prefix.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// GetOrSet fills dest from the cache, or from loader on a miss, and
	// reports whether dest came from the cache.  Concurrent misses on one
	// key share a single loader call; every caller sharing it sees a miss.
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (hit bool, err error)
	// Purge unlinks every key under prefix and reports how many went.
	Purge(ctx context.Context, prefix string) (int64, error)
	HealthCheck(ctx context.Context) error
}

// Codec turns cached values into bytes and back.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

type jsonCodec struct{}

func (jsonCodec) Encode(v interface{}) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) Decode(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// zstdCodec compresses JSON.  Variant lists repeat most of the skeleton in
// every SMILES and shrink well.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCodec returns a Codec storing zstd-compressed JSON.
func NewZstdCodec() (Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Encode(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func (c *zstdCodec) Decode(data []byte, v interface{}) error {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

type redisCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	jitter     float64
	codec      Codec
	group      singleflight.Group
}

type CacheOption func(*redisCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

// WithCodec replaces the plain JSON encoding.
func WithCodec(codec Codec) CacheOption {
	return func(c *redisCache) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithJitter spreads expirations by up to ±fraction of the TTL.  Zero
// disables it.
func WithJitter(fraction float64) CacheOption {
	return func(c *redisCache) { c.jitter = fraction }
}

func NewRedisCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &redisCache{
		client:     client,
		logger:     log,
		prefix:     "combinator:",
		defaultTTL: time.Hour,
		jitter:     0.1,
		codec:      jsonCodec{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

func (c *redisCache) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if c.jitter == 0 {
		return ttl
	}
	return ttl + time.Duration(float64(ttl)*c.jitter*(rand.Float64()*2-1))
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if err := c.codec.Decode(data, dest); err != nil {
		return ErrSerializationFailed.WithCause(err).WithDetail("key=" + key)
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := c.codec.Encode(value)
	if err != nil {
		return ErrSerializationFailed.WithCause(err)
	}
	return c.store(ctx, key, data, ttl)
}

func (c *redisCache) store(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.fullKey(key), data, c.ttl(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set cache")
	}
	return nil
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) (bool, error) {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn("cache read failed, loading directly", logging.String("key", key), logging.Err(err))
	}

	data, err, shared := c.group.Do(key, func() (interface{}, error) {
		v, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		raw, encErr := c.codec.Encode(v)
		if encErr != nil {
			return nil, ErrSerializationFailed.WithCause(encErr)
		}
		if setErr := c.store(ctx, key, raw, ttl); setErr != nil {
			c.logger.Warn("failed to populate cache", logging.String("key", key), logging.Err(setErr))
		}
		return raw, nil
	})
	if err != nil {
		return false, err
	}
	if shared {
		c.logger.Debug("shared cache load", logging.String("key", key))
	}
	if err := c.codec.Decode(data.([]byte), dest); err != nil {
		return false, ErrSerializationFailed.WithCause(err)
	}
	return false, nil
}

// Purge walks the prefix with SCAN and removes each page with UNLINK, so
// large results are reclaimed off the command thread.  On a cluster every
// master is scanned, and keys are unlinked one by one since a page spans
// hash slots.
func (c *redisCache) Purge(ctx context.Context, prefix string) (int64, error) {
	var removed atomic.Int64
	match := c.fullKey(prefix) + "*"

	var err error
	if cluster, ok := c.client.UniversalClient.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, shard *redis.Client) error {
			return purgeNode(ctx, shard, match, true, &removed)
		})
	} else {
		err = purgeNode(ctx, c.client, match, false, &removed)
	}
	if err != nil {
		return removed.Load(), err
	}
	c.logger.Info("cache purged", logging.String("match", match), logging.Int64("removed", removed.Load()))
	return removed.Load(), nil
}

func purgeNode(ctx context.Context, node redis.Cmdable, match string, perKey bool, removed *atomic.Int64) error {
	var cursor uint64
	for {
		keys, next, err := node.Scan(ctx, cursor, match, purgeScanCount).Result()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCacheError, "cache scan failed")
		}
		if len(keys) > 0 {
			n, err := unlink(ctx, node, keys, perKey)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeCacheError, "cache unlink failed")
			}
			removed.Add(n)
		}
		if cursor = next; cursor == 0 {
			return nil
		}
	}
}

func unlink(ctx context.Context, node redis.Cmdable, keys []string, perKey bool) (int64, error) {
	if !perKey {
		return node.Unlink(ctx, keys...).Result()
	}
	cmds, err := node.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Unlink(ctx, k)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	var n int64
	for _, cmd := range cmds {
		n += cmd.(*redis.IntCmd).Val()
	}
	return n, nil
}

func (c *redisCache) HealthCheck(ctx context.Context) error {
	return c.client.HealthCheck(ctx)
}

//Personal.AI order the ending
