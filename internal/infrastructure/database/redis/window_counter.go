package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyip-combinator/pkg/errors"
)

// hitScript increments a counter and starts its expiry on the first hit of a
// window.  It returns the count and the remaining window in milliseconds.
var hitScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// WindowCounter counts hits per key in fixed windows shared by every process
// using the same Redis.
type WindowCounter struct {
	client *Client
	prefix string
}

func NewWindowCounter(client *Client, prefix string) *WindowCounter {
	if prefix == "" {
		prefix = "combinator:ratelimit:"
	}
	return &WindowCounter{client: client, prefix: prefix}
}

// Hit records one hit for key and returns the hits so far in the current
// window and the time until it resets.
func (c *WindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if c.client.isClosed() {
		return 0, 0, ErrClientClosed
	}
	res, err := hitScript.Run(ctx, c.client, []string{c.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, errors.Wrap(err, errors.ErrCodeCacheError, "rate limit counter failed")
	}
	if len(res) != 2 {
		return 0, 0, errors.New(errors.ErrCodeCacheError, "unexpected rate limit reply")
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return res[0], ttl, nil
}

//Personal.AI order the ending
