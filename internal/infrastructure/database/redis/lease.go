package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyip-combinator/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyip-combinator/pkg/errors"
)

const defaultLeaseTTL = 30 * time.Second

// ErrLeaseLost is returned when a lease expired or passed to another owner
// before it was released.
var ErrLeaseLost = errors.New(errors.ErrCodeConflict, "lease no longer held")

// releaseScript and refreshScript only touch the key while it still holds
// the caller's token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])
`)
)

type LeaseOption func(*LeaseManager)

// WithLeaseTTL sets how long a lease lives without a refresh.
func WithLeaseTTL(ttl time.Duration) LeaseOption {
	return func(m *LeaseManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithAutoRefresh refreshes every held lease at interval until it is
// released.  Zero disables it.
func WithAutoRefresh(interval time.Duration) LeaseOption {
	return func(m *LeaseManager) { m.refresh = interval }
}

// LeaseManager hands out exclusive, expiring leases on names such as
// request ids.  Every process sharing the Redis and prefix sees the same
// leases.
type LeaseManager struct {
	client  *Client
	prefix  string
	ttl     time.Duration
	refresh time.Duration
	logger  logging.Logger
}

func NewLeaseManager(client *Client, prefix string, log logging.Logger, opts ...LeaseOption) *LeaseManager {
	if log == nil {
		log = logging.NewNopLogger()
	}
	m := &LeaseManager{client: client, prefix: prefix, ttl: defaultLeaseTTL, logger: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes the lease on name.  It does not wait: false means another
// owner holds it.
func (m *LeaseManager) Acquire(ctx context.Context, name string) (*Lease, bool, error) {
	l := &Lease{manager: m, key: m.prefix + name, token: uuid.NewString()}
	ok, err := m.client.SetNX(ctx, l.key, l.token, m.ttl).Result()
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to acquire lease").WithDetail("key=" + l.key)
	}
	if !ok {
		return nil, false, nil
	}
	if m.refresh > 0 {
		l.startRefresh(m.refresh)
	}
	return l, true, nil
}

// Lease is one held lease.  Release it exactly once.
type Lease struct {
	manager *LeaseManager
	key     string
	token   string

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func (l *Lease) Key() string { return l.key }

// Refresh pushes the expiry one TTL into the future.  False means the lease
// was already lost.
func (l *Lease) Refresh(ctx context.Context) (bool, error) {
	res, err := refreshScript.Run(ctx, l.manager.client, []string{l.key}, l.token, l.manager.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to refresh lease")
	}
	return res == 1, nil
}

// Release stops any refresher and deletes the key if this lease still owns
// it.
func (l *Lease) Release(ctx context.Context) error {
	l.stopRefresh()
	res, err := releaseScript.Run(ctx, l.manager.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lease")
	}
	if res == 0 {
		return ErrLeaseLost.WithDetail("key=" + l.key)
	}
	return nil
}

func (l *Lease) startRefresh(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ok, err := l.Refresh(ctx)
			switch {
			case err != nil && ctx.Err() == nil:
				l.manager.logger.Error("lease refresh failed", logging.String("key", l.key), logging.Err(err))
				return
			case err == nil && !ok:
				l.manager.logger.Warn("lease lost before release", logging.String("key", l.key))
				return
			case err != nil:
				return
			}
		}
	}()
}

func (l *Lease) stopRefresh() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
			<-l.done
		}
	})
}

//Personal.AI order the ending
