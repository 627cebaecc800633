package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowCounter_Hit(t *testing.T) {
	client, mr := newMiniClient(t)
	counter := NewWindowCounter(client, "rl:")
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, ttl, err := counter.Hit(ctx, "ip:10.0.0.1", time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		assert.Equal(t, time.Second, ttl)
	}
	assert.True(t, mr.Exists("rl:ip:10.0.0.1"))

	n, _, err := counter.Hit(ctx, "ip:10.0.0.2", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mr.FastForward(2 * time.Second)
	n, _, err = counter.Hit(ctx, "ip:10.0.0.1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "window restarts after expiry")
}

func TestWindowCounter_DefaultPrefix(t *testing.T) {
	client, mr := newMiniClient(t)
	_, _, err := NewWindowCounter(client, "").Hit(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("combinator:ratelimit:k"))
}

func TestWindowCounter_Closed(t *testing.T) {
	client, _ := newMiniClient(t)
	require.NoError(t, client.Close())
	_, _, err := NewWindowCounter(client, "").Hit(context.Background(), "k", time.Minute)
	assert.Equal(t, ErrClientClosed, err)
}

//Personal.AI order the ending
