package usage_test

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/questor-ai/questor/usage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"
)

func Test_Counter(t *testing.T) {
	ctx := context.Background()
	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{
				"ALLOW_EMPTY_PASSWORD=yes",
			}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	host, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	options, err := redis.ParseURL(host)
	require.NoError(t, err)
	client := redis.NewClient(options)

	counter := usage.NewCounter(client)

	conn := counter.CheckConnection(ctx)
	require.True(t, conn.Connected, conn.Err)

	// fresh day: zero usage, below any positive cap
	limit := counter.CheckLimit(ctx, 2)
	require.Empty(t, limit.Err)
	assert.False(t, limit.LimitExceeded)
	assert.EqualValues(t, 0, limit.CurrentUsage)

	// the first increment creates the key with a day-long expiry
	count, err := counter.Increment(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	key := "usage/" + time.Now().UTC().Format("2006-01-02")
	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 86000*time.Second)
	assert.LessOrEqual(t, ttl, 86400*time.Second)

	// the second increment must not reset the expiry
	require.NoError(t, client.Expire(ctx, key, 1000*time.Second).Err())
	count, err = counter.Increment(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	ttl, err = client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 1000*time.Second)

	// cap reached
	limit = counter.CheckLimit(ctx, 2)
	require.Empty(t, limit.Err)
	assert.True(t, limit.LimitExceeded)
	assert.EqualValues(t, 2, limit.CurrentUsage)

	limit = counter.CheckLimit(ctx, 100)
	assert.False(t, limit.LimitExceeded)
}

func Test_Counter_Disconnected(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	counter := usage.NewCounter(client)

	conn := counter.CheckConnection(context.Background())
	assert.False(t, conn.Connected)
	assert.NotEmpty(t, conn.Err)

	limit := counter.CheckLimit(context.Background(), 10)
	assert.NotEmpty(t, limit.Err)
}
