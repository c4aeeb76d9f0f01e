// Package usage meters model invocations against a shared daily cap. The
// counter lives in Redis under one key per calendar day; the key expires a
// day after its first increment, so abandoned days clean themselves up.
package usage

import (
	"context"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/questor-ai/questor", "usage")

const (
	keyPrefix = "usage"

	// counterTTL is applied when a day's counter is first created.
	counterTTL = 86400 * time.Second
)

// Counter tracks invocations per calendar day.
type Counter struct {
	client *redis.Client
}

// NewCounter wraps a Redis client.
func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client}
}

// ConnectionStatus is the result of a connectivity probe.
type ConnectionStatus struct {
	Connected bool
	Err       string
}

// LimitStatus is the result of a cap check.
type LimitStatus struct {
	LimitExceeded bool
	CurrentUsage  int64
	Err           string
}

func dayKey(now time.Time) string {
	return path.Join(keyPrefix, now.UTC().Format("2006-01-02"))
}

// CheckConnection pings Redis. Failures are reported in the status, not
// returned, so the caller can fold them into its own error document.
func (c *Counter) CheckConnection(ctx context.Context) ConnectionStatus {
	if err := c.client.Ping(ctx).Err(); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "redis_ping", "err", err.Error())
		return ConnectionStatus{Err: err.Error()}
	}
	return ConnectionStatus{Connected: true}
}

// CheckLimit reads today's counter and compares it against the cap. A
// missing key counts as zero.
func (c *Counter) CheckLimit(ctx context.Context, dailyCap int64) LimitStatus {
	count, err := c.client.Get(ctx, dayKey(time.Now())).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "redis_get", "err", err.Error())
		return LimitStatus{Err: err.Error()}
	}
	return LimitStatus{
		LimitExceeded: count >= dailyCap,
		CurrentUsage:  count,
	}
}

// Increment bumps today's counter and returns the new value. The expiry is
// set only when this increment created the key, so the day's window is
// anchored to its first invocation.
func (c *Counter) Increment(ctx context.Context) (int64, error) {
	key := dayKey(time.Now())

	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to increment usage counter")
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, counterTTL).Err(); err != nil {
			return count, errors.Wrap(err, "failed to set usage counter expiry")
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG, "status", "usage_incremented", "key", key, "count", count)
	return count, nil
}
