package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps the redis client plus the monthly summary cache keyed on it.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func summaryKey(userID, month string) string {
	return fmt.Sprintf("timesheet:summary:%s:%s", userID, month)
}

// PutSummary caches a serialized monthly summary. The worker rewrites the
// entry whenever a clock-out or workflow transition touches the month.
func (r *Redis) PutSummary(ctx context.Context, userID, month string, payload []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, summaryKey(userID, month), payload, ttl).Err()
}

// GetSummary returns the cached summary, or nil when absent or expired.
func (r *Redis) GetSummary(ctx context.Context, userID, month string) ([]byte, error) {
	val, err := r.Client.Get(ctx, summaryKey(userID, month)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}
