package cooldown

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "authbot:cooldown:"

// RedisLimiter shares windows across bot replicas through SETNX with a TTL.
type RedisLimiter struct {
	client redis.Cmdable
}

func NewRedisLimiter(client redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (l *RedisLimiter) Allow(ctx context.Context, guildID, actorID string, window time.Duration) (bool, time.Duration, error) {
	if window <= 0 {
		return true, 0, nil
	}
	k := redisKeyPrefix + key(guildID, actorID)
	ok, err := l.client.SetNX(ctx, k, "1", window).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "failed to claim cooldown window")
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, errors.Wrap(err, "failed to read cooldown ttl")
	}
	// -1 and -2 mean no expiry and missing key respectively.
	if ttl < 0 {
		ttl = window
	}
	return false, ttl, nil
}
