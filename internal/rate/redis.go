package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes, counts and conditionally records in one round
// trip so concurrent requests on a key cannot interleave between steps.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[5])
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, ARGV[1], ARGV[4])
	count = count + 1
	allowed = 1
end

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
	oldest = tonumber(first[2])
end
redis.call('PEXPIRE', key, window)
return {allowed, count, oldest}
`)

// RedisBackend keeps each window in a sorted set scored by request time in
// milliseconds. Keys expire one window after their last write.
type RedisBackend struct {
	redis redis.UniversalClient
}

func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{redis: client}
}

func (b *RedisBackend) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Hit, error) {
	res, err := slidingWindowScript.Run(ctx, b.redis, []string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()),
		"("+strconv.FormatInt(now.Add(-window).UnixMilli(), 10),
	).Int64Slice()
	if err != nil {
		return Hit{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 3 {
		return Hit{}, fmt.Errorf("%w: unexpected script reply length %d", ErrRedisUnavailable, len(res))
	}
	return Hit{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Oldest:  time.UnixMilli(res[2]),
	}, nil
}
