// protection_store_redis.go
//
// Auto-gift rules, protection and event log service for the gift marketplace
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of autogift.
// autogift is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// autogift is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with autogift.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisBreakerKey     = "autogift:breaker"
	redisCounterPrefix  = "autogift:exec:"
	redisCounterPattern = redisCounterPrefix + "*"
	// counters outlive their month so a late release still finds them
	redisCounterTTL = 40 * 24 * time.Hour
)

// Lua script for atomic check-and-increment of a monthly counter
const reserveLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")

if current >= limit then
    return {0, current}  -- denied
end

local newVal = redis.call("INCR", key)
if newVal == 1 then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}  -- allowed
`

// Lua script that refunds one reservation without going below zero
const releaseLuaScript = `
local key = KEYS[1]
local current = tonumber(redis.call("GET", key) or "0")
if current <= 0 then
    return 0
end
return redis.call("DECR", key)
`

// RedisCounterStore shares protection state between instances through Redis
type RedisCounterStore struct {
	client        redis.UniversalClient
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewRedisCounterStore creates a store with pre-compiled Lua scripts
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{
		client:        client,
		reserveScript: redis.NewScript(reserveLuaScript),
		releaseScript: redis.NewScript(releaseLuaScript),
	}
}

func redisCounterKey(userID, period string) string {
	return fmt.Sprintf("%s%s:%s", redisCounterPrefix, period, userID)
}

// Name implements CounterStore
func (r *RedisCounterStore) Name() string { return "redis" }

// BreakerTripped implements CounterStore
func (r *RedisCounterStore) BreakerTripped(ctx context.Context) (bool, error) {
	val, err := r.client.Get(ctx, redisBreakerKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("breaker read failed: %w", err)
	}
	return val == "1", nil
}

// SetBreaker implements CounterStore
func (r *RedisCounterStore) SetBreaker(ctx context.Context, tripped bool, reason string) error {
	var err error
	if tripped {
		err = r.client.Set(ctx, redisBreakerKey, "1", 0).Err()
	} else {
		err = r.client.Del(ctx, redisBreakerKey).Err()
	}
	if err != nil {
		return fmt.Errorf("breaker write failed: %w", err)
	}
	return nil
}

// Used implements CounterStore
func (r *RedisCounterStore) Used(ctx context.Context, userID, period string) (int, error) {
	used, err := r.client.Get(ctx, redisCounterKey(userID, period)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter read failed: %w", err)
	}
	return used, nil
}

// Reserve implements CounterStore
func (r *RedisCounterStore) Reserve(ctx context.Context, userID, period string, limit int) (bool, int, error) {
	result, err := r.reserveScript.Run(ctx, r.client,
		[]string{redisCounterKey(userID, period)},
		limit,
		int(redisCounterTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("counter reserve failed: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("counter reserve returned %d values", len(result))
	}
	return result[0] == 1, int(result[1]), nil
}

// Release implements CounterStore
func (r *RedisCounterStore) Release(ctx context.Context, userID, period string) error {
	if err := r.releaseScript.Run(ctx, r.client, []string{redisCounterKey(userID, period)}).Err(); err != nil {
		return fmt.Errorf("counter release failed: %w", err)
	}
	return nil
}

// ResetAll implements CounterStore
func (r *RedisCounterStore) ResetAll(ctx context.Context) error {
	return r.deleteCounters(ctx, func(string) bool { return true })
}

// ResetBefore implements CounterStore
func (r *RedisCounterStore) ResetBefore(ctx context.Context, period string) error {
	return r.deleteCounters(ctx, func(key string) bool {
		p, _, _ := strings.Cut(strings.TrimPrefix(key, redisCounterPrefix), ":")
		return p < period
	})
}

// deleteCounters scans the counter keys and deletes the ones match selects
func (r *RedisCounterStore) deleteCounters(ctx context.Context, match func(key string) bool) error {
	iter := r.client.Scan(ctx, 0, redisCounterPattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if !match(iter.Val()) {
			continue
		}
		keys = append(keys, iter.Val())
		if len(keys) == 500 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("counter reset failed: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("counter scan failed: %w", err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("counter reset failed: %w", err)
		}
	}
	return nil
}
