// Package redis provides a Redis-backed Directory.
//
// Counters live in Redis hashes and every increment is a Lua script, so
// it is a single atomic read-modify-write and safe for multi-instance
// deployments. Idempotency keys are SET NX with a day's expiry.
package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/edukia/chatrelay"
)

// Directory is a Redis-backed usage directory.
type Directory struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ chatrelay.Directory = (*Directory)(nil)

// Option configures Directory.
type Option func(*Directory)

// WithKeyPrefix sets the Redis key prefix (default "chatrelay:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(d *Directory) { d.keyPrefix = prefix }
}

// New creates a Redis-backed Directory.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Directory {
	d := &Directory{
		client:    client,
		keyPrefix: "chatrelay:usage:",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) targetKey(target chatrelay.QuotaTarget) string {
	return d.keyPrefix + target.Key()
}

func (d *Directory) idemKey(key string) string {
	return d.keyPrefix + "idem:" + key
}

// incrementScript atomically applies a usage increment.
// KEYS[1] = target hash key
// KEYS[2] = idempotency key
// ARGV[1] = delta
// ARGV[2] = has_idem ("1" or "0")
//
// Returns 1 if applied, 0 if the idempotency key was already seen.
var incrementScript = goredis.NewScript(`
local target_key = KEYS[1]
local idem_key = KEYS[2]
local delta = tonumber(ARGV[1])
local has_idem = ARGV[2]

if has_idem == "1" then
    local set = redis.call("SET", idem_key, "1", "NX", "EX", 86400)
    if not set then
        return 0
    end
end

redis.call("HINCRBY", target_key, "usage_count", delta)
return 1
`)

// GetQuota returns the current counters for a target. A target with no
// hash is unlimited with zero usage.
func (d *Directory) GetQuota(ctx context.Context, target chatrelay.QuotaTarget) (chatrelay.Quota, error) {
	vals, err := d.client.HMGet(ctx, d.targetKey(target), "usage_count", "usage_limit").Result()
	if err != nil {
		return chatrelay.Quota{}, fmt.Errorf("chatrelay/redis: get quota: %w", err)
	}

	var quota chatrelay.Quota
	if v, ok := vals[0].(string); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return chatrelay.Quota{}, fmt.Errorf("chatrelay/redis: parse usage_count: %w", err)
		}
		quota.UsageCount = n
	}
	if v, ok := vals[1].(string); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return chatrelay.Quota{}, fmt.Errorf("chatrelay/redis: parse usage_limit: %w", err)
		}
		quota.UsageLimit = &n
	}
	return quota, nil
}

// IncrementUsage atomically adds delta to the target's counter.
func (d *Directory) IncrementUsage(ctx context.Context, target chatrelay.QuotaTarget, delta int64, idempotencyKey string) error {
	hasIdem := "0"
	idemK := d.idemKey("_noop")
	if idempotencyKey != "" {
		hasIdem = "1"
		idemK = d.idemKey(idempotencyKey)
	}

	_, err := incrementScript.Run(ctx, d.client,
		[]string{d.targetKey(target), idemK},
		delta, hasIdem,
	).Int64()
	if err != nil {
		return fmt.Errorf("chatrelay/redis: increment: %w", err)
	}
	return nil
}

// SetLimit configures a finite usage limit for a target.
func (d *Directory) SetLimit(ctx context.Context, target chatrelay.QuotaTarget, limit int64) error {
	if err := d.client.HSet(ctx, d.targetKey(target), "usage_limit", limit).Err(); err != nil {
		return fmt.Errorf("chatrelay/redis: set limit: %w", err)
	}
	return nil
}

// SetUnlimited removes a target's usage limit.
func (d *Directory) SetUnlimited(ctx context.Context, target chatrelay.QuotaTarget) error {
	if err := d.client.HDel(ctx, d.targetKey(target), "usage_limit").Err(); err != nil {
		return fmt.Errorf("chatrelay/redis: set unlimited: %w", err)
	}
	return nil
}

// ResetUsage zeroes a target's usage counter. Reset schedules are driven
// by an external scheduler calling this, not by the store itself.
func (d *Directory) ResetUsage(ctx context.Context, target chatrelay.QuotaTarget) error {
	if err := d.client.HSet(ctx, d.targetKey(target), "usage_count", 0).Err(); err != nil {
		return fmt.Errorf("chatrelay/redis: reset usage: %w", err)
	}
	return nil
}
