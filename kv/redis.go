package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTLScript mirrors the original service's Redis INCR/EXPIRE
// pattern (app/core/ratelimit.py): increment the counter, and only on
// the very first increment (the key did not exist before this call)
// attach the TTL, so later increments within the same window don't
// keep pushing the expiry back.
var incrWithTTLScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Redis is the production Store, backed by go-redis/v9.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an existing go-redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func wrapErr(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return ErrUnavailable
}

func (r *Redis) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	err := r.client.Set(ctx, key, value, ttl).Err()
	return wrapErr(err)
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrUnavailable
	}
	return v, true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return false, ErrUnavailable
	}
	return n > 0, nil
}

// GetAndDelete uses Redis's GETDEL, which reads and removes the key in
// a single atomic round trip — the primitive a proof token's one-shot
// consume depends on to rule out a double-spend race.
func (r *Redis) GetAndDelete(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ErrUnavailable
	}
	return v, true, nil
}

func (r *Redis) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := incrWithTTLScript.Run(ctx, r.client, []string{key}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, ErrUnavailable
	}
	n, ok := res.(int64)
	if !ok {
		return 0, ErrUnavailable
	}
	return n, nil
}
