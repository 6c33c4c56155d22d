package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const (
	slotKeyPrefix     = "slot:"
	revisionKeySuffix = ":rev"
)

// setSlotScript writes the value and bumps its revision in one step.
var setSlotScript = redis.NewScript(`
local key = KEYS[1]
local rev = KEYS[2]

redis.call('SET', key, ARGV[1])
return redis.call('INCR', rev)
`)

var deleteSlotScript = redis.NewScript(`
redis.call('DEL', KEYS[1])
redis.call('DEL', KEYS[2])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, slotKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *RedisAdapter) Set(ctx context.Context, key, value string) error {
	_, err := r.setWithRevision(ctx, key, value)
	return err
}

// setWithRevision writes the slot and returns its new revision.
func (r *RedisAdapter) setWithRevision(ctx context.Context, key, value string) (int64, error) {
	k := slotKeyPrefix + key
	return setSlotScript.Run(ctx, r.client, []string{k, k + revisionKeySuffix}, value).Int64()
}

func (r *RedisAdapter) Delete(ctx context.Context, key string) error {
	k := slotKeyPrefix + key
	return deleteSlotScript.Run(ctx, r.client, []string{k, k + revisionKeySuffix}).Err()
}

// Revision returns how many times the slot was written, 0 for a fresh slot.
func (r *RedisAdapter) Revision(ctx context.Context, key string) (int64, error) {
	rev, err := r.client.Get(ctx, slotKeyPrefix+key+revisionKeySuffix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return rev, err
}
