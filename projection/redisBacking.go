package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisProjectionPrefix = "Projection:"
	redisKeySetPrefix     = "ProjectionKeys:"
	redisProductSet       = "ProjectionProducts"
)

type redisEnvelope struct {
	ComputedAt time.Time        `json:"computed_at"`
	Projection *DailyProjection `json:"projection"`
}

// RedisBacking shares projections between instances.
// Every stored key is tracked in a per-product set so a product can be invalidated
// without scanning the keyspace.
type RedisBacking struct {
	rdb redis.Cmdable
}

func NewRedisBacking(rdb redis.Cmdable) *RedisBacking {
	return &RedisBacking{rdb: rdb}
}

func redisProjectionKey(key CacheKey) string {
	return fmt.Sprintf("%s%s:%s:%s:%d", redisProjectionPrefix, key.Scope, key.Product, key.AsOf, key.Horizon)
}

func (b *RedisBacking) Load(ctx context.Context, key CacheKey) (*DailyProjection, time.Time, bool, error) {
	val, err := b.rdb.Get(ctx, redisProjectionKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	var env redisEnvelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, time.Time{}, false, err
	}
	if env.Projection == nil {
		return nil, time.Time{}, false, nil
	}
	return env.Projection, env.ComputedAt, true, nil
}

func (b *RedisBacking) Store(ctx context.Context, key CacheKey, p *DailyProjection, computedAt time.Time, ttl time.Duration) error {
	payload, err := json.Marshal(redisEnvelope{ComputedAt: computedAt, Projection: p})
	if err != nil {
		return err
	}
	redisKey := redisProjectionKey(key)
	setKey := redisKeySetPrefix + string(key.Product)
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKey, payload, ttl)
		pipe.SAdd(ctx, setKey, redisKey)
		pipe.SAdd(ctx, redisProductSet, string(key.Product))
		return nil
	})
	return err
}

func (b *RedisBacking) Invalidate(ctx context.Context, product ProductKey) error {
	setKey := redisKeySetPrefix + string(product)
	keys, err := b.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}
	keys = append(keys, setKey)
	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, redisProductSet, string(product))
		return nil
	})
	return err
}

func (b *RedisBacking) InvalidateAll(ctx context.Context) error {
	products, err := b.rdb.SMembers(ctx, redisProductSet).Result()
	if err != nil {
		return err
	}
	for _, p := range products {
		if err := b.Invalidate(ctx, ProductKey(p)); err != nil {
			return err
		}
	}
	return b.rdb.Del(ctx, redisProductSet).Err()
}
