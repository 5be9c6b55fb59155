package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

// KVRepo stores key-value records as plain redis strings under tq:{ns}:{key}.
type KVRepo struct {
	client *redis.Client
}

func NewKVRepo(client *redis.Client) *KVRepo {
	return &KVRepo{client: client}
}

func kvKey(namespace, key string) string {
	return "tq:" + namespace + ":" + key
}

func (r *KVRepo) Get(ctx context.Context, namespace, key string) (string, error) {
	val, err := r.client.Get(ctx, kvKey(namespace, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis get %s/%s: %w", namespace, key, err)
	}
	return val, nil
}

// SetMany wraps the writes in MULTI/EXEC so readers never see half of them.
func (r *KVRepo) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	pipe := r.client.TxPipeline()
	for key, value := range values {
		pipe.Set(ctx, kvKey(namespace, key), value, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", namespace, err)
	}
	return nil
}

func (r *KVRepo) Create(ctx context.Context, namespace, key, value string) error {
	ok, err := r.client.SetNX(ctx, kvKey(namespace, key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s/%s: %w", namespace, key, err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

var _ domain.KVStore = (*KVRepo)(nil)
