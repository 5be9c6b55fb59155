package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

// lastPriceTTL bounds how long a quote is tradable after the ticker stops.
const lastPriceTTL = 60 * time.Second

func priceChannel(symbol string) string { return "prices." + symbol }

func lastPriceKey(symbol string) string { return "last_price:" + symbol }

type PriceRepo struct {
	client *redis.Client
}

func NewPriceRepo(client *redis.Client) *PriceRepo {
	return &PriceRepo{client: client}
}

// Publish fans the tick out to subscribers and stores it as the last price.
func (r *PriceRepo) Publish(ctx context.Context, tick domain.PriceTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Publish(ctx, priceChannel(tick.Symbol), data)
	pipe.Set(ctx, lastPriceKey(tick.Symbol), data, lastPriceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", tick.Symbol, err)
	}
	return nil
}

// LastPrice returns domain.ErrPriceUnavailable when no fresh quote exists.
func (r *PriceRepo) LastPrice(ctx context.Context, symbol string) (domain.PriceTick, error) {
	val, err := r.client.Get(ctx, lastPriceKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.PriceTick{}, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
		}
		return domain.PriceTick{}, fmt.Errorf("redis get last price: %w", err)
	}
	var tick domain.PriceTick
	if err := json.Unmarshal([]byte(val), &tick); err != nil {
		return domain.PriceTick{}, fmt.Errorf("decode last price %s: %w", symbol, err)
	}
	return tick, nil
}

// Subscribe streams ticks for symbol until ctx is done, then closes the
// channel. Undecodable payloads are skipped.
func (r *PriceRepo) Subscribe(ctx context.Context, symbol string) <-chan domain.PriceTick {
	pubsub := r.client.Subscribe(ctx, priceChannel(symbol))
	out := make(chan domain.PriceTick, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var tick domain.PriceTick
				if err := json.Unmarshal([]byte(msg.Payload), &tick); err != nil {
					continue
				}
				select {
				case out <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
