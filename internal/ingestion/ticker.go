// Package ingestion drives the synthetic market: it walks every catalog asset
// and publishes a tick per asset on each interval.
package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
	"github.com/inspire-tradequest/trade-quest/internal/pricefeed"
)

type Publisher interface {
	Publish(ctx context.Context, tick domain.PriceTick) error
}

type Ticker struct {
	gen       *pricefeed.Generator
	publisher Publisher
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	assets []domain.Asset
	seed   map[string]float64
}

func NewTicker(gen *pricefeed.Generator, publisher Publisher, interval time.Duration, logger *slog.Logger) *Ticker {
	assets := pricefeed.Catalog()
	seed := make(map[string]float64, len(assets))
	for _, a := range assets {
		seed[a.Symbol] = a.Price
	}
	return &Ticker{
		gen:       gen,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		assets:    assets,
		seed:      seed,
	}
}

// Run publishes the seed quotes immediately, then steps the market every
// interval until ctx is done.
func (t *Ticker) Run(ctx context.Context) {
	t.publishAll(ctx)
	t.logger.Info("price ticker started", "assets", len(t.assets), "interval", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("price ticker stopped")
			return
		case <-ticker.C:
			t.Step()
			t.publishAll(ctx)
		}
	}
}

// Step moves every asset one random-walk step.
func (t *Ticker) Step() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.assets {
		a := &t.assets[i]
		a.Price = t.gen.Step(a.Price, a.Class)
		base := t.seed[a.Symbol]
		a.Change = a.Price - base
		if base != 0 {
			a.ChangePercent = a.Change / base * 100
		}
	}
}

// Assets returns the current quote board.
func (t *Ticker) Assets() []domain.Asset {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Asset, len(t.assets))
	copy(out, t.assets)
	return out
}

func (t *Ticker) publishAll(ctx context.Context) {
	ts := t.now().UTC()
	for _, a := range t.Assets() {
		tick := domain.PriceTick{Symbol: a.Symbol, Price: a.Price, Timestamp: ts}
		if err := t.publisher.Publish(ctx, tick); err != nil {
			t.logger.Error("failed to publish price tick", "symbol", a.Symbol, "err", err)
		}
	}
}
