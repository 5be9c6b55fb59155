package pricefeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

// Board is an in-process quote store with per-symbol fan-out. It stands in
// for redis when the service runs as a single process.
type Board struct {
	mu   sync.Mutex
	last map[string]domain.PriceTick
	subs map[string]map[chan domain.PriceTick]struct{}
}

func NewBoard() *Board {
	return &Board{
		last: make(map[string]domain.PriceTick),
		subs: make(map[string]map[chan domain.PriceTick]struct{}),
	}
}

// Publish never blocks; a subscriber that is not keeping up misses ticks.
func (b *Board) Publish(_ context.Context, tick domain.PriceTick) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[tick.Symbol] = tick
	for ch := range b.subs[tick.Symbol] {
		select {
		case ch <- tick:
		default:
		}
	}
	return nil
}

func (b *Board) LastPrice(_ context.Context, symbol string) (domain.PriceTick, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tick, ok := b.last[symbol]
	if !ok {
		return domain.PriceTick{}, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, symbol)
	}
	return tick, nil
}

func (b *Board) Subscribe(ctx context.Context, symbol string) <-chan domain.PriceTick {
	ch := make(chan domain.PriceTick, 16)
	b.mu.Lock()
	if b.subs[symbol] == nil {
		b.subs[symbol] = make(map[chan domain.PriceTick]struct{})
	}
	b.subs[symbol][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[symbol], ch)
		if len(b.subs[symbol]) == 0 {
			delete(b.subs, symbol)
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch
}
