// Package pricefeed produces synthetic price data: chart series, live quote
// steps and the tradable asset catalog.
package pricefeed

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

const (
	BasePrice = 100.0
	MinPrice  = 0.1
)

// Preset shapes the random walk of an asset class.
type Preset struct {
	Volatility float64
	Drift      float64
}

var presets = map[domain.AssetClass]Preset{
	domain.ClassCrypto:   {Volatility: 4, Drift: 0.5},
	domain.ClassGrowth:   {Volatility: 3, Drift: 0},
	domain.ClassBluechip: {Volatility: 1.5, Drift: 0.2},
	domain.ClassStandard: {Volatility: 2, Drift: 0},
}

func PresetFor(class domain.AssetClass) Preset {
	if p, ok := presets[class]; ok {
		return p
	}
	return presets[domain.ClassStandard]
}

// Generator is safe for concurrent use. Two generators built from the same
// seed and clock produce identical output for identical call sequences.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

type Option func(*Generator)

// WithClock overrides the time source used to date series points.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func NewGenerator(seed int64, opts ...Option) *Generator {
	return NewGeneratorFromSource(rand.NewSource(seed), opts...)
}

func NewGeneratorFromSource(src rand.Source, opts ...Option) *Generator {
	g := &Generator{rng: rand.New(src), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Series returns days+1 daily points ending today, starting at BasePrice
// and moving by drift plus uniform noise in [-volatility, volatility).
func (g *Generator) Series(class domain.AssetClass, days int) ([]domain.PricePoint, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidDays, days)
	}
	p := PresetFor(class)

	g.mu.Lock()
	defer g.mu.Unlock()

	today := truncateDay(g.now())
	points := make([]domain.PricePoint, 0, days+1)
	price := BasePrice
	for i := days; i >= 0; i-- {
		price = clamp(price + p.Drift + g.uniform(p.Volatility))
		points = append(points, domain.PricePoint{
			Date:  today.AddDate(0, 0, -i),
			Price: price,
		})
	}
	return points, nil
}

// Step advances a live quote by a move expressed in percent of price.
func (g *Generator) Step(price float64, class domain.AssetClass) float64 {
	p := PresetFor(class)
	g.mu.Lock()
	noise := g.uniform(p.Volatility)
	g.mu.Unlock()
	return clamp(price * (1 + (p.Drift+noise)/100))
}

func (g *Generator) uniform(width float64) float64 {
	return (g.rng.Float64()*2 - 1) * width
}

func clamp(price float64) float64 {
	price = math.Round(price*100) / 100
	if price < MinPrice || math.IsNaN(price) {
		return MinPrice
	}
	return price
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
