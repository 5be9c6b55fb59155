package pricefeed

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC) }

// constSource always yields the same value, which makes every uniform draw
// land at the same point in [-volatility, volatility).
type constSource int64

func (c constSource) Int63() int64 { return int64(c) }
func (c constSource) Seed(int64)   {}

func TestSeriesLengthAndDates(t *testing.T) {
	g := NewGenerator(42, WithClock(fixedNow))

	series, err := g.Series(domain.ClassStandard, 30)
	require.NoError(t, err)
	require.Len(t, series, 31)

	assert.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), series[0].Date)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), series[30].Date)
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Date.After(series[i-1].Date), "dates must strictly increase at %d", i)
	}
}

func TestSeriesZeroDays(t *testing.T) {
	g := NewGenerator(1, WithClock(fixedNow))
	series, err := g.Series(domain.ClassCrypto, 0)
	require.NoError(t, err)
	assert.Len(t, series, 1)
}

func TestSeriesNegativeDays(t *testing.T) {
	g := NewGenerator(1)
	_, err := g.Series(domain.ClassCrypto, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidDays)
}

func TestSeriesDeterministicBySeed(t *testing.T) {
	a, err := NewGenerator(7, WithClock(fixedNow)).Series(domain.ClassCrypto, 60)
	require.NoError(t, err)
	b, err := NewGenerator(7, WithClock(fixedNow)).Series(domain.ClassCrypto, 60)
	require.NoError(t, err)
	c, err := NewGenerator(8, WithClock(fixedNow)).Series(domain.ClassCrypto, 60)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSeriesPricesStayPositive(t *testing.T) {
	g := NewGenerator(3, WithClock(fixedNow))
	for _, class := range []domain.AssetClass{domain.ClassCrypto, domain.ClassGrowth, domain.ClassBluechip, domain.ClassStandard} {
		series, err := g.Series(class, 365)
		require.NoError(t, err)
		for _, p := range series {
			assert.GreaterOrEqual(t, p.Price, MinPrice)
		}
	}
}

func TestSeriesClampsAtMinimum(t *testing.T) {
	// Int63 of 0 gives Float64 of 0, so every step moves by drift - volatility.
	g := NewGeneratorFromSource(constSource(0), WithClock(fixedNow))

	series, err := g.Series(domain.ClassGrowth, 100)
	require.NoError(t, err)

	assert.InDelta(t, 97.0, series[0].Price, 1e-9)
	assert.Equal(t, MinPrice, series[len(series)-1].Price)
}

func TestSeriesFollowsDrift(t *testing.T) {
	// Float64 of 0.5 cancels the noise and leaves only drift.
	g := NewGeneratorFromSource(constSource(1<<62), WithClock(fixedNow))

	series, err := g.Series(domain.ClassBluechip, 10)
	require.NoError(t, err)
	for i, p := range series {
		assert.InDelta(t, BasePrice+0.2*float64(i+1), p.Price, 1e-9)
	}
}

func TestStep(t *testing.T) {
	g := NewGeneratorFromSource(constSource(1<<62))
	assert.InDelta(t, 61551.53, g.Step(61245.30, domain.ClassCrypto), 0.01)

	down := NewGeneratorFromSource(constSource(0))
	assert.Equal(t, MinPrice, down.Step(0.1, domain.ClassGrowth))
}

func TestPresetForUnknownClass(t *testing.T) {
	assert.Equal(t, PresetFor(domain.ClassStandard), PresetFor(domain.AssetClass("bonds")))
}

func TestGeneratorConcurrentUse(t *testing.T) {
	g := NewGeneratorFromSource(rand.NewSource(9))
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				g.Step(100, domain.ClassCrypto)
			}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
}
