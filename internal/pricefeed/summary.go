package pricefeed

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

type Summary struct {
	First         float64 `json:"first"`
	Last          float64 `json:"last"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Min           float64 `json:"min"`
	Max           float64 `json:"max"`
	Mean          float64 `json:"mean"`
	StdDev        float64 `json:"std_dev"`
}

func Summarize(series []domain.PricePoint) (Summary, error) {
	if len(series) == 0 {
		return Summary{}, errors.New("empty price series")
	}
	prices := make([]float64, len(series))
	for i, p := range series {
		prices[i] = p.Price
	}
	s := Summary{
		First: prices[0],
		Last:  prices[len(prices)-1],
		Min:   floats.Min(prices),
		Max:   floats.Max(prices),
		Mean:  stat.Mean(prices, nil),
	}
	if len(prices) > 1 {
		s.StdDev = stat.StdDev(prices, nil)
	}
	s.Change = s.Last - s.First
	if s.First != 0 {
		s.ChangePercent = s.Change / s.First * 100
	}
	return s, nil
}
