package pricefeed

import (
	"strings"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

var catalog = []domain.Asset{
	{Symbol: "AAPL", Name: "Apple Inc.", Class: domain.ClassBluechip, Price: 175.42},
	{Symbol: "TSLA", Name: "Tesla Inc.", Class: domain.ClassGrowth, Price: 192.36},
	{Symbol: "MSFT", Name: "Microsoft", Class: domain.ClassBluechip, Price: 415.56},
	{Symbol: "AMZN", Name: "Amazon", Class: domain.ClassStandard, Price: 182.41},
	{Symbol: "BTC", Name: "Bitcoin", Class: domain.ClassCrypto, Price: 61245.30},
	{Symbol: "ETH", Name: "Ethereum", Class: domain.ClassCrypto, Price: 3423.91},
}

// Catalog returns a copy of the tradable assets with their seed prices.
func Catalog() []domain.Asset {
	out := make([]domain.Asset, len(catalog))
	copy(out, catalog)
	return out
}

func Lookup(symbol string) (domain.Asset, bool) {
	symbol = strings.ToUpper(symbol)
	for _, a := range catalog {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return domain.Asset{}, false
}
