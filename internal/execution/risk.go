package execution

import (
	"fmt"
	"math"
	"strings"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

// ShortPolicy decides what a sell order means.
type ShortPolicy string

const (
	// ShortAllow treats a sell as an independent short position that credits
	// cash immediately.
	ShortAllow ShortPolicy = "allow"
	// ShortDeny rejects sell orders; longs are exited by closing them.
	ShortDeny ShortPolicy = "deny"
)

// MaxNotional caps the cash a single order may move. Larger amounts lose
// cent precision in float64 and can overflow the balance.
const MaxNotional = 1e12

func (p ShortPolicy) Valid() bool {
	return p == ShortAllow || p == ShortDeny
}

// ValidateOrder gates an order before it reaches the ledger. It has no side
// effects.
func ValidateOrder(o domain.Order, cashBalance float64, policy ShortPolicy) error {
	if o.Quantity <= 0 || math.IsNaN(o.Quantity) || math.IsInf(o.Quantity, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidQuantity, o.Quantity)
	}
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidOrder)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSide, o.Side)
	}
	if o.UnitPrice <= 0 || math.IsNaN(o.UnitPrice) || math.IsInf(o.UnitPrice, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPrice, o.UnitPrice)
	}
	if n := o.Notional(); math.IsInf(n, 0) || n > MaxNotional {
		return fmt.Errorf("%w: notional %g exceeds %g", domain.ErrInvalidQuantity, n, MaxNotional)
	}
	switch o.Side {
	case domain.SideBuy:
		if cost := o.Notional(); cost > cashBalance {
			return fmt.Errorf("%w: cost %.2f exceeds balance %.2f", domain.ErrInsufficientFunds, cost, cashBalance)
		}
	case domain.SideSell:
		if policy == ShortDeny {
			return domain.ErrShortSellingDisabled
		}
	}
	return nil
}
