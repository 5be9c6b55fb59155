// Package ledger owns one user's cash balance and positions. It is the only
// code that mutates them.
package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

const DefaultInitialCapital = 10000.0

// Validator gates an order against the cash balance at execution time.
type Validator func(o domain.Order, cashBalance float64) error

// PriceLookup resolves the current price of a symbol.
type PriceLookup func(symbol string) (float64, bool)

type Ledger struct {
	mu        sync.Mutex
	cash      float64
	positions []domain.Position
	index     map[uuid.UUID]int

	validate Validator
	now      func() time.Time
	newID    func() uuid.UUID
}

type Option func(*Ledger)

func WithValidator(v Validator) Option {
	return func(l *Ledger) { l.validate = v }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(f func() uuid.UUID) Option {
	return func(l *Ledger) { l.newID = f }
}

func New(initialCapital float64, opts ...Option) *Ledger {
	return Restore(domain.LedgerState{CashBalance: initialCapital}, opts...)
}

// Restore rebuilds a ledger from persisted state. The state is copied.
func Restore(state domain.LedgerState, opts ...Option) *Ledger {
	l := &Ledger{
		cash:      state.CashBalance,
		positions: make([]domain.Position, 0, len(state.Positions)),
		index:     make(map[uuid.UUID]int, len(state.Positions)),
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, p := range state.Positions {
		l.index[p.ID] = len(l.positions)
		l.positions = append(l.positions, p.Clone())
	}
	return l
}

// OpenPosition validates the order and records it as a new open position.
// A buy debits the notional from cash, a sell credits it. Either both the
// balance change and the new position are applied or neither is.
func (l *Ledger) OpenPosition(o domain.Order) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.validate != nil {
		if err := l.validate(o, l.cash); err != nil {
			return domain.Position{}, err
		}
	}
	if !o.Side.Valid() {
		return domain.Position{}, fmt.Errorf("%w: %q", domain.ErrInvalidSide, o.Side)
	}
	notional := o.Notional()
	cash := l.cash - notional
	if o.Side == domain.SideSell {
		cash = l.cash + notional
	}
	if !finite(notional) || notional <= 0 || !finite(cash) {
		return domain.Position{}, fmt.Errorf("%w: notional %v", domain.ErrInvalidOrder, notional)
	}

	p := domain.Position{
		ID:         l.newID(),
		Symbol:     o.Symbol,
		Name:       o.Name,
		Side:       o.Side,
		EntryPrice: o.UnitPrice,
		Quantity:   o.Quantity,
		OpenedAt:   l.now().UTC(),
		Status:     domain.StatusOpen,
	}
	if _, dup := l.index[p.ID]; dup {
		return domain.Position{}, fmt.Errorf("position id %s already in use", p.ID)
	}

	l.cash = cash
	l.index[p.ID] = len(l.positions)
	l.positions = append(l.positions, p)
	return p.Clone(), nil
}

// ClosePosition books the realized profit of an open position at
// currentPrice and applies the inverse of its opening cash movement.
func (l *Ledger) ClosePosition(id uuid.UUID, currentPrice float64) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
	}
	p := l.positions[i]
	if !p.IsOpen() {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionAlreadyClosed, id)
	}
	if currentPrice <= 0 || !finite(currentPrice) {
		return domain.Position{}, fmt.Errorf("%w: %v", domain.ErrInvalidPrice, currentPrice)
	}

	currentValue := p.Quantity * currentPrice
	entryValue := p.Quantity * p.EntryPrice
	var profit, cash float64
	if p.Side == domain.SideBuy {
		profit = currentValue - entryValue
		cash = l.cash + currentValue
	} else {
		profit = entryValue - currentValue
		cash = l.cash - currentValue
	}
	if !finite(cash) || !finite(profit) {
		return domain.Position{}, fmt.Errorf("%w: %v overflows the balance", domain.ErrInvalidPrice, currentPrice)
	}
	l.cash = cash

	closedAt := l.now().UTC()
	exit := currentPrice
	p.Status = domain.StatusClosed
	p.RealizedProfit = &profit
	p.ExitPrice = &exit
	p.ClosedAt = &closedAt
	l.positions[i] = p
	return p.Clone(), nil
}

// TotalAccountValue is cash plus the market value of open positions. A
// short's market value is negative since its proceeds are already in cash.
func (l *Ledger) TotalAccountValue(prices PriceLookup) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := l.cash
	for _, p := range l.positions {
		if !p.IsOpen() {
			continue
		}
		price, ok := prices(p.Symbol)
		if !ok {
			return 0, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, p.Symbol)
		}
		if p.Side == domain.SideBuy {
			total += p.Quantity * price
		} else {
			total -= p.Quantity * price
		}
	}
	return total, nil
}

func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns a copy of the position with the given id.
func (l *Ledger) Position(id uuid.UUID) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("%w: %s", domain.ErrPositionNotFound, id)
	}
	return l.positions[i].Clone(), nil
}

// Positions returns copies most-recent-first. An empty status matches all.
func (l *Ledger) Positions(status domain.PositionStatus) []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Position, 0, len(l.positions))
	for i := len(l.positions) - 1; i >= 0; i-- {
		p := l.positions[i]
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p.Clone())
	}
	return out
}

// Snapshot returns the persisted form, positions in execution order.
func (l *Ledger) Snapshot() domain.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make([]domain.Position, len(l.positions))
	for i, p := range l.positions {
		positions[i] = p.Clone()
	}
	return domain.LedgerState{CashBalance: l.cash, Positions: positions}
}

type Stats struct {
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
	RealizedProfit  float64 `json:"realized_profit"`
	WinRate         float64 `json:"win_rate"`
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	wins := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			s.OpenPositions++
			continue
		}
		s.ClosedPositions++
		if p.RealizedProfit != nil {
			s.RealizedProfit += *p.RealizedProfit
			if *p.RealizedProfit > 0 {
				wins++
			}
		}
	}
	if s.ClosedPositions > 0 {
		s.WinRate = float64(wins) / float64(s.ClosedPositions)
	}
	return s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
