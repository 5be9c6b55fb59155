package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
	"github.com/inspire-tradequest/trade-quest/internal/ledger"
	"github.com/inspire-tradequest/trade-quest/internal/pricefeed"
)

// QuoteSource is the price boundary: the current quote for a symbol.
type QuoteSource interface {
	LastPrice(ctx context.Context, symbol string) (domain.PriceTick, error)
}

// StateStore persists one ledger per user.
type StateStore interface {
	Load(ctx context.Context, userID uuid.UUID) (domain.LedgerState, bool, error)
	Save(ctx context.Context, userID uuid.UUID, state domain.LedgerState) error
}

type Config struct {
	InitialCapital float64
	ShortPolicy    ShortPolicy
}

type OrderRequest struct {
	Symbol   string           `json:"symbol"`
	Side     domain.OrderSide `json:"side"`
	Quantity float64          `json:"quantity"`
}

type Account struct {
	CashBalance        float64           `json:"cash_balance"`
	TotalValue         float64           `json:"total_value"`
	InitialCapital     float64           `json:"initial_capital"`
	TotalReturnPercent float64           `json:"total_return_percent"`
	PricesStale        bool              `json:"prices_stale,omitempty"`
	Stats              ledger.Stats      `json:"stats"`
	OpenPositions      []domain.Position `json:"open_positions"`
}

type TradeResult struct {
	Position domain.Position `json:"position"`
	Account  Account         `json:"account"`
}

// AccountListener is told about every account change that went through the
// service.
type AccountListener func(userID uuid.UUID, account Account)

type session struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
}

// OrderService keeps one ledger session per user. Every mutation and the
// write that follows it run under the session lock, so writes for a user
// land in the order the mutations happened.
type OrderService struct {
	store    StateStore
	quotes   QuoteSource
	cfg      Config
	logger   *slog.Logger
	listener AccountListener

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

func NewOrderService(store StateStore, quotes QuoteSource, cfg Config, logger *slog.Logger) *OrderService {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = ledger.DefaultInitialCapital
	}
	if !cfg.ShortPolicy.Valid() {
		cfg.ShortPolicy = ShortAllow
	}
	return &OrderService{
		store:    store,
		quotes:   quotes,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// OnAccountChange registers l. It must be called before the service is used.
func (s *OrderService) OnAccountChange(l AccountListener) {
	s.listener = l
}

// session returns the user's live session, restoring it on first use. The
// store is read without holding s.mu; when two first requests race, the
// session inserted first wins.
func (s *OrderService) session(ctx context.Context, userID uuid.UUID) (*session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	state, found, err := s.store.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrPersistenceReadCorrupt) {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		s.logger.Warn("persisted ledger unreadable, starting fresh", "user_id", userID, "err", err)
	}
	if !found {
		state = domain.LedgerState{CashBalance: s.cfg.InitialCapital}
	}
	policy := s.cfg.ShortPolicy
	loaded := &session{
		ledger: ledger.Restore(state, ledger.WithValidator(func(o domain.Order, cash float64) error {
			return ValidateOrder(o, cash, policy)
		})),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, nil
	}
	s.sessions[userID] = loaded
	return loaded, nil
}

// PlaceOrder prices the request at the current quote and opens a position.
// If the position was opened but could not be saved, the result is returned
// together with an error wrapping domain.ErrPersistenceWriteFailed.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, req OrderRequest) (*TradeResult, error) {
	asset, ok := pricefeed.Lookup(req.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %q", domain.ErrInvalidOrder, req.Symbol)
	}
	tick, err := s.quotes.LastPrice(ctx, asset.Symbol)
	if err != nil {
		return nil, fmt.Errorf("price lookup failed: %w", err)
	}

	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	pos, err := sess.ledger.OpenPosition(domain.Order{
		Symbol:    asset.Symbol,
		Name:      asset.Name,
		Side:      domain.OrderSide(strings.ToLower(string(req.Side))),
		Quantity:  req.Quantity,
		UnitPrice: tick.Price,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("position opened",
		"user_id", userID, "position_id", pos.ID, "symbol", pos.Symbol,
		"side", pos.Side, "quantity", pos.Quantity, "price", pos.EntryPrice)

	return s.commit(ctx, userID, sess, pos)
}

// ClosePosition closes an open position at its symbol's current quote.
func (s *OrderService) ClosePosition(ctx context.Context, userID, positionID uuid.UUID) (*TradeResult, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	existing, err := sess.ledger.Position(positionID)
	if err != nil {
		return nil, err
	}
	if !existing.IsOpen() {
		return nil, fmt.Errorf("%w: %s", domain.ErrPositionAlreadyClosed, positionID)
	}
	tick, err := s.quotes.LastPrice(ctx, existing.Symbol)
	if err != nil {
		return nil, fmt.Errorf("price lookup failed: %w", err)
	}

	pos, err := sess.ledger.ClosePosition(positionID, tick.Price)
	if err != nil {
		return nil, err
	}
	s.logger.Info("position closed",
		"user_id", userID, "position_id", pos.ID, "symbol", pos.Symbol,
		"price", tick.Price, "realized_profit", *pos.RealizedProfit)

	return s.commit(ctx, userID, sess, pos)
}

// commit persists the session and builds the result. Caller holds sess.mu.
func (s *OrderService) commit(ctx context.Context, userID uuid.UUID, sess *session, pos domain.Position) (*TradeResult, error) {
	result := &TradeResult{Position: pos, Account: s.account(ctx, sess.ledger)}
	if s.listener != nil {
		s.listener(userID, result.Account)
	}
	if err := s.store.Save(ctx, userID, sess.ledger.Snapshot()); err != nil {
		s.logger.Warn("ledger not persisted, continuing in memory", "user_id", userID, "err", err)
		if !errors.Is(err, domain.ErrPersistenceWriteFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistenceWriteFailed, err)
		}
		return result, err
	}
	return result, nil
}

func (s *OrderService) Account(ctx context.Context, userID uuid.UUID) (Account, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	return s.account(ctx, sess.ledger), nil
}

func (s *OrderService) Positions(ctx context.Context, userID uuid.UUID, status domain.PositionStatus) ([]domain.Position, error) {
	sess, err := s.session(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sess.ledger.Positions(status), nil
}

// account values open positions at current quotes. A position whose quote is
// unavailable is valued at its entry price and the account is marked stale.
func (s *OrderService) account(ctx context.Context, l *ledger.Ledger) Account {
	open := l.Positions(domain.StatusOpen)
	prices := make(map[string]float64, len(open))
	stale := false
	for _, p := range open {
		if _, seen := prices[p.Symbol]; seen {
			continue
		}
		tick, err := s.quotes.LastPrice(ctx, p.Symbol)
		if err != nil {
			stale = true
			prices[p.Symbol] = p.EntryPrice
			continue
		}
		prices[p.Symbol] = tick.Price
	}

	total, err := l.TotalAccountValue(func(symbol string) (float64, bool) {
		price, ok := prices[symbol]
		return price, ok
	})
	if err != nil {
		// A position opened between the two reads; value it at cash only.
		total = l.Cash()
		stale = true
	}

	return Account{
		CashBalance:        l.Cash(),
		TotalValue:         total,
		InitialCapital:     s.cfg.InitialCapital,
		TotalReturnPercent: (total/s.cfg.InitialCapital - 1) * 100,
		PricesStale:        stale,
		Stats:              l.Stats(),
		OpenPositions:      open,
	}
}

// Snapshots copies the state of every loaded session.
func (s *OrderService) Snapshots() map[uuid.UUID]domain.LedgerState {
	s.mu.Lock()
	sessions := make(map[uuid.UUID]*session, len(s.sessions))
	for id, sess := range s.sessions {
		sessions[id] = sess
	}
	s.mu.Unlock()

	out := make(map[uuid.UUID]domain.LedgerState, len(sessions))
	for id, sess := range sessions {
		out[id] = sess.ledger.Snapshot()
	}
	return out
}
