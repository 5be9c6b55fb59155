// Package storage persists ledger state as two versioned records in a
// key-value store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

const (
	KeyTrades  = "tradequest_trades"
	KeyAccount = "tradequest_account"
)

type Adapter struct {
	kv             domain.KVStore
	initialCapital float64
}

func NewAdapter(kv domain.KVStore, initialCapital float64) *Adapter {
	return &Adapter{kv: kv, initialCapital: initialCapital}
}

func LedgerNamespace(userID uuid.UUID) string {
	return "ledger:" + userID.String()
}

// Default is the state of a brand new ledger.
func (a *Adapter) Default() domain.LedgerState {
	return domain.LedgerState{CashBalance: a.initialCapital, Positions: []domain.Position{}}
}

// Save writes both records atomically.
func (a *Adapter) Save(ctx context.Context, userID uuid.UUID, state domain.LedgerState) error {
	trades, account, err := encodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistenceWriteFailed, err)
	}
	err = a.kv.SetMany(ctx, LedgerNamespace(userID), map[string]string{
		KeyTrades:  trades,
		KeyAccount: account,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceWriteFailed, err)
	}
	return nil
}

// Load returns the saved state and found=true, or the default state and
// found=false when nothing was saved. A corrupt or partial record yields the
// default state together with an ErrPersistenceReadCorrupt error so the
// caller can warn and carry on.
func (a *Adapter) Load(ctx context.Context, userID uuid.UUID) (domain.LedgerState, bool, error) {
	ns := LedgerNamespace(userID)
	rawTrades, tradesErr := a.kv.Get(ctx, ns, KeyTrades)
	rawAccount, accountErr := a.kv.Get(ctx, ns, KeyAccount)

	tradesMissing := errors.Is(tradesErr, domain.ErrNotFound)
	accountMissing := errors.Is(accountErr, domain.ErrNotFound)
	if tradesMissing && accountMissing {
		return a.Default(), false, nil
	}
	for _, err := range []error{tradesErr, accountErr} {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return a.Default(), false, fmt.Errorf("load ledger %s: %w", userID, err)
		}
	}
	if tradesMissing || accountMissing {
		return a.Default(), false, fmt.Errorf("%w: only one of the two records present", domain.ErrPersistenceReadCorrupt)
	}

	positions, err := decodeTrades(rawTrades)
	if err != nil {
		return a.Default(), false, fmt.Errorf("%w: %v", domain.ErrPersistenceReadCorrupt, err)
	}
	cash, err := decodeAccount(rawAccount)
	if err != nil {
		return a.Default(), false, fmt.Errorf("%w: %v", domain.ErrPersistenceReadCorrupt, err)
	}
	return domain.LedgerState{CashBalance: cash, Positions: positions}, true, nil
}
