package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inspire-tradequest/trade-quest/internal/domain"
)

// SchemaVersion is written into every record. Records without a version are
// the unversioned browser format and are migrated on read.
const SchemaVersion = 1

type tradesRecord struct {
	SchemaVersion int               `json:"schema_version"`
	Positions     []domain.Position `json:"positions"`
}

type accountRecord struct {
	SchemaVersion int     `json:"schema_version"`
	CashBalance   float64 `json:"cash_balance"`
}

func encodeState(state domain.LedgerState) (trades, account string, err error) {
	positions := state.Positions
	if positions == nil {
		positions = []domain.Position{}
	}
	t, err := json.Marshal(tradesRecord{SchemaVersion: SchemaVersion, Positions: positions})
	if err != nil {
		return "", "", fmt.Errorf("encode trades: %w", err)
	}
	a, err := json.Marshal(accountRecord{SchemaVersion: SchemaVersion, CashBalance: state.CashBalance})
	if err != nil {
		return "", "", fmt.Errorf("encode account: %w", err)
	}
	return string(t), string(a), nil
}

func decodeTrades(raw string) ([]domain.Position, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) > 0 && data[0] == '[' {
		return migrateLegacyTrades(data)
	}
	var rec tradesRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	if rec.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported trades schema version %d", rec.SchemaVersion)
	}
	if err := checkPositions(rec.Positions); err != nil {
		return nil, err
	}
	return rec.Positions, nil
}

func decodeAccount(raw string) (float64, error) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) > 0 && data[0] != '{' {
		var legacy float64
		if err := json.Unmarshal(data, &legacy); err != nil {
			return 0, fmt.Errorf("decode legacy account: %w", err)
		}
		return legacy, nil
	}
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("decode account: %w", err)
	}
	if rec.SchemaVersion != SchemaVersion {
		return 0, fmt.Errorf("unsupported account schema version %d", rec.SchemaVersion)
	}
	return rec.CashBalance, nil
}

// legacyTrade is the shape the browser simulator kept in local storage.
type legacyTrade struct {
	ID        string                `json:"id"`
	Symbol    string                `json:"symbol"`
	Name      string                `json:"name"`
	Type      domain.OrderSide      `json:"type"`
	Price     float64               `json:"price"`
	Quantity  float64               `json:"quantity"`
	Timestamp time.Time             `json:"timestamp"`
	Profit    *float64              `json:"profit"`
	Status    domain.PositionStatus `json:"status"`
}

func migrateLegacyTrades(data []byte) ([]domain.Position, error) {
	var legacy []legacyTrade
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("decode legacy trades: %w", err)
	}
	// The browser stored trades newest first.
	positions := make([]domain.Position, 0, len(legacy))
	for i := len(legacy) - 1; i >= 0; i-- {
		lt := legacy[i]
		p := domain.Position{
			ID:         legacyID(lt.ID),
			Symbol:     lt.Symbol,
			Name:       lt.Name,
			Side:       lt.Type,
			EntryPrice: lt.Price,
			Quantity:   lt.Quantity,
			OpenedAt:   lt.Timestamp,
			Status:     lt.Status,
		}
		if p.Status == domain.StatusClosed {
			profit := 0.0
			if lt.Profit != nil {
				profit = *lt.Profit
			}
			p.RealizedProfit = &profit
		}
		positions = append(positions, p)
	}
	if err := checkPositions(positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// legacyID keeps uuids as they are and maps the browser's millisecond ids
// onto stable name-based uuids.
func legacyID(id string) uuid.UUID {
	if u, err := uuid.Parse(id); err == nil {
		return u
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("tradequest-trade:"+id))
}

func checkPositions(positions []domain.Position) error {
	seen := make(map[uuid.UUID]struct{}, len(positions))
	for i, p := range positions {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("position %d: duplicate id %s", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if !p.Side.Valid() || !p.Status.Valid() {
			return fmt.Errorf("position %d: invalid side or status", i)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("position %d: non-positive quantity", i)
		}
		if (p.Status == domain.StatusClosed) != (p.RealizedProfit != nil) {
			return errors.New("realized profit must be set exactly on closed positions")
		}
	}
	return nil
}
