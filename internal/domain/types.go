package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// UnmarshalText rejects anything other than "buy" or "sell" so a decoded
// side is always one of the two known values.
func (s *OrderSide) UnmarshalText(text []byte) error {
	v := OrderSide(text)
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, string(text))
	}
	*s = v
	return nil
}

type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

func (s PositionStatus) Valid() bool {
	return s == StatusOpen || s == StatusClosed
}

func (s *PositionStatus) UnmarshalText(text []byte) error {
	v := PositionStatus(text)
	if !v.Valid() {
		return fmt.Errorf("invalid position status: %q", string(text))
	}
	*s = v
	return nil
}

type AssetClass string

const (
	ClassCrypto   AssetClass = "crypto"
	ClassGrowth   AssetClass = "growth"
	ClassBluechip AssetClass = "bluechip"
	ClassStandard AssetClass = "standard"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// userRecord is the stored form of a User; the password hash is kept out of
// the API encoding but must survive persistence.
type userRecord struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u User) MarshalRecord() ([]byte, error) {
	return json.Marshal(userRecord(u))
}

func (u *User) UnmarshalRecord(data []byte) error {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*u = User(rec)
	return nil
}

type Asset struct {
	Symbol        string     `json:"symbol"`
	Name          string     `json:"name"`
	Class         AssetClass `json:"class"`
	Price         float64    `json:"price"`
	Change        float64    `json:"change"`
	ChangePercent float64    `json:"change_percent"`
}

// Order is a request to trade, priced at the quote current when it was built.
type Order struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Side      OrderSide `json:"side"`
	Quantity  float64   `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}

// Notional is the cash amount the order moves.
func (o Order) Notional() float64 {
	return o.Quantity * o.UnitPrice
}

// Position is one executed order and its lifecycle. RealizedProfit,
// ClosedAt and ExitPrice are set exactly when Status is closed.
type Position struct {
	ID             uuid.UUID      `json:"id"`
	Symbol         string         `json:"symbol"`
	Name           string         `json:"name"`
	Side           OrderSide      `json:"side"`
	EntryPrice     float64        `json:"entry_price"`
	Quantity       float64        `json:"quantity"`
	OpenedAt       time.Time      `json:"opened_at"`
	Status         PositionStatus `json:"status"`
	RealizedProfit *float64       `json:"realized_profit,omitempty"`
	ExitPrice      *float64       `json:"exit_price,omitempty"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
}

func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Clone returns a copy that shares no pointers with p.
func (p Position) Clone() Position {
	c := p
	if p.RealizedProfit != nil {
		v := *p.RealizedProfit
		c.RealizedProfit = &v
	}
	if p.ExitPrice != nil {
		v := *p.ExitPrice
		c.ExitPrice = &v
	}
	if p.ClosedAt != nil {
		v := *p.ClosedAt
		c.ClosedAt = &v
	}
	return c
}

// LedgerState is the persisted form of a ledger. Positions are kept in
// execution order.
type LedgerState struct {
	CashBalance float64    `json:"cash_balance"`
	Positions   []Position `json:"positions"`
}

type PriceTick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}
