// Package model defines the core domain types shared across the party
// engine. All monetary values use shopspring/decimal — never float64 for
// money.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is one of the two mutually exclusive resolutions of a binary
// market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// ErrInvalidOutcome is returned when an outcome string is neither "yes"
// nor "no".
var ErrInvalidOutcome = errors.New("model: outcome must be yes or no")

// ParseOutcome validates an outcome string from client input.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeYes, OutcomeNo:
		return Outcome(s), nil
	}
	return "", ErrInvalidOutcome
}

// Trade modes.
const (
	ModeBuy  = "buy"
	ModeSell = "sell"
)

// Market is the state of one binary prediction market. The YES and NO
// prices move independently per outcome pool; they are not forced
// complementary.
type Market struct {
	ID          string          `json:"id" db:"id"`
	Question    string          `json:"question" db:"question"`
	YesPrice    decimal.Decimal `json:"yes_price" db:"yes_price"`
	NoPrice     decimal.Decimal `json:"no_price" db:"no_price"`
	PoolK       decimal.Decimal `json:"pool_k" db:"pool_k"`             // liquidity constant, immutable
	TotalVolume decimal.Decimal `json:"total_volume" db:"total_volume"` // buy-side dollars only
	IsLocked    bool            `json:"is_locked" db:"is_locked"`
	Outcome     Outcome         `json:"outcome,omitempty" db:"outcome"` // empty while open
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Open reports whether the market still accepts resolution (it may be
// admin-locked for trading and still be open).
func (m *Market) Open() bool {
	return m.Outcome == ""
}

// Tradable reports whether new trades are accepted.
func (m *Market) Tradable() bool {
	return m.Open() && !m.IsLocked
}

// OutcomePrice returns the current price of the given outcome pool.
func (m *Market) OutcomePrice(o Outcome) decimal.Decimal {
	if o == OutcomeYes {
		return m.YesPrice
	}
	return m.NoPrice
}

// SetOutcomePrice updates the price of the given outcome pool.
func (m *Market) SetOutcomePrice(o Outcome, p decimal.Decimal) {
	if o == OutcomeYes {
		m.YesPrice = p
	} else {
		m.NoPrice = p
	}
}

// Position is one user's holdings in one outcome of one market. Created
// lazily on first buy; zeroed, never deleted.
type Position struct {
	UserID      string          `json:"user_id" db:"user_id"`
	MarketID    string          `json:"market_id" db:"market_id"`
	Outcome     Outcome         `json:"outcome" db:"outcome"`
	SharesOwned decimal.Decimal `json:"shares_owned" db:"shares_owned"`
	TotalPaid   decimal.Decimal `json:"total_paid" db:"total_paid"` // average cost basis
}

// Profile is a player account. Balance is the spendable play-money
// balance; it never goes negative.
type Profile struct {
	ID        string          `json:"id" db:"id"`
	Username  string          `json:"username" db:"username"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Role      string          `json:"role" db:"role"` // "guest", "admin", "host"
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Trade is an immutable audit record of one executed buy or sell.
// Once created these are never modified or deleted.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Outcome   Outcome         `json:"outcome" db:"outcome"`
	Mode      string          `json:"mode" db:"mode"`     // "buy" or "sell"
	Amount    decimal.Decimal `json:"amount" db:"amount"` // dollars moved
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"` // average fill price
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Transfer is an immutable record of a peer-to-peer money send.
type Transfer struct {
	ID         string          `json:"id" db:"id"`
	SenderID   string          `json:"sender_id" db:"sender_id"`
	ReceiverID string          `json:"receiver_id" db:"receiver_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Message    string          `json:"message,omitempty" db:"message"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
