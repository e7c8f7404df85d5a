// Package store defines the persistence interface for the party engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Unlike a plain CRUD layer, every state-changing trade path is a single
// Apply* operation: market, position, balance, and audit record commit
// together or not at all. No caller can observe a half-applied trade.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/model"
)

// TradeApply is the full effect of one executed buy or sell. The engine
// computes it from a market snapshot; the store commits it atomically,
// failing with ErrConflict if the market's pool price no longer matches
// ExpectedPrice.
type TradeApply struct {
	MarketID      string
	Outcome       model.Outcome
	ExpectedPrice decimal.Decimal // pool price the quote was computed against
	NewPrice      decimal.Decimal // post-trade pool price
	VolumeDelta   decimal.Decimal // buy-side dollars; zero for sells

	UserID       string
	BalanceDelta decimal.Decimal // negative = debit (buy), positive = credit (sell)

	Position model.Position // post-trade position row (absolute values)

	Trade *model.Trade // immutable audit record
}

// ResolutionSummary reports what a market resolution paid out.
type ResolutionSummary struct {
	Winners     int             `json:"winners"`
	TotalPayout decimal.Decimal `json:"total_payout"`
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets, newest first.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// SetMarketLocked toggles the admin trading freeze.
	SetMarketLocked(ctx context.Context, id string, locked bool) error

	// --- Atomic mutations ---

	// ApplyTrade commits one buy or sell: market price/volume, position,
	// balance, and trade record together.
	ApplyTrade(ctx context.Context, a TradeApply) error

	// ApplyResolution pays every winning position and flips the market
	// terminal in one transaction.
	ApplyResolution(ctx context.Context, marketID string, winner model.Outcome, resolvedAt time.Time) (ResolutionSummary, error)

	// ApplyTransfer moves money between two profiles and records it.
	ApplyTransfer(ctx context.Context, tr *model.Transfer) error

	// --- Positions ---

	// GetPosition returns the position for (user, market, outcome). A
	// position that was never bought into is returned zero-valued, not
	// as an error.
	GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error)

	// ListUserPositions returns all of a user's positions with shares.
	ListUserPositions(ctx context.Context, userID string) ([]model.Position, error)

	// --- Profiles ---

	// EnsureProfile creates the profile if absent and returns the stored
	// row either way.
	EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error)

	// GetProfile retrieves a profile by user id.
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)

	// Leaderboard returns profiles ordered by balance, highest first.
	Leaderboard(ctx context.Context, limit int) ([]model.Profile, error)

	// --- Immutable audit records ---

	// ListTradesByMarket returns all trades for a market, oldest first.
	ListTradesByMarket(ctx context.Context, marketID string) ([]model.Trade, error)

	// ListTradesByUser returns all trades for a user, oldest first.
	ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error)
}
