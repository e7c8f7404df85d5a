// Package engine orchestrates the party economy: trade execution against
// the AMM, market resolution payouts, peer money transfers, and the HTTP
// surface the mobile client talks to.
//
// All monetary values use shopspring/decimal — never float64 for money.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/amm"
	"github.com/kunalshi/party-engine/internal/metrics"
	"github.com/kunalshi/party-engine/internal/model"
	"github.com/kunalshi/party-engine/internal/store"
)

// Service executes trades, resolutions, and transfers against the store.
// A per-market lock serializes trade execution within this instance; the
// store's row locking and expected-price check guard the same invariants
// at the database, so a second instance degrades to retries rather than
// lost updates.
type Service struct {
	store           store.Store
	locks           *lockTable
	lockTimeout     time.Duration
	startingBalance decimal.Decimal
	defaultPoolK    decimal.Decimal
	hub             *Hub // optional WebSocket hub for real-time broadcasts
}

// Options configures a Service. Zero values fall back to sane defaults.
type Options struct {
	LockTimeout     time.Duration   // per-market lock acquire bound
	StartingBalance decimal.Decimal // play-money grant on profile bootstrap
	DefaultPoolK    decimal.Decimal // liquidity constant when admin passes none
}

// NewService creates a new engine service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *Hub, opts Options) *Service {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.StartingBalance.LessThanOrEqual(decimal.Zero) {
		opts.StartingBalance = decimal.NewFromInt(1000)
	}
	if opts.DefaultPoolK.LessThanOrEqual(decimal.Zero) {
		opts.DefaultPoolK = decimal.NewFromInt(10000)
	}
	return &Service{
		store:           st,
		locks:           newLockTable(),
		lockTimeout:     opts.LockTimeout,
		startingBalance: opts.StartingBalance,
		defaultPoolK:    opts.DefaultPoolK,
		hub:             hub,
	}
}

// BuyResult is returned from ExecuteBuy.
type BuyResult struct {
	Shares   decimal.Decimal `json:"shares"`
	AvgPrice decimal.Decimal `json:"avg_price"`
	Spend    decimal.Decimal `json:"spend"`
	NewPrice decimal.Decimal `json:"new_price"`
}

// SellResult is returned from ExecuteSell.
type SellResult struct {
	Dollars    decimal.Decimal `json:"dollars"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	SharesSold decimal.Decimal `json:"shares_sold"`
	NewPrice   decimal.Decimal `json:"new_price"`
}

// ExecuteBuy spends up to `amount` dollars on `outcome` shares. The debit,
// share credit, price move, volume bump, and audit record commit as one
// unit. Near the price ceiling the pool absorbs less than `amount`; only
// the absorbed spend is charged.
func (s *Service) ExecuteBuy(ctx context.Context, userID, marketID string, outcome model.Outcome, amount decimal.Decimal) (*BuyResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, amm.ErrInvalidAmount
	}

	release, err := s.locks.acquire(ctx, marketID, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.Open() {
		return nil, store.ErrMarketResolved
	}
	if market.IsLocked {
		return nil, store.ErrMarketLocked
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(profile.Balance) {
		return nil, store.ErrInsufficientBalance
	}

	oldPrice := market.OutcomePrice(outcome)
	quote, err := amm.BuyPreview(oldPrice, market.PoolK, amount)
	if err != nil {
		return nil, err
	}

	position, err := s.store.GetPosition(ctx, userID, marketID, outcome)
	if err != nil {
		return nil, err
	}
	position.SharesOwned = position.SharesOwned.Add(quote.Shares)
	position.TotalPaid = position.TotalPaid.Add(quote.Spend)

	trade := &model.Trade{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		UserID:    userID,
		Outcome:   outcome,
		Mode:      model.ModeBuy,
		Amount:    quote.Spend,
		Shares:    quote.Shares,
		Price:     quote.AvgPrice,
		CreatedAt: time.Now().UTC(),
	}

	err = s.store.ApplyTrade(ctx, store.TradeApply{
		MarketID:      marketID,
		Outcome:       outcome,
		ExpectedPrice: oldPrice,
		NewPrice:      quote.NewPrice,
		VolumeDelta:   quote.Spend,
		UserID:        userID,
		BalanceDelta:  quote.Spend.Neg(),
		Position:      *position,
		Trade:         trade,
	})
	if err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(model.ModeBuy, string(outcome)).Inc()
	metrics.MarketVolume.WithLabelValues(marketID, model.ModeBuy).Add(quote.Spend.InexactFloat64())

	slog.Info("buy executed",
		"trade_id", trade.ID,
		"user", userID,
		"market", marketID,
		"outcome", outcome,
		"spend", quote.Spend.String(),
		"shares", quote.Shares.String(),
		"avg_price", quote.AvgPrice.String(),
		"new_price", quote.NewPrice.String(),
	)

	market.SetOutcomePrice(outcome, quote.NewPrice)
	market.TotalVolume = market.TotalVolume.Add(quote.Spend)
	s.broadcastTrade(market, trade, profile.Balance.Sub(quote.Spend))

	return &BuyResult{
		Shares:   quote.Shares,
		AvgPrice: quote.AvgPrice,
		Spend:    quote.Spend,
		NewPrice: quote.NewPrice,
	}, nil
}

// ExecuteSell sells `shares` of an owned position back to the pool. The
// share debit, balance credit, price move, and audit record commit as one
// unit. Cost basis reduces proportionally (average cost); a fully closed
// position carries no dangling basis.
func (s *Service) ExecuteSell(ctx context.Context, userID, marketID string, outcome model.Outcome, shares decimal.Decimal) (*SellResult, error) {
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, amm.ErrInvalidShares
	}

	release, err := s.locks.acquire(ctx, marketID, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	market, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if !market.Open() {
		return nil, store.ErrMarketResolved
	}
	if market.IsLocked {
		return nil, store.ErrMarketLocked
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	position, err := s.store.GetPosition(ctx, userID, marketID, outcome)
	if err != nil {
		return nil, err
	}
	if shares.GreaterThan(position.SharesOwned) {
		return nil, store.ErrInsufficientShares
	}

	currentPrice := market.OutcomePrice(outcome)
	quote, err := amm.SellPreview(currentPrice, market.PoolK, shares)
	if err != nil {
		return nil, err
	}

	// Average-cost reduction: total_paid shrinks by the sold fraction.
	paidReduction := position.TotalPaid.Mul(shares).Div(position.SharesOwned)
	position.SharesOwned = position.SharesOwned.Sub(shares)
	position.TotalPaid = position.TotalPaid.Sub(paidReduction)
	if position.SharesOwned.IsZero() {
		position.TotalPaid = decimal.Zero
	}

	trade := &model.Trade{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		UserID:    userID,
		Outcome:   outcome,
		Mode:      model.ModeSell,
		Amount:    quote.Dollars,
		Shares:    shares,
		Price:     quote.AvgPrice,
		CreatedAt: time.Now().UTC(),
	}

	err = s.store.ApplyTrade(ctx, store.TradeApply{
		MarketID:      marketID,
		Outcome:       outcome,
		ExpectedPrice: currentPrice,
		NewPrice:      quote.NewPrice,
		VolumeDelta:   decimal.Zero, // total_volume counts buy inflow only
		UserID:        userID,
		BalanceDelta:  quote.Dollars,
		Position:      *position,
		Trade:         trade,
	})
	if err != nil {
		return nil, err
	}

	metrics.TradesTotal.WithLabelValues(model.ModeSell, string(outcome)).Inc()
	metrics.MarketVolume.WithLabelValues(marketID, model.ModeSell).Add(quote.Dollars.InexactFloat64())

	slog.Info("sell executed",
		"trade_id", trade.ID,
		"user", userID,
		"market", marketID,
		"outcome", outcome,
		"shares", shares.String(),
		"dollars", quote.Dollars.String(),
		"avg_price", quote.AvgPrice.String(),
		"new_price", quote.NewPrice.String(),
	)

	market.SetOutcomePrice(outcome, quote.NewPrice)
	s.broadcastTrade(market, trade, profile.Balance.Add(quote.Dollars))

	return &SellResult{
		Dollars:    quote.Dollars,
		AvgPrice:   quote.AvgPrice,
		SharesSold: shares,
		NewPrice:   quote.NewPrice,
	}, nil
}

// Resolve declares the winning outcome, pays 1 unit per winning share to
// every holder, and makes the market terminal. Mutually exclusive with
// in-flight trades on the same market via the market lock; a second call
// fails with ErrAlreadyResolved and pays nothing.
func (s *Service) Resolve(ctx context.Context, marketID string, winner model.Outcome) (*store.ResolutionSummary, error) {
	release, err := s.locks.acquire(ctx, marketID, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	summary, err := s.store.ApplyResolution(ctx, marketID, winner, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	metrics.ResolutionsTotal.WithLabelValues(string(winner)).Inc()
	metrics.ResolutionPayout.Add(summary.TotalPayout.InexactFloat64())
	metrics.ActiveMarkets.Dec()

	slog.Info("market resolved",
		"market", marketID,
		"winner", winner,
		"winners_paid", summary.Winners,
		"total_payout", summary.TotalPayout.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:        "market_resolved",
			MarketID:    marketID,
			Outcome:     string(winner),
			Winners:     summary.Winners,
			TotalPayout: summary.TotalPayout.String(),
		})
	}
	return &summary, nil
}

// Transfer sends play money from one profile to another.
func (s *Service) Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, message string) (*model.Transfer, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidTransferAmount
	}
	if senderID == receiverID {
		return nil, ErrSelfTransfer
	}

	tr := &model.Transfer{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Amount:     amount,
		Message:    message,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.ApplyTransfer(ctx, tr); err != nil {
		return nil, err
	}

	metrics.TransfersTotal.Inc()

	slog.Info("money sent",
		"transfer_id", tr.ID,
		"sender", senderID,
		"receiver", receiverID,
		"amount", amount.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:     "transfer_sent",
			UserID:   receiverID,
			SenderID: senderID,
			Amount:   amount.String(),
		})
	}
	return tr, nil
}

// CreateMarket opens a new market. Prices default to 0.50/0.50 and are
// clamped into the tradable band; pool_k defaults when unset and is
// immutable afterward.
func (s *Service) CreateMarket(ctx context.Context, question string, poolK, yesPrice, noPrice decimal.Decimal) (*model.Market, error) {
	if poolK.LessThanOrEqual(decimal.Zero) {
		poolK = s.defaultPoolK
	}
	half := decimal.NewFromFloat(0.5)
	if yesPrice.LessThanOrEqual(decimal.Zero) {
		yesPrice = half
	}
	if noPrice.LessThanOrEqual(decimal.Zero) {
		noPrice = half
	}

	market := &model.Market{
		ID:          uuid.New().String(),
		Question:    question,
		YesPrice:    amm.ClampPrice(yesPrice),
		NoPrice:     amm.ClampPrice(noPrice),
		PoolK:       poolK,
		TotalVolume: decimal.Zero,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateMarket(ctx, market); err != nil {
		return nil, err
	}

	metrics.ActiveMarkets.Inc()

	slog.Info("market created",
		"id", market.ID,
		"question", question,
		"pool_k", poolK.String(),
	)
	return market, nil
}

// SetMarketLocked freezes or unfreezes trading on an open market.
func (s *Service) SetMarketLocked(ctx context.Context, marketID string, locked bool) error {
	release, err := s.locks.acquire(ctx, marketID, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	if err := s.store.SetMarketLocked(ctx, marketID, locked); err != nil {
		return err
	}
	slog.Info("market lock changed", "market", marketID, "locked", locked)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:     "market_lock_changed",
			MarketID: marketID,
			Locked:   &locked,
		})
	}
	return nil
}

// EnsureProfile bootstraps a profile with the starting balance, or returns
// the existing one. Idempotent.
func (s *Service) EnsureProfile(ctx context.Context, userID, username string) (*model.Profile, error) {
	return s.store.EnsureProfile(ctx, &model.Profile{
		ID:        userID,
		Username:  username,
		Balance:   s.startingBalance,
		Role:      "guest",
		CreatedAt: time.Now().UTC(),
	})
}

// broadcastTrade publishes the post-commit market, trade, and balance
// state for observers (HUD, feed, leaderboard).
func (s *Service) broadcastTrade(market *model.Market, trade *model.Trade, newBalance decimal.Decimal) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(Event{
		Type:        "trade_executed",
		MarketID:    market.ID,
		UserID:      trade.UserID,
		Outcome:     string(trade.Outcome),
		Mode:        trade.Mode,
		Amount:      trade.Amount.String(),
		Shares:      trade.Shares.String(),
		YesPrice:    market.YesPrice.String(),
		NoPrice:     market.NoPrice.String(),
		TotalVolume: market.TotalVolume.String(),
	})
	s.hub.Broadcast(Event{
		Type:    "balance_updated",
		UserID:  trade.UserID,
		Balance: newBalance.String(),
	})
}
