package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/model"
	"github.com/kunalshi/party-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seedStore(t *testing.T) (*store.MemoryStore, context.Context) {
	t.Helper()
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateMarket(ctx, &model.Market{
		ID:        "m1",
		Question:  "test market",
		YesPrice:  d(0.5),
		NoPrice:   d(0.5),
		PoolK:     d(10000),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create market: %v", err)
	}
	if _, err := ms.EnsureProfile(ctx, &model.Profile{
		ID: "alice", Username: "alice", Balance: d(1000), Role: "guest", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	return ms, ctx
}

func buyApply(userID string, expected, newPrice, spend, shares decimal.Decimal) store.TradeApply {
	return store.TradeApply{
		MarketID:      "m1",
		Outcome:       model.OutcomeYes,
		ExpectedPrice: expected,
		NewPrice:      newPrice,
		VolumeDelta:   spend,
		UserID:        userID,
		BalanceDelta:  spend.Neg(),
		Position: model.Position{
			UserID: userID, MarketID: "m1", Outcome: model.OutcomeYes,
			SharesOwned: shares, TotalPaid: spend,
		},
		Trade: &model.Trade{
			ID: "t-" + userID, MarketID: "m1", UserID: userID,
			Outcome: model.OutcomeYes, Mode: model.ModeBuy,
			Amount: spend, Shares: shares, CreatedAt: time.Now().UTC(),
		},
	}
}

func TestApplyTrade_StalePriceConflict(t *testing.T) {
	ms, ctx := seedStore(t)

	if err := ms.ApplyTrade(ctx, buyApply("alice", d(0.5), d(0.55), d(500), d(950))); err != nil {
		t.Fatalf("first trade: %v", err)
	}

	// A second writer quoted against 0.50 after the price moved to 0.55.
	err := ms.ApplyTrade(ctx, buyApply("alice", d(0.5), d(0.55), d(100), d(190)))
	if err != store.ErrConflict {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	// Conflict must be a clean rejection: balance reflects only the first trade.
	p, _ := ms.GetProfile(ctx, "alice")
	if !p.Balance.Equal(d(500)) {
		t.Errorf("balance = %s, want 500", p.Balance)
	}
	m, _ := ms.GetMarket(ctx, "m1")
	if !m.TotalVolume.Equal(d(500)) {
		t.Errorf("volume = %s, want 500", m.TotalVolume)
	}
}

func TestApplyTrade_OverdraftRejectedAtomically(t *testing.T) {
	ms, ctx := seedStore(t)

	err := ms.ApplyTrade(ctx, buyApply("alice", d(0.5), d(0.65), d(1500), d(2600)))
	if err != store.ErrInsufficientBalance {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	m, _ := ms.GetMarket(ctx, "m1")
	if !m.YesPrice.Equal(d(0.5)) {
		t.Errorf("price moved on rejected trade: %s", m.YesPrice)
	}
	pos, _ := ms.GetPosition(ctx, "alice", "m1", model.OutcomeYes)
	if !pos.SharesOwned.IsZero() {
		t.Errorf("shares credited on rejected trade: %s", pos.SharesOwned)
	}
}

func TestGetPosition_ZeroValuedWhenAbsent(t *testing.T) {
	ms, ctx := seedStore(t)

	pos, err := ms.GetPosition(ctx, "alice", "m1", model.OutcomeNo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pos.SharesOwned.IsZero() || !pos.TotalPaid.IsZero() {
		t.Errorf("expected zero-valued position, got shares=%s paid=%s",
			pos.SharesOwned, pos.TotalPaid)
	}
	if pos.UserID != "alice" || pos.MarketID != "m1" || pos.Outcome != model.OutcomeNo {
		t.Errorf("position keys not echoed back: %+v", pos)
	}
}

func TestApplyResolution_CreditsOnlyWinningOutcome(t *testing.T) {
	ms, ctx := seedStore(t)
	if _, err := ms.EnsureProfile(ctx, &model.Profile{
		ID: "bob", Username: "bob", Balance: d(1000), Role: "guest", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}

	if err := ms.ApplyTrade(ctx, buyApply("alice", d(0.5), d(0.55), d(500), d(950))); err != nil {
		t.Fatalf("alice buy: %v", err)
	}
	// Bob holds the other side.
	bob := buyApply("bob", d(0.5), d(0.52), d(200), d(390))
	bob.Outcome = model.OutcomeNo
	bob.Position.Outcome = model.OutcomeNo
	bob.Trade.Outcome = model.OutcomeNo
	if err := ms.ApplyTrade(ctx, bob); err != nil {
		t.Fatalf("bob buy: %v", err)
	}

	summary, err := ms.ApplyResolution(ctx, "m1", model.OutcomeYes, time.Now().UTC())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if summary.Winners != 1 {
		t.Errorf("winners = %d, want 1", summary.Winners)
	}
	if !summary.TotalPayout.Equal(d(950)) {
		t.Errorf("payout = %s, want 950", summary.TotalPayout)
	}

	alice, _ := ms.GetProfile(ctx, "alice")
	if !alice.Balance.Equal(d(1450)) { // 1000 - 500 + 950
		t.Errorf("alice balance = %s, want 1450", alice.Balance)
	}
	bobP, _ := ms.GetProfile(ctx, "bob")
	if !bobP.Balance.Equal(d(800)) {
		t.Errorf("bob balance = %s, want 800", bobP.Balance)
	}

	// Winning position zeroed; losing position untouched.
	aPos, _ := ms.GetPosition(ctx, "alice", "m1", model.OutcomeYes)
	if !aPos.SharesOwned.IsZero() {
		t.Errorf("winning shares not zeroed: %s", aPos.SharesOwned)
	}
	bPos, _ := ms.GetPosition(ctx, "bob", "m1", model.OutcomeNo)
	if !bPos.SharesOwned.Equal(d(390)) {
		t.Errorf("losing shares changed: %s", bPos.SharesOwned)
	}
}

func TestApplyResolution_SecondCallRejected(t *testing.T) {
	ms, ctx := seedStore(t)

	if _, err := ms.ApplyResolution(ctx, "m1", model.OutcomeYes, time.Now().UTC()); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := ms.ApplyResolution(ctx, "m1", model.OutcomeNo, time.Now().UTC()); err != store.ErrAlreadyResolved {
		t.Errorf("got %v, want ErrAlreadyResolved", err)
	}

	m, _ := ms.GetMarket(ctx, "m1")
	if m.Outcome != model.OutcomeYes {
		t.Errorf("outcome overwritten by second resolve: %s", m.Outcome)
	}
}

func TestApplyTrade_ResolvedMarketRejected(t *testing.T) {
	ms, ctx := seedStore(t)

	if _, err := ms.ApplyResolution(ctx, "m1", model.OutcomeYes, time.Now().UTC()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ms.ApplyTrade(ctx, buyApply("alice", d(0.5), d(0.55), d(100), d(190))); err != store.ErrMarketResolved {
		t.Errorf("got %v, want ErrMarketResolved", err)
	}
}

func TestSetMarketLocked_ResolvedMarketRejected(t *testing.T) {
	ms, ctx := seedStore(t)

	if _, err := ms.ApplyResolution(ctx, "m1", model.OutcomeYes, time.Now().UTC()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := ms.SetMarketLocked(ctx, "m1", true); err != store.ErrMarketResolved {
		t.Errorf("got %v, want ErrMarketResolved", err)
	}
}

func TestApplyTransfer_Atomic(t *testing.T) {
	ms, ctx := seedStore(t)
	if _, err := ms.EnsureProfile(ctx, &model.Profile{
		ID: "bob", Username: "bob", Balance: d(100), Role: "guest", CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}

	err := ms.ApplyTransfer(ctx, &model.Transfer{
		ID: "tr1", SenderID: "bob", ReceiverID: "alice", Amount: d(500), CreatedAt: time.Now().UTC(),
	})
	if err != store.ErrInsufficientBalance {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	alice, _ := ms.GetProfile(ctx, "alice")
	bob, _ := ms.GetProfile(ctx, "bob")
	if !alice.Balance.Equal(d(1000)) || !bob.Balance.Equal(d(100)) {
		t.Errorf("balances moved on failed transfer: alice=%s bob=%s",
			alice.Balance, bob.Balance)
	}
}

func TestListUserPositions_SkipsClosed(t *testing.T) {
	ms, ctx := seedStore(t)

	if err := ms.ApplyTrade(ctx, buyApply("alice", d(0.5), d(0.55), d(500), d(950))); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := ms.ApplyResolution(ctx, "m1", model.OutcomeYes, time.Now().UTC()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	positions, err := ms.ListUserPositions(ctx, "alice")
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("zeroed positions still listed: %+v", positions)
	}
}
