package amm_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/amm"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestBuyPreview_WorkedExample(t *testing.T) {
	// pool_k = 10000, yes_price = 0.50, spend $500:
	// impact = 0.05, new = 0.55, avg = 0.525, shares = 500/0.525 ≈ 952.38
	q, err := amm.BuyPreview(d(0.50), d(10000), d(500))
	if err != nil {
		t.Fatalf("BuyPreview: %v", err)
	}

	if !q.NewPrice.Equal(d(0.55)) {
		t.Errorf("new price = %s, want 0.55", q.NewPrice)
	}
	if !q.AvgPrice.Equal(d(0.525)) {
		t.Errorf("avg price = %s, want 0.525", q.AvgPrice)
	}
	if !q.Spend.Equal(d(500)) {
		t.Errorf("spend = %s, want 500", q.Spend)
	}
	wantShares := d(952.38095238)
	if q.Shares.Sub(wantShares).Abs().GreaterThan(d(0.00000001)) {
		t.Errorf("shares = %s, want ≈ %s", q.Shares, wantShares)
	}
	if !q.MaxPayout.Equal(q.Shares) {
		t.Errorf("max payout = %s, want %s (1 unit per share)", q.MaxPayout, q.Shares)
	}
}

func TestBuyPreview_PriceNeverDecreasesAndCapped(t *testing.T) {
	prices := []float64{0.01, 0.25, 0.50, 0.75, 0.98}
	amounts := []float64{1, 100, 5000, 1e6}

	for _, p := range prices {
		for _, a := range amounts {
			q, err := amm.BuyPreview(d(p), d(10000), d(a))
			if err != nil {
				t.Fatalf("BuyPreview(%v, %v): %v", p, a, err)
			}
			if q.NewPrice.LessThan(d(p)) {
				t.Errorf("buy at %v for %v decreased price to %s", p, a, q.NewPrice)
			}
			if q.NewPrice.GreaterThan(amm.MaxPrice) {
				t.Errorf("buy at %v for %v exceeded cap: %s", p, a, q.NewPrice)
			}
		}
	}
}

func TestBuyPreview_CapChargesOnlyEffectiveSpend(t *testing.T) {
	// $10000 against k=10000 would push 0.50 → 1.50; cap at 0.99 means the
	// pool absorbs only (0.99-0.50)*10000 = $4900.
	q, err := amm.BuyPreview(d(0.50), d(10000), d(10000))
	if err != nil {
		t.Fatalf("BuyPreview: %v", err)
	}
	if !q.NewPrice.Equal(d(0.99)) {
		t.Errorf("new price = %s, want 0.99", q.NewPrice)
	}
	if !q.Spend.Equal(d(4900)) {
		t.Errorf("spend = %s, want 4900", q.Spend)
	}
}

func TestBuyPreview_SpendNeverExceedsAmount(t *testing.T) {
	// k that doesn't divide the amount forces a repeating price impact;
	// the quoted spend must still stay within the requested amount.
	q, err := amm.BuyPreview(d(0.50), d(6), d(1))
	if err != nil {
		t.Fatalf("BuyPreview: %v", err)
	}
	if !q.NewPrice.Equal(d(0.66666666)) {
		t.Errorf("new price = %s, want 0.66666666", q.NewPrice)
	}
	if q.Spend.GreaterThan(d(1)) {
		t.Errorf("spend = %s exceeds requested amount 1", q.Spend)
	}

	ks := []float64{3, 6, 7, 9, 11, 13, 10000}
	amounts := []float64{1, 2.5, 99.99, 1000}
	for _, k := range ks {
		for _, a := range amounts {
			q, err := amm.BuyPreview(d(0.50), d(k), d(a))
			if err != nil {
				t.Fatalf("BuyPreview(k=%v, a=%v): %v", k, a, err)
			}
			if q.Spend.GreaterThan(d(a)) {
				t.Errorf("k=%v amount=%v: spend %s exceeds amount", k, a, q.Spend)
			}
		}
	}
}

func TestBuyPreview_Validation(t *testing.T) {
	if _, err := amm.BuyPreview(d(0.5), d(10000), decimal.Zero); !errors.Is(err, amm.ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := amm.BuyPreview(d(0.5), d(10000), d(-5)); !errors.Is(err, amm.ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v, want ErrInvalidAmount", err)
	}
	if _, err := amm.BuyPreview(d(0.5), decimal.Zero, d(100)); !errors.Is(err, amm.ErrInvalidPoolK) {
		t.Errorf("zero pool k: err = %v, want ErrInvalidPoolK", err)
	}
}

func TestSellPreview_PriceNeverIncreasesAndFloored(t *testing.T) {
	prices := []float64{0.02, 0.25, 0.50, 0.75, 0.99}
	shareCounts := []float64{1, 100, 5000, 1e6}

	for _, p := range prices {
		for _, s := range shareCounts {
			q, err := amm.SellPreview(d(p), d(10000), d(s))
			if err != nil {
				t.Fatalf("SellPreview(%v, %v): %v", p, s, err)
			}
			if q.NewPrice.GreaterThan(d(p)) {
				t.Errorf("sell at %v of %v increased price to %s", p, s, q.NewPrice)
			}
			if q.NewPrice.LessThan(amm.MinPrice) {
				t.Errorf("sell at %v of %v broke floor: %s", p, s, q.NewPrice)
			}
		}
	}
}

func TestSellPreview_FloorClampRederivesDollars(t *testing.T) {
	// A huge sell clamps at the floor and the payout must be exactly
	// (price - 0.01) * k, consistent with the clamped move.
	q, err := amm.SellPreview(d(0.60), d(10000), d(1e9))
	if err != nil {
		t.Fatalf("SellPreview: %v", err)
	}
	if !q.NewPrice.Equal(d(0.01)) {
		t.Errorf("new price = %s, want 0.01", q.NewPrice)
	}
	if !q.Dollars.Equal(d(5900)) {
		t.Errorf("dollars = %s, want (0.60-0.01)*10000 = 5900", q.Dollars)
	}
}

func TestSellPreview_Validation(t *testing.T) {
	if _, err := amm.SellPreview(d(0.5), d(10000), decimal.Zero); !errors.Is(err, amm.ErrInvalidShares) {
		t.Errorf("zero shares: err = %v, want ErrInvalidShares", err)
	}
	if _, err := amm.SellPreview(d(0.5), d(-1), d(10)); !errors.Is(err, amm.ErrInvalidPoolK) {
		t.Errorf("negative pool k: err = %v, want ErrInvalidPoolK", err)
	}
}

func TestRoundTrip_NoFreeMoney(t *testing.T) {
	// Buying then immediately selling everything back must never return
	// more than was spent; the spread is the house edge.
	amounts := []float64{10, 500, 2500, 4800}

	for _, a := range amounts {
		buy, err := amm.BuyPreview(d(0.50), d(10000), d(a))
		if err != nil {
			t.Fatalf("BuyPreview(%v): %v", a, err)
		}
		sell, err := amm.SellPreview(buy.NewPrice, d(10000), buy.Shares)
		if err != nil {
			t.Fatalf("SellPreview(%v): %v", a, err)
		}
		if sell.Dollars.GreaterThan(buy.Spend) {
			t.Errorf("round-trip of $%v returned %s > spend %s", a, sell.Dollars, buy.Spend)
		}
	}
}

func TestClampPrice(t *testing.T) {
	if got := amm.ClampPrice(d(0.001)); !got.Equal(amm.MinPrice) {
		t.Errorf("ClampPrice(0.001) = %s, want %s", got, amm.MinPrice)
	}
	if got := amm.ClampPrice(d(1.5)); !got.Equal(amm.MaxPrice) {
		t.Errorf("ClampPrice(1.5) = %s, want %s", got, amm.MaxPrice)
	}
	if got := amm.ClampPrice(d(0.42)); !got.Equal(d(0.42)) {
		t.Errorf("ClampPrice(0.42) = %s, want 0.42", got)
	}
}
