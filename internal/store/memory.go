package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence). A single
// mutex makes every Apply* operation atomic and serializable.
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]*model.Market
	positions map[string]*model.Position // key: userID|marketID|outcome
	profiles  map[string]*model.Profile
	trades    []model.Trade
	transfers []model.Transfer
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]*model.Market),
		positions: make(map[string]*model.Position),
		profiles:  make(map[string]*model.Profile),
	}
}

func posKey(userID, marketID string, outcome model.Outcome) string {
	return userID + "|" + marketID + "|" + string(outcome)
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return ErrMarketExists
	}

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) SetMarketLocked(_ context.Context, id string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrMarketNotFound
	}
	if !m.Open() {
		return ErrMarketResolved
	}
	m.IsLocked = locked
	return nil
}

// ApplyTrade validates and commits the full trade effect under one lock.
// Validation happens before any field is written, so a failure leaves the
// pre-state intact.
func (s *MemoryStore) ApplyTrade(_ context.Context, a TradeApply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[a.MarketID]
	if !ok {
		return ErrMarketNotFound
	}
	if !m.Open() {
		return ErrMarketResolved
	}
	if m.IsLocked {
		return ErrMarketLocked
	}
	if !m.OutcomePrice(a.Outcome).Equal(a.ExpectedPrice) {
		return ErrConflict
	}

	p, ok := s.profiles[a.UserID]
	if !ok {
		return ErrProfileNotFound
	}
	newBalance := p.Balance.Add(a.BalanceDelta)
	if newBalance.IsNegative() {
		return ErrInsufficientBalance
	}
	if a.Position.SharesOwned.IsNegative() {
		return ErrInsufficientShares
	}

	m.SetOutcomePrice(a.Outcome, a.NewPrice)
	m.TotalVolume = m.TotalVolume.Add(a.VolumeDelta)
	p.Balance = newBalance

	pos := a.Position
	s.positions[posKey(pos.UserID, pos.MarketID, pos.Outcome)] = &pos

	s.trades = append(s.trades, *a.Trade)
	return nil
}

// ApplyResolution pays winners and flips the market terminal under one lock.
func (s *MemoryStore) ApplyResolution(_ context.Context, marketID string, winner model.Outcome, resolvedAt time.Time) (ResolutionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary ResolutionSummary

	m, ok := s.markets[marketID]
	if !ok {
		return summary, ErrMarketNotFound
	}
	if !m.Open() {
		return summary, ErrAlreadyResolved
	}

	for _, pos := range s.positions {
		if pos.MarketID != marketID || pos.Outcome != winner || !pos.SharesOwned.IsPositive() {
			continue
		}
		p, ok := s.profiles[pos.UserID]
		if !ok {
			continue // orphaned position, nothing to credit
		}
		p.Balance = p.Balance.Add(pos.SharesOwned) // 1 unit per winning share
		summary.Winners++
		summary.TotalPayout = summary.TotalPayout.Add(pos.SharesOwned)
		pos.SharesOwned = decimal.Zero
		pos.TotalPaid = decimal.Zero
	}

	m.Outcome = winner
	ts := resolvedAt
	m.ResolvedAt = &ts
	return summary, nil
}

// ApplyTransfer debits the sender and credits the receiver under one lock.
func (s *MemoryStore) ApplyTransfer(_ context.Context, tr *model.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.profiles[tr.SenderID]
	if !ok {
		return ErrProfileNotFound
	}
	receiver, ok := s.profiles[tr.ReceiverID]
	if !ok {
		return ErrProfileNotFound
	}
	newBalance := sender.Balance.Sub(tr.Amount)
	if newBalance.IsNegative() {
		return ErrInsufficientBalance
	}

	sender.Balance = newBalance
	receiver.Balance = receiver.Balance.Add(tr.Amount)
	s.transfers = append(s.transfers, *tr)
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if pos, ok := s.positions[posKey(userID, marketID, outcome)]; ok {
		cp := *pos
		return &cp, nil
	}
	// Never bought into: zero-valued position.
	return &model.Position{
		UserID:   userID,
		MarketID: marketID,
		Outcome:  outcome,
	}, nil
}

func (s *MemoryStore) ListUserPositions(_ context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Position
	for _, pos := range s.positions {
		if pos.UserID == userID && pos.SharesOwned.IsPositive() {
			result = append(result, *pos)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MarketID != result[j].MarketID {
			return result[i].MarketID < result[j].MarketID
		}
		return result[i].Outcome < result[j].Outcome
	})
	return result, nil
}

func (s *MemoryStore) EnsureProfile(_ context.Context, p *model.Profile) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.profiles[p.ID]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *p
	s.profiles[p.ID] = &cp
	out := cp
	return &out, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, userID string) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]model.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].Balance.Equal(profiles[j].Balance) {
			return profiles[i].Balance.GreaterThan(profiles[j].Balance)
		}
		return profiles[i].ID < profiles[j].ID
	})
	if limit > 0 && len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}

func (s *MemoryStore) ListTradesByMarket(_ context.Context, marketID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTradesByUser(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}
