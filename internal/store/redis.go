package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kunalshi/party-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Hot reads here are the
// market card, the wallet HUD, and a user's open positions.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) SetMarketLocked(ctx context.Context, id string, locked bool) error {
	if err := s.primary.SetMarketLocked(ctx, id, locked); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) ApplyTrade(ctx context.Context, a TradeApply) error {
	if err := s.primary.ApplyTrade(ctx, a); err != nil {
		return err
	}
	// Invalidate everything the trade touched; next read re-populates.
	s.rdb.Del(ctx, marketKey(a.MarketID), positionsKey(a.UserID), profileKey(a.UserID))
	return nil
}

func (s *CachedStore) ApplyResolution(ctx context.Context, marketID string, winner model.Outcome, resolvedAt time.Time) (ResolutionSummary, error) {
	summary, err := s.primary.ApplyResolution(ctx, marketID, winner, resolvedAt)
	if err != nil {
		return summary, err
	}
	// Winner balances and positions changed for an unknown set of users;
	// the short TTL bounds their staleness.
	s.rdb.Del(ctx, marketKey(marketID))
	return summary, nil
}

func (s *CachedStore) ApplyTransfer(ctx context.Context, tr *model.Transfer) error {
	if err := s.primary.ApplyTransfer(ctx, tr); err != nil {
		return err
	}
	s.rdb.Del(ctx, profileKey(tr.SenderID), profileKey(tr.ReceiverID))
	return nil
}

func (s *CachedStore) EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	stored, err := s.primary.EnsureProfile(ctx, p)
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, stored)
	return stored, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	data, err := s.rdb.Get(ctx, profileKey(userID)).Bytes()
	if err == nil {
		var p model.Profile
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheProfile(ctx, p)
	return p, nil
}

func (s *CachedStore) ListUserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListUserPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, marketID, outcome)
}

func (s *CachedStore) Leaderboard(ctx context.Context, limit int) ([]model.Profile, error) {
	return s.primary.Leaderboard(ctx, limit)
}

func (s *CachedStore) ListTradesByMarket(ctx context.Context, marketID string) ([]model.Trade, error) {
	return s.primary.ListTradesByMarket(ctx, marketID)
}

func (s *CachedStore) ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.primary.ListTradesByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func (s *CachedStore) cacheProfile(ctx context.Context, p *model.Profile) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, profileKey(p.ID), data, s.ttl)
	}
}

func marketKey(id string) string     { return fmt.Sprintf("market:%s", id) }
func profileKey(uid string) string   { return fmt.Sprintf("profile:%s", uid) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
