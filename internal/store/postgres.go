package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Every Apply* operation is one transaction with SELECT ... FOR UPDATE row
// locking, so concurrent trades on the same market or balance serialize at
// the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, yes_price, no_price, pool_k, total_volume, is_locked, outcome, resolved_at, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, NULLIF($8, ''), $9, $10)`,
		m.ID, m.Question,
		m.YesPrice.String(), m.NoPrice.String(), m.PoolK.String(), m.TotalVolume.String(),
		m.IsLocked, string(m.Outcome), m.ResolvedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create market %s: %w", m.ID, err)
	}
	return nil
}

const marketColumns = `id, question,
	yes_price::TEXT, no_price::TEXT, pool_k::TEXT, total_volume::TEXT,
	is_locked, COALESCE(outcome, ''), resolved_at, created_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var yesPrice, noPrice, poolK, volume, outcome string

	err := row.Scan(&m.ID, &m.Question,
		&yesPrice, &noPrice, &poolK, &volume,
		&m.IsLocked, &outcome, &m.ResolvedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.YesPrice, _ = decimal.NewFromString(yesPrice)
	m.NoPrice, _ = decimal.NewFromString(noPrice)
	m.PoolK, _ = decimal.NewFromString(poolK)
	m.TotalVolume, _ = decimal.NewFromString(volume)
	m.Outcome = model.Outcome(outcome)
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) SetMarketLocked(ctx context.Context, id string, locked bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET is_locked = $2 WHERE id = $1 AND outcome IS NULL`, id, locked)
	if err != nil {
		return fmt.Errorf("set market %s locked: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already resolved; distinguish for the caller.
		if _, err := s.GetMarket(ctx, id); err != nil {
			return err
		}
		return ErrMarketResolved
	}
	return nil
}

// lockMarket loads a market row under FOR UPDATE inside the transaction.
func lockMarket(ctx context.Context, tx pgx.Tx, id string) (*model.Market, error) {
	m, err := scanMarket(tx.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarketNotFound
	}
	return m, err
}

// ApplyTrade commits market, position, balance, and audit record in one
// transaction. The market row lock serializes concurrent trades; the
// expected-price check turns any still-possible stale quote into
// ErrConflict instead of a silent lost update.
func (s *PostgresStore) ApplyTrade(ctx context.Context, a TradeApply) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin trade tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := lockMarket(ctx, tx, a.MarketID)
	if err != nil {
		return err
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

	var balance string
	err = tx.QueryRow(ctx,
		`SELECT balance::TEXT FROM profiles WHERE id = $1 FOR UPDATE`,
		a.UserID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("lock profile %s: %w", a.UserID, err)
	}
	bal, _ := decimal.NewFromString(balance)
	newBalance := bal.Add(a.BalanceDelta)
	if newBalance.IsNegative() {
		return ErrInsufficientBalance
	}
	if a.Position.SharesOwned.IsNegative() {
		return ErrInsufficientShares
	}

	priceColumn := "yes_price"
	if a.Outcome == model.OutcomeNo {
		priceColumn = "no_price"
	}
	_, err = tx.Exec(ctx,
		`UPDATE markets SET `+priceColumn+` = $2::NUMERIC,
		        total_volume = total_volume + $3::NUMERIC
		 WHERE id = $1`,
		a.MarketID, a.NewPrice.String(), a.VolumeDelta.String())
	if err != nil {
		return fmt.Errorf("update market %s: %w", a.MarketID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE profiles SET balance = $2::NUMERIC WHERE id = $1`,
		a.UserID, newBalance.String())
	if err != nil {
		return fmt.Errorf("update balance %s: %w", a.UserID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO positions (user_id, market_id, outcome, shares_owned, total_paid)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC)
		 ON CONFLICT (user_id, market_id, outcome)
		 DO UPDATE SET shares_owned = EXCLUDED.shares_owned, total_paid = EXCLUDED.total_paid`,
		a.Position.UserID, a.Position.MarketID, string(a.Position.Outcome),
		a.Position.SharesOwned.String(), a.Position.TotalPaid.String())
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	t := a.Trade
	_, err = tx.Exec(ctx,
		`INSERT INTO trades (id, market_id, user_id, outcome, mode, amount, shares, price, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, t.MarketID, t.UserID, string(t.Outcome), t.Mode,
		t.Amount.String(), t.Shares.String(), t.Price.String(), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	return tx.Commit(ctx)
}

// ApplyResolution pays every winning position and marks the market resolved
// in one transaction. A crash rolls the whole payout back; retried as a
// whole.
func (s *PostgresStore) ApplyResolution(ctx context.Context, marketID string, winner model.Outcome, resolvedAt time.Time) (ResolutionSummary, error) {
	var summary ResolutionSummary

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return summary, fmt.Errorf("begin resolution tx: %w", err)
	}
	defer tx.Rollback(ctx)

	m, err := lockMarket(ctx, tx, marketID)
	if err != nil {
		return summary, err
	}
	if !m.Open() {
		return summary, ErrAlreadyResolved
	}

	rows, err := tx.Query(ctx,
		`SELECT user_id, shares_owned::TEXT FROM positions
		 WHERE market_id = $1 AND outcome = $2 AND shares_owned > 0
		 ORDER BY user_id
		 FOR UPDATE`,
		marketID, string(winner))
	if err != nil {
		return summary, fmt.Errorf("load winning positions: %w", err)
	}

	type payout struct {
		userID string
		shares decimal.Decimal
	}
	var payouts []payout
	for rows.Next() {
		var p payout
		var shares string
		if err := rows.Scan(&p.userID, &shares); err != nil {
			rows.Close()
			return summary, err
		}
		p.shares, _ = decimal.NewFromString(shares)
		payouts = append(payouts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}

	for _, p := range payouts {
		// 1 unit of payout per winning share.
		_, err := tx.Exec(ctx,
			`UPDATE profiles SET balance = balance + $2::NUMERIC WHERE id = $1`,
			p.userID, p.shares.String())
		if err != nil {
			return summary, fmt.Errorf("credit payout %s: %w", p.userID, err)
		}
		summary.Winners++
		summary.TotalPayout = summary.TotalPayout.Add(p.shares)
	}

	_, err = tx.Exec(ctx,
		`UPDATE positions SET shares_owned = 0, total_paid = 0
		 WHERE market_id = $1 AND outcome = $2`,
		marketID, string(winner))
	if err != nil {
		return summary, fmt.Errorf("zero winning positions: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE markets SET outcome = $2, resolved_at = $3 WHERE id = $1`,
		marketID, string(winner), resolvedAt)
	if err != nil {
		return summary, fmt.Errorf("mark market resolved: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ResolutionSummary{}, err
	}
	return summary, nil
}

// ApplyTransfer debits and credits the two profiles in one transaction.
// Rows lock in id order so two opposing transfers cannot deadlock.
func (s *PostgresStore) ApplyTransfer(ctx context.Context, tr *model.Transfer) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback(ctx)

	first, second := tr.SenderID, tr.ReceiverID
	if second < first {
		first, second = second, first
	}
	for _, id := range []string{first, second} {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT TRUE FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrProfileNotFound
		}
		if err != nil {
			return fmt.Errorf("lock profile %s: %w", id, err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE profiles SET balance = balance - $2::NUMERIC
		 WHERE id = $1 AND balance >= $2::NUMERIC`,
		tr.SenderID, tr.Amount.String())
	if err != nil {
		return fmt.Errorf("debit sender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE profiles SET balance = balance + $2::NUMERIC WHERE id = $1`,
		tr.ReceiverID, tr.Amount.String())
	if err != nil {
		return fmt.Errorf("credit receiver: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transfers (id, sender_id, receiver_id, amount, message, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		tr.ID, tr.SenderID, tr.ReceiverID, tr.Amount.String(), tr.Message, tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetPosition(ctx context.Context, userID, marketID string, outcome model.Outcome) (*model.Position, error) {
	var shares, paid string
	err := s.pool.QueryRow(ctx,
		`SELECT shares_owned::TEXT, total_paid::TEXT FROM positions
		 WHERE user_id = $1 AND market_id = $2 AND outcome = $3`,
		userID, marketID, string(outcome)).Scan(&shares, &paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.Position{UserID: userID, MarketID: marketID, Outcome: outcome}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}

	p := model.Position{UserID: userID, MarketID: marketID, Outcome: outcome}
	p.SharesOwned, _ = decimal.NewFromString(shares)
	p.TotalPaid, _ = decimal.NewFromString(paid)
	return &p, nil
}

func (s *PostgresStore) ListUserPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, market_id, outcome, shares_owned::TEXT, total_paid::TEXT
		 FROM positions
		 WHERE user_id = $1 AND shares_owned > 0
		 ORDER BY market_id, outcome`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var outcome, shares, paid string
		if err := rows.Scan(&p.UserID, &p.MarketID, &outcome, &shares, &paid); err != nil {
			return nil, err
		}
		p.Outcome = model.Outcome(outcome)
		p.SharesOwned, _ = decimal.NewFromString(shares)
		p.TotalPaid, _ = decimal.NewFromString(paid)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) EnsureProfile(ctx context.Context, p *model.Profile) (*model.Profile, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, username, balance, role, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Username, p.Balance.String(), p.Role, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure profile %s: %w", p.ID, err)
	}
	return s.GetProfile(ctx, p.ID)
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, balance::TEXT, role, created_at FROM profiles WHERE id = $1`,
		userID).Scan(&p.ID, &p.Username, &balance, &p.Role, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	p.Balance, _ = decimal.NewFromString(balance)
	return &p, nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, balance::TEXT, role, created_at
		 FROM profiles ORDER BY balance DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		var balance string
		if err := rows.Scan(&p.ID, &p.Username, &balance, &p.Role, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Balance, _ = decimal.NewFromString(balance)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *PostgresStore) ListTradesByMarket(ctx context.Context, marketID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, user_id, outcome, mode,
		        amount::TEXT, shares::TEXT, price::TEXT, created_at
		 FROM trades WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) ListTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, user_id, outcome, mode,
		        amount::TEXT, shares::TEXT, price::TEXT, created_at
		 FROM trades WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var outcome, amount, shares, price string
		if err := rows.Scan(&t.ID, &t.MarketID, &t.UserID, &outcome, &t.Mode,
			&amount, &shares, &price, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Outcome = model.Outcome(outcome)
		t.Amount, _ = decimal.NewFromString(amount)
		t.Shares, _ = decimal.NewFromString(shares)
		t.Price, _ = decimal.NewFromString(price)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
