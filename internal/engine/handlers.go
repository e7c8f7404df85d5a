package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kunalshi/party-engine/internal/amm"
	"github.com/kunalshi/party-engine/internal/model"
	"github.com/kunalshi/party-engine/internal/store"
)

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for POST /markets (admin).
type CreateMarketRequest struct {
	Question string          `json:"question"`
	PoolK    decimal.Decimal `json:"pool_k"`    // 0 → default
	YesPrice decimal.Decimal `json:"yes_price"` // 0 → 0.50
	NoPrice  decimal.Decimal `json:"no_price"`  // 0 → 0.50
}

// BuyRequest is the JSON body for POST /markets/{marketID}/buy.
type BuyRequest struct {
	UserID  string          `json:"user_id"`
	Outcome string          `json:"outcome"`
	Amount  decimal.Decimal `json:"amount"`
}

// SellRequest is the JSON body for POST /markets/{marketID}/sell.
type SellRequest struct {
	UserID  string          `json:"user_id"`
	Outcome string          `json:"outcome"`
	Shares  decimal.Decimal `json:"shares"`
}

// ResolveRequest is the JSON body for POST /markets/{marketID}/resolve (admin).
type ResolveRequest struct {
	Outcome string `json:"outcome"`
}

// LockRequest is the JSON body for POST /markets/{marketID}/lock (admin).
type LockRequest struct {
	Locked bool `json:"locked"`
}

// TransferRequest is the JSON body for POST /transfers.
type TransferRequest struct {
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Message    string          `json:"message"`
}

// ProfileRequest is the JSON body for POST /profiles.
type ProfileRequest struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Routes mounts all engine endpoints. Admin endpoints (market creation,
// resolution, lock) must additionally be wrapped with RequireAdmin by the
// caller via the admin sub-router.
func (s *Service) Routes(r chi.Router, adminToken string) {
	r.Get("/markets", s.handleListMarkets)
	r.Get("/markets/{marketID}", s.handleGetMarket)
	r.Get("/markets/{marketID}/preview/buy", s.handlePreviewBuy)
	r.Get("/markets/{marketID}/preview/sell", s.handlePreviewSell)
	r.Get("/markets/{marketID}/trades", s.handleMarketTrades)
	r.Post("/markets/{marketID}/buy", s.handleBuy)
	r.Post("/markets/{marketID}/sell", s.handleSell)

	r.Post("/profiles", s.handleEnsureProfile)
	r.Get("/profiles/{userID}", s.handleGetProfile)
	r.Get("/profiles/{userID}/positions", s.handleUserPositions)
	r.Get("/profiles/{userID}/trades", s.handleUserTrades)
	r.Get("/leaderboard", s.handleLeaderboard)
	r.Post("/transfers", s.handleTransfer)

	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin(adminToken))
		r.Post("/markets", s.handleCreateMarket)
		r.Post("/markets/{marketID}/resolve", s.handleResolve)
		r.Post("/markets/{marketID}/lock", s.handleLock)
	})
}

// --- Market handlers ---

func (s *Service) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		writeError(w, "question is required", http.StatusBadRequest)
		return
	}

	market, err := s.CreateMarket(r.Context(), req.Question, req.PoolK, req.YesPrice, req.NoPrice)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

func (s *Service) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

func (s *Service) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	market, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

func (s *Service) handleMarketTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTradesByMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "failed to get market trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// --- Preview handlers (read-only, no side effects) ---

func (s *Service) handlePreviewBuy(w http.ResponseWriter, r *http.Request) {
	market, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	outcome, err := model.ParseOutcome(r.URL.Query().Get("outcome"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, "amount must be a number", http.StatusBadRequest)
		return
	}

	quote, err := amm.BuyPreview(market.OutcomePrice(outcome), market.PoolK, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"new_price":  quote.NewPrice,
		"avg_price":  quote.AvgPrice,
		"shares":     quote.Shares,
		"spend":      quote.Spend,
		"max_payout": quote.MaxPayout,
	})
}

func (s *Service) handlePreviewSell(w http.ResponseWriter, r *http.Request) {
	market, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	outcome, err := model.ParseOutcome(r.URL.Query().Get("outcome"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	shares, err := decimal.NewFromString(r.URL.Query().Get("shares"))
	if err != nil {
		writeError(w, "shares must be a number", http.StatusBadRequest)
		return
	}

	quote, err := amm.SellPreview(market.OutcomePrice(outcome), market.PoolK, shares)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"new_price": quote.NewPrice,
		"avg_price": quote.AvgPrice,
		"dollars":   quote.Dollars,
	})
}

// --- Trade handlers ---

func (s *Service) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := s.ExecuteBuy(r.Context(), req.UserID, chi.URLParam(r, "marketID"), outcome, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := s.ExecuteSell(r.Context(), req.UserID, chi.URLParam(r, "marketID"), outcome, req.Shares)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	winner, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	summary, err := s.Resolve(r.Context(), chi.URLParam(r, "marketID"), winner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Service) handleLock(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	marketID := chi.URLParam(r, "marketID")
	if err := s.SetMarketLocked(r.Context(), marketID, req.Locked); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": marketID, "locked": req.Locked})
}

// --- Profile / economy handlers ---

func (s *Service) handleEnsureProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		writeError(w, "id is required", http.StatusBadRequest)
		return
	}

	profile, err := s.EnsureProfile(r.Context(), req.ID, req.Username)
	if err != nil {
		writeError(w, "failed to create profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.store.GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Service) handleUserPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListUserPositions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Service) handleUserTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTradesByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	profiles, err := s.store.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Service) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		writeError(w, "sender_id and receiver_id are required", http.StatusBadRequest)
		return
	}

	tr, err := s.Transfer(r.Context(), req.SenderID, req.ReceiverID, req.Amount, req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrMarketNotFound),
		errors.Is(err, store.ErrProfileNotFound):
		writeError(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrInvalidShares),
		errors.Is(err, amm.ErrInvalidPoolK),
		errors.Is(err, model.ErrInvalidOutcome),
		errors.Is(err, ErrInvalidTransferAmount),
		errors.Is(err, ErrSelfTransfer):
		writeError(w, err.Error(), http.StatusBadRequest)

	case errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, store.ErrInsufficientShares):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)

	case errors.Is(err, store.ErrMarketLocked),
		errors.Is(err, store.ErrMarketResolved),
		errors.Is(err, store.ErrAlreadyResolved),
		errors.Is(err, store.ErrMarketExists),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, ErrLockTimeout):
		writeError(w, err.Error(), http.StatusConflict)

	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}
