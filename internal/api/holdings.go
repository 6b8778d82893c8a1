package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding"
	"github.com/solosaving/backend/internal/snapshot"
	"github.com/solosaving/backend/internal/valuation"
)

type holdingRequest struct {
	Category     string              `json:"category"`
	Name         string              `json:"name"`
	Ticker       string              `json:"ticker"`
	Quantity     decimal.Decimal     `json:"quantity"`
	AverageCost  decimal.Decimal     `json:"averageCost"`
	CurrentPrice decimal.NullDecimal `json:"currentPrice"`
	Currency     string              `json:"currency"`
}

func (req holdingRequest) input() holding.Input {
	return holding.Input{
		Category:     req.Category,
		Name:         req.Name,
		Ticker:       req.Ticker,
		Quantity:     req.Quantity,
		AverageCost:  req.AverageCost,
		CurrentPrice: req.CurrentPrice,
		Currency:     req.Currency,
	}
}

type purchaseRequest struct {
	Category string              `json:"category"`
	Name     string              `json:"name"`
	Ticker   string              `json:"ticker"`
	Quantity decimal.Decimal     `json:"quantity"`
	Price    decimal.Decimal     `json:"price"`
	FXRate   decimal.NullDecimal `json:"fxRate"`
	Currency string              `json:"currency"`
	TradedAt *date               `json:"tradedAt"`
	Note     string              `json:"note"`
}

type sellRequest struct {
	HoldingID uuid.UUID           `json:"holdingId"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Price     decimal.Decimal     `json:"price"`
	FXRate    decimal.NullDecimal `json:"fxRate"`
	TradedAt  *date               `json:"tradedAt"`
	Note      string              `json:"note"`
}

type cashRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Type   string          `json:"type"`
	Note   string          `json:"note"`
}

type cashBalance struct {
	Balance     decimal.Decimal `json:"balance"`
	BalanceText string          `json:"balanceText"`
}

// ListHoldings handles GET /api/holdings.
func (h *Handler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.holdings.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, r, "list holdings", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(holdings))
}

// GetHolding handles GET /api/holdings/{id}.
func (h *Handler) GetHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	hld, err := h.holdings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get holding", err)
		return
	}
	writeJSON(w, http.StatusOK, hld)
}

// CreateHolding handles POST /api/holdings.
func (h *Handler) CreateHolding(w http.ResponseWriter, r *http.Request) {
	var req holdingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hld, err := h.holdings.Create(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, "create holding", err)
		return
	}
	writeJSON(w, http.StatusCreated, hld)
}

// UpdateHolding handles PUT /api/holdings/{id}.
func (h *Handler) UpdateHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req holdingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hld, err := h.holdings.Update(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, r, "update holding", err)
		return
	}
	writeJSON(w, http.StatusOK, hld)
}

// DeleteHolding handles DELETE /api/holdings/{id}.
func (h *Handler) DeleteHolding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.holdings.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete holding", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTransactions handles GET /api/holdings/{id}/transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	txs, err := h.holdings.Transactions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(txs))
}

// GetHoldingHistory handles GET /api/holdings/{id}/history?days=N.
func (h *Handler) GetHoldingHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	days := 0
	if s := r.URL.Query().Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = n
	}
	history, err := h.holdings.History(r.Context(), id, days)
	if err != nil {
		writeServiceError(w, r, "holding history", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(history))
}

// GetPriceHistory handles GET /api/holdings/{id}/price-history?period=1mo.
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ph, err := h.holdings.PriceHistory(r.Context(), id, r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, r, "price history", err)
		return
	}
	writeJSON(w, http.StatusOK, ph)
}

// Purchase handles POST /api/holdings/purchase.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		writeServiceError(w, r, "purchase", err)
		return
	}
	var currency domain.Currency
	if req.Currency != "" {
		if currency, err = domain.ParseCurrency(req.Currency); err != nil {
			writeServiceError(w, r, "purchase", err)
			return
		}
	}

	res, err := h.valuation.Purchase(r.Context(), valuation.PurchaseRequest{
		Category: category,
		Name:     req.Name,
		Ticker:   req.Ticker,
		Quantity: req.Quantity,
		Price:    req.Price,
		FXRate:   req.FXRate,
		Currency: currency,
		TradedAt: tradedAt(req.TradedAt),
		Note:     req.Note,
	})
	if err != nil {
		writeServiceError(w, r, "purchase", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sell handles POST /api/holdings/sell.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.valuation.Sell(r.Context(), valuation.SellRequest{
		HoldingID: req.HoldingID,
		Quantity:  req.Quantity,
		Price:     req.Price,
		FXRate:    req.FXRate,
		TradedAt:  tradedAt(req.TradedAt),
		Note:      req.Note,
	})
	if err != nil {
		writeServiceError(w, r, "sell", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshResponse struct {
	valuation.RefreshResult
	Backfill snapshot.BackfillResult `json:"backfill"`
}

// RefreshPrices handles POST /api/holdings/refresh. Missing snapshots up to yesterday
// are backfilled from the current holdings first, then live prices are applied.
func (h *Handler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	backfill, err := h.snapshots.Backfill(r.Context(), h.clock.Today())
	if err != nil {
		slog.Error("refresh: backfill failed", "error", err)
	}
	if backfill.Created == nil {
		backfill.Created = []time.Time{}
	}

	res, err := h.valuation.RefreshPrices(r.Context())
	if err != nil {
		writeServiceError(w, r, "refresh prices", err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{RefreshResult: res, Backfill: backfill})
}

// GetCashBalance handles GET /api/cash/balance.
func (h *Handler) GetCashBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.cash.Balance(r.Context())
	if err != nil {
		writeServiceError(w, r, "cash balance", err)
		return
	}
	writeJSON(w, http.StatusOK, cashBalance{Balance: balance, BalanceText: domain.FormatYen(balance)})
}

// CashTransaction handles POST /api/cash/transaction.
func (h *Handler) CashTransaction(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hld, err := h.cash.Apply(r.Context(), req.Type, req.Amount)
	if err != nil {
		writeServiceError(w, r, "cash transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, hld)
}

func tradedAt(d *date) (t time.Time) {
	if p := d.ptr(); p != nil {
		t = *p
	}
	return t
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
