// Package api exposes the services over a JSON REST interface.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the router.
type Options struct {
	// AdminAPIKey protects mutating routes with a bearer token when set.
	AdminAPIKey    string
	RequestTimeout time.Duration
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, h *Handler, opts Options) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(h, opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter wires every route to h.
func NewRouter(h *Handler, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.ListCategories)

		r.Get("/holdings", h.ListHoldings)
		r.Get("/holdings/{id}", h.GetHolding)
		r.Get("/holdings/{id}/transactions", h.ListTransactions)
		r.Get("/holdings/{id}/history", h.GetHoldingHistory)
		r.Get("/holdings/{id}/price-history", h.GetPriceHistory)

		r.Get("/cash/balance", h.GetCashBalance)

		r.Get("/dashboard/stats", h.GetDashboardStats)
		r.Get("/dashboard/portfolio", h.GetAllocation)

		r.Get("/snapshots", h.ListSnapshots)
		r.Get("/snapshots/latest", h.GetLatestSnapshot)
		r.Get("/snapshots/chart", h.GetChart)
		r.Get("/snapshots/chart.png", h.GetChartPNG)
		r.Get("/snapshots/export.xlsx", h.ExportWorkbook)
		r.Get("/snapshots/{date}", h.GetSnapshotByDate)

		r.Get("/goals", h.ListGoals)
		r.Get("/goals/{id}", h.GetGoal)

		r.Group(func(r chi.Router) {
			if opts.AdminAPIKey != "" {
				r.Use(func(next http.Handler) http.Handler { return requireAuth(opts.AdminAPIKey, next) })
			}

			r.Post("/holdings", h.CreateHolding)
			r.Put("/holdings/{id}", h.UpdateHolding)
			r.Delete("/holdings/{id}", h.DeleteHolding)
			r.Post("/holdings/purchase", h.Purchase)
			r.Post("/holdings/sell", h.Sell)
			r.Post("/holdings/refresh", h.RefreshPrices)

			r.Post("/cash/transaction", h.CashTransaction)

			r.Post("/snapshots", h.CreateSnapshot)
			r.Post("/snapshots/backfill", h.Backfill)

			r.Post("/goals", h.CreateGoal)
			r.Put("/goals/{id}", h.UpdateGoal)
			r.Delete("/goals/{id}", h.DeleteGoal)
		})
	})

	return r
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
