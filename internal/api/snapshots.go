package api

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/chart"
	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/portfolio"
	"github.com/solosaving/backend/internal/snapshot"
)

const maxSnapshotLimit = 365

type snapshotRequest struct {
	Date         date                `json:"date"`
	JPStocks     decimal.Decimal     `json:"jpStocks"`
	USStocks     decimal.Decimal     `json:"usStocks"`
	Funds        decimal.Decimal     `json:"funds"`
	Cash         decimal.Decimal     `json:"cash"`
	HoldingCount int                 `json:"holdingCount"`
	YieldRate    decimal.NullDecimal `json:"yieldRate"`
}

// GetDashboardStats handles GET /api/dashboard/stats.
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.portfolio.Stats(r.Context())
	if err != nil {
		writeServiceError(w, r, "dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetAllocation handles GET /api/dashboard/portfolio.
func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.portfolio.Allocation(r.Context())
	if err != nil {
		writeServiceError(w, r, "allocation", err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

// ListSnapshots handles GET /api/snapshots. With ?period= it returns the latest
// snapshot per bucket, oldest first; otherwise ?start, ?end and ?limit filter the
// stored snapshots, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("period") {
		p, err := portfolio.ParsePeriod(q.Get("period"))
		if err != nil {
			writeServiceError(w, r, "list snapshots", err)
			return
		}
		snaps, err := h.portfolio.History(r.Context(), p)
		if err != nil {
			writeServiceError(w, r, "list snapshots", err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(snaps))
		return
	}

	var f snapshot.Filter
	var err error
	if f.Start, err = parseDateParam(q.Get("start")); err != nil {
		writeServiceError(w, r, "list snapshots", err)
		return
	}
	if f.End, err = parseDateParam(q.Get("end")); err != nil {
		writeServiceError(w, r, "list snapshots", err)
		return
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			f.Limit = min(n, maxSnapshotLimit)
		}
	}

	snaps, err := h.snapshots.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(snaps))
}

// GetLatestSnapshot handles GET /api/snapshots/latest.
func (h *Handler) GetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.snapshots.Latest(r.Context())
	if err != nil {
		writeServiceError(w, r, "latest snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GetSnapshotByDate handles GET /api/snapshots/{date}.
func (h *Handler) GetSnapshotByDate(w http.ResponseWriter, r *http.Request) {
	d, err := parseDateParam(chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, r, "snapshot by date", err)
		return
	}
	s, err := h.snapshots.GetByDate(r.Context(), d)
	if err != nil {
		writeServiceError(w, r, "snapshot by date", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// CreateSnapshot handles POST /api/snapshots.
func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.snapshots.Create(r.Context(), snapshot.CreateRequest{
		Date: req.Date.Time,
		Totals: domain.CategoryTotals{
			JPStocks: req.JPStocks,
			USStocks: req.USStocks,
			Funds:    req.Funds,
			Cash:     req.Cash,
		},
		HoldingCount: req.HoldingCount,
		YieldRate:    req.YieldRate,
	})
	if err != nil {
		writeServiceError(w, r, "create snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// Backfill handles POST /api/snapshots/backfill.
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	res, err := h.snapshots.Backfill(r.Context(), h.clock.Today())
	if err != nil {
		writeServiceError(w, r, "backfill", err)
		return
	}
	if res.Created == nil {
		res.Created = []time.Time{}
	}
	writeJSON(w, http.StatusOK, res)
}

// GetChart handles GET /api/snapshots/chart?period=day|month|year.
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	p, err := portfolio.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, r, "chart", err)
		return
	}
	points, err := h.portfolio.Chart(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, "chart", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(points))
}

// GetChartPNG handles GET /api/snapshots/chart.png?period=day|month|year.
func (h *Handler) GetChartPNG(w http.ResponseWriter, r *http.Request) {
	p, err := portfolio.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, r, "chart image", err)
		return
	}
	points, err := h.portfolio.Chart(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, "chart image", err)
		return
	}
	png, err := chart.RenderAssets(points, p)
	if err != nil {
		writeServiceError(w, r, "chart image", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

// ExportWorkbook handles GET /api/snapshots/export.xlsx.
func (h *Handler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.export.Workbook(r.Context(), &buf); err != nil {
		writeServiceError(w, r, "export workbook", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="snapshots.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}
