package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/goal"
)

type goalRequest struct {
	Label         *string          `json:"label"`
	TargetAmount  *decimal.Decimal `json:"targetAmount"`
	CurrentAmount *decimal.Decimal `json:"currentAmount"`
	TargetDate    *date            `json:"targetDate"`
	Active        *bool            `json:"isActive"`
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domain.Categories())
}

// ListGoals handles GET /api/goals?active=true.
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	goals, err := h.goals.List(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, "list goals", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(goals))
}

// GetGoal handles GET /api/goals/{id}.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := h.goals.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, "get goal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// CreateGoal handles POST /api/goals.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := goal.Input{TargetDate: req.TargetDate.ptr(), Active: req.Active}
	if req.Label != nil {
		in.Label = *req.Label
	}
	if req.TargetAmount != nil {
		in.TargetAmount = *req.TargetAmount
	}
	if req.CurrentAmount != nil {
		in.CurrentAmount = *req.CurrentAmount
	}

	g, err := h.goals.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "create goal", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// UpdateGoal handles PUT /api/goals/{id}. Omitted fields keep their value.
func (h *Handler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.goals.Update(r.Context(), id, goal.Patch{
		Label:         req.Label,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate.ptr(),
		Active:        req.Active,
	})
	if err != nil {
		writeServiceError(w, r, "update goal", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DeleteGoal handles DELETE /api/goals/{id}.
func (h *Handler) DeleteGoal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.goals.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete goal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
