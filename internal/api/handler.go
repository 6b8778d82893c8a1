package api

import (
	"github.com/solosaving/backend/internal/cash"
	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/export"
	"github.com/solosaving/backend/internal/goal"
	"github.com/solosaving/backend/internal/holding"
	"github.com/solosaving/backend/internal/portfolio"
	"github.com/solosaving/backend/internal/snapshot"
	"github.com/solosaving/backend/internal/valuation"
)

// Handler provides the HTTP endpoints.
type Handler struct {
	holdings  *holding.Service
	valuation *valuation.Service
	cash      *cash.Service
	portfolio *portfolio.Service
	snapshots *snapshot.Service
	goals     *goal.Service
	export    *export.Service
	clock     domain.Clock
}

// Services groups the dependencies of Handler.
type Services struct {
	Holdings  *holding.Service
	Valuation *valuation.Service
	Cash      *cash.Service
	Portfolio *portfolio.Service
	Snapshots *snapshot.Service
	Goals     *goal.Service
	Export    *export.Service
	Clock     domain.Clock
}

// NewHandler creates a new API handler.
func NewHandler(s Services) *Handler {
	return &Handler{
		holdings:  s.Holdings,
		valuation: s.Valuation,
		cash:      s.Cash,
		portfolio: s.Portfolio,
		snapshots: s.Snapshots,
		goals:     s.Goals,
		export:    s.Export,
		clock:     s.Clock,
	}
}
