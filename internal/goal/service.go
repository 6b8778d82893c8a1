package goal

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

const maxLabelLength = 100

// Goal is a savings goal with its derived progress.
type Goal struct {
	domain.SavingsGoal
	Progress decimal.Decimal `json:"progress"`
}

func view(g domain.SavingsGoal) Goal {
	return Goal{SavingsGoal: g, Progress: g.Progress()}
}

// Input creates a goal.
type Input struct {
	Label         string
	TargetAmount  decimal.Decimal
	CurrentAmount decimal.Decimal
	TargetDate    *time.Time
	Active        *bool
}

// Patch updates a goal. Nil fields are left unchanged.
type Patch struct {
	Label         *string
	TargetAmount  *decimal.Decimal
	CurrentAmount *decimal.Decimal
	TargetDate    *time.Time
	Active        *bool
}

// Service manages savings goals.
type Service struct {
	repo Repository
}

// NewService creates a goal Service.
func NewService(repo Repository) *Service {
	if repo == nil {
		panic("goal.NewService: repo must not be nil")
	}
	return &Service{repo: repo}
}

// List returns goals newest first, only active ones when activeOnly is set.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Goal, error) {
	goals, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	return lo.Map(goals, func(g domain.SavingsGoal, _ int) Goal { return view(g) }), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Goal, error) {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return Goal{}, err
	}
	return view(g), nil
}

func (s *Service) Create(ctx context.Context, in Input) (Goal, error) {
	g := domain.SavingsGoal{
		ID:            uuid.New(),
		Label:         strings.TrimSpace(in.Label),
		TargetAmount:  domain.RoundMoney(in.TargetAmount),
		CurrentAmount: domain.RoundMoney(in.CurrentAmount),
		TargetDate:    dateOnly(in.TargetDate),
		Active:        lo.FromPtrOr(in.Active, true),
	}
	if err := validate(g); err != nil {
		return Goal{}, err
	}
	if err := s.repo.Create(ctx, &g); err != nil {
		return Goal{}, err
	}
	return view(g), nil
}

// Update applies the non-nil fields of p to goal id.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (Goal, error) {
	g, err := s.repo.Get(ctx, id)
	if err != nil {
		return Goal{}, err
	}
	if p.Label != nil {
		g.Label = strings.TrimSpace(*p.Label)
	}
	if p.TargetAmount != nil {
		g.TargetAmount = domain.RoundMoney(*p.TargetAmount)
	}
	if p.CurrentAmount != nil {
		g.CurrentAmount = domain.RoundMoney(*p.CurrentAmount)
	}
	if p.TargetDate != nil {
		g.TargetDate = dateOnly(p.TargetDate)
	}
	if p.Active != nil {
		g.Active = *p.Active
	}
	if err := validate(g); err != nil {
		return Goal{}, err
	}
	if err := s.repo.Update(ctx, &g); err != nil {
		return Goal{}, err
	}
	return view(g), nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func validate(g domain.SavingsGoal) error {
	switch {
	case g.Label == "":
		return fmt.Errorf("%w: label is required", domain.ErrInvalidInput)
	case utf8.RuneCountInString(g.Label) > maxLabelLength:
		return fmt.Errorf("%w: label exceeds %d characters", domain.ErrInvalidInput, maxLabelLength)
	case !g.TargetAmount.IsPositive():
		return fmt.Errorf("%w: target amount must be positive", domain.ErrInvalidInput)
	case g.CurrentAmount.IsNegative():
		return fmt.Errorf("%w: current amount must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.DateOf(*t)
	return &d
}
