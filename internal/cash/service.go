package cash

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding"
)

// Store is the subset of the holding repository the cash service needs.
type Store interface {
	List(ctx context.Context, category domain.Category) ([]domain.Holding, error)
	InTx(ctx context.Context, fn func(holding.Tx) error) error
}

// Operation names accepted by Apply.
const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
)

// Service moves money in and out of the cash holding.
type Service struct {
	store Store
}

// NewService creates a cash Service.
func NewService(store Store) *Service {
	if store == nil {
		panic("cash.NewService: store must not be nil")
	}
	return &Service{store: store}
}

// Balance returns the current cash balance; zero when no cash holding exists.
func (s *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	holdings, err := s.store.List(ctx, domain.CategoryCash)
	if err != nil {
		return decimal.Zero, fmt.Errorf("listing cash holdings: %w", err)
	}
	return lo.Reduce(holdings, func(acc decimal.Decimal, h domain.Holding, _ int) decimal.Decimal {
		return acc.Add(h.CurrentValue)
	}, decimal.Zero), nil
}

// Deposit adds amount to cash, creating the cash holding on first use.
func (s *Service) Deposit(ctx context.Context, amount decimal.Decimal) (domain.Holding, error) {
	return s.mutate(ctx, OpDeposit, amount, Deposit)
}

// Withdraw removes amount from cash.
func (s *Service) Withdraw(ctx context.Context, amount decimal.Decimal) (domain.Holding, error) {
	return s.mutate(ctx, OpWithdraw, amount, Withdraw)
}

// Apply runs the named operation.
func (s *Service) Apply(ctx context.Context, op string, amount decimal.Decimal) (domain.Holding, error) {
	switch op {
	case OpDeposit:
		return s.Deposit(ctx, amount)
	case OpWithdraw:
		return s.Withdraw(ctx, amount)
	default:
		return domain.Holding{}, fmt.Errorf("%w: unknown cash operation %q", domain.ErrInvalidInput, op)
	}
}

func (s *Service) mutate(ctx context.Context, op string, amount decimal.Decimal,
	apply func(balance, amount decimal.Decimal) (decimal.Decimal, error),
) (domain.Holding, error) {
	var result domain.Holding
	err := s.store.InTx(ctx, func(tx holding.Tx) error {
		current, err := tx.LockCash(ctx)
		if err != nil {
			return err
		}
		h := domain.NewCashHolding(decimal.Zero)
		if current != nil {
			h = *current
		}

		balance, err := apply(h.CurrentValue, amount)
		if err != nil {
			return err
		}
		SetBalance(&h, balance)
		if err := tx.Save(ctx, &h); err != nil {
			return err
		}
		result = h
		return nil
	})
	if err != nil {
		return domain.Holding{}, fmt.Errorf("cash %s: %w", op, err)
	}

	slog.Info("cash updated", "operation", op, "amount", amount.String(), "balance", result.CurrentValue.String())
	return result, nil
}

// SetBalance writes balance into a cash holding, keeping quantity, value and cost in step.
func SetBalance(h *domain.Holding, balance decimal.Decimal) {
	h.Quantity = balance
	h.CurrentPrice = decimal.NewFromInt(1)
	h.AverageCost = decimal.NewFromInt(1)
	h.CurrentValue = balance
	h.TotalCost = balance
}
