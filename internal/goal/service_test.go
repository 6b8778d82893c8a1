package goal_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/goal"
	"github.com/solosaving/backend/internal/goal/goaltest"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateAndProgress(t *testing.T) {
	svc := goal.NewService(goaltest.NewMemory())
	target := time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC)

	g, err := svc.Create(context.Background(), goal.Input{
		Label:         " 目標資産額 ",
		TargetAmount:  d("10000000"),
		CurrentAmount: d("4610000"),
		TargetDate:    &target,
	})
	require.NoError(t, err)

	assert.Equal(t, "目標資産額", g.Label)
	assert.True(t, g.Active, "goals are active by default")
	assert.Equal(t, "46.1", g.Progress.String())
	require.NotNil(t, g.TargetDate)
	assert.Equal(t, "2025-12-31", g.TargetDate.Format(domain.DateLayout))
}

func TestProgressCapsAtHundred(t *testing.T) {
	svc := goal.NewService(goaltest.NewMemory())
	g, err := svc.Create(context.Background(), goal.Input{Label: "travel", TargetAmount: d("1000"), CurrentAmount: d("1500")})
	require.NoError(t, err)
	assert.Equal(t, "100", g.Progress.String())
}

func TestCreateValidation(t *testing.T) {
	svc := goal.NewService(goaltest.NewMemory())

	tests := []struct {
		name string
		in   goal.Input
	}{
		{"empty label", goal.Input{TargetAmount: d("1")}},
		{"long label", goal.Input{Label: string(make([]rune, 101)), TargetAmount: d("1")}},
		{"zero target", goal.Input{Label: "x"}},
		{"negative current", goal.Input{Label: "x", TargetAmount: d("1"), CurrentAmount: d("-1")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestUpdatePartial(t *testing.T) {
	svc := goal.NewService(goaltest.NewMemory())
	ctx := context.Background()

	g, err := svc.Create(ctx, goal.Input{Label: "house", TargetAmount: d("5000000"), CurrentAmount: d("1000000")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, g.ID, goal.Patch{CurrentAmount: lo.ToPtr(d("2500000")), Active: lo.ToPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "house", updated.Label)
	assert.Equal(t, "50", updated.Progress.String())
	assert.False(t, updated.Active)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.Update(ctx, g.ID, goal.Patch{TargetAmount: lo.ToPtr(decimal.Zero)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Update(ctx, uuid.New(), goal.Patch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc := goal.NewService(goaltest.NewMemory())
	ctx := context.Background()

	g, err := svc.Create(ctx, goal.Input{Label: "car", TargetAmount: d("100")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, g.ID))
	_, err = svc.Get(ctx, g.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, g.ID), domain.ErrNotFound)
}
