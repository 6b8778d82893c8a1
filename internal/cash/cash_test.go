package cash

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding/holdingtest"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedger(t *testing.T) {
	got, err := Deposit(d("100"), d("50.005"))
	require.NoError(t, err)
	assert.Equal(t, "150.01", got.String())

	_, err = Deposit(d("100"), d("0"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = Withdraw(d("100"), d("-5"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	got, err = Withdraw(d("100"), d("100"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = DeductForPurchase(d("100"), d("0"))
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	bal, err := Withdraw(d("50000"), d("60000"))

	var funds *domain.InsufficientFundsError
	require.True(t, errors.As(err, &funds))
	assert.Equal(t, "60000", funds.Required.String())
	assert.Equal(t, "50000", funds.Available.String())
	assert.Equal(t, "50000", bal.String(), "balance must be returned unchanged")
}

func TestServiceDepositCreatesCashHolding(t *testing.T) {
	store := holdingtest.NewMemory()
	svc := NewService(store)
	ctx := context.Background()

	bal, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	h, err := svc.Deposit(ctx, d("1000"))
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryCash, h.Category)
	assert.Equal(t, "1000", h.CurrentValue.String())

	_, err = svc.Apply(ctx, OpDeposit, d("500"))
	require.NoError(t, err)

	bal, err = svc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1500", bal.String())

	cashRows, err := store.List(ctx, domain.CategoryCash)
	require.NoError(t, err)
	assert.Len(t, cashRows, 1)
}

func TestServiceWithdraw(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("50000")))
	svc := NewService(store)
	ctx := context.Background()

	_, err := svc.Withdraw(ctx, d("60000"))
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)

	bal, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "50000", bal.String())

	h, err := svc.Apply(ctx, OpWithdraw, d("20000"))
	require.NoError(t, err)
	assert.Equal(t, "30000", h.Quantity.String())
	assert.Equal(t, "30000", h.CurrentValue.String())

	_, err = svc.Apply(ctx, "transfer", d("1"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestServiceConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	store := holdingtest.NewMemory(domain.NewCashHolding(d("1000")))
	svc := NewService(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Withdraw(ctx, d("300")); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	bal, err := svc.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", bal.String())
}
