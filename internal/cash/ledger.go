// Package cash maintains the single home-currency cash balance.
package cash

import (
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// Deposit returns balance + amount.
func Deposit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return balance, domain.ErrInvalidAmount
	}
	return domain.RoundMoney(balance.Add(amount)), nil
}

// Withdraw returns balance - amount, refusing to go below zero.
func Withdraw(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return balance, domain.ErrInvalidAmount
	}
	return debit(balance, amount)
}

// DeductForPurchase debits the cost of a purchase. A zero cost is a no-op.
func DeductForPurchase(balance, cost decimal.Decimal) (decimal.Decimal, error) {
	cost = domain.RoundMoney(cost)
	if cost.IsNegative() {
		return balance, domain.ErrInvalidAmount
	}
	return debit(balance, cost)
}

func debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if balance.LessThan(amount) {
		return balance, &domain.InsufficientFundsError{Required: amount, Available: balance}
	}
	return domain.RoundMoney(balance.Sub(amount)), nil
}
