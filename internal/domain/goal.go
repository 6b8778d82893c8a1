package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SavingsGoal is a user-defined savings target.
type SavingsGoal struct {
	ID            uuid.UUID       `json:"id"`
	Label         string          `json:"label"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	TargetDate    *time.Time      `json:"targetDate,omitempty"`
	Active        bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Progress is CurrentAmount as a percentage of TargetAmount, capped at 100.
func (g SavingsGoal) Progress() decimal.Decimal {
	p := Percent(g.CurrentAmount, g.TargetAmount)
	if p.GreaterThan(hundred) {
		return hundred
	}
	return p
}
