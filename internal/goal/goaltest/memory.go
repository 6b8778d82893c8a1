// Package goaltest provides an in-memory goal repository for tests.
package goaltest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/goal"
)

var _ goal.Repository = (*Memory)(nil)

// Memory implements goal.Repository in memory. List returns newest first.
type Memory struct {
	mu    sync.Mutex
	goals []domain.SavingsGoal
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) List(_ context.Context, activeOnly bool) ([]domain.SavingsGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.goals)
	slices.Reverse(out)
	return lo.Filter(out, func(g domain.SavingsGoal, _ int) bool { return !activeOnly || g.Active }), nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (domain.SavingsGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := lo.Find(m.goals, func(g domain.SavingsGoal) bool { return g.ID == id })
	if !ok {
		return domain.SavingsGoal{}, domain.ErrNotFound
	}
	return g, nil
}

func (m *Memory) Create(_ context.Context, g *domain.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	m.goals = append(m.goals, *g)
	return nil
}

func (m *Memory) Update(_ context.Context, g *domain.SavingsGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.IndexFunc(m.goals, func(e domain.SavingsGoal) bool { return e.ID == g.ID })
	if i < 0 {
		return domain.ErrNotFound
	}
	g.UpdatedAt = time.Now()
	m.goals[i] = *g
	return nil
}

func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.goals)
	m.goals = slices.DeleteFunc(m.goals, func(g domain.SavingsGoal) bool { return g.ID == id })
	if len(m.goals) == n {
		return domain.ErrNotFound
	}
	return nil
}
