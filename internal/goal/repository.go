// Package goal stores savings goals.
package goal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solosaving/backend/internal/domain"
)

// Repository defines persistent storage for savings goals.
type Repository interface {
	List(ctx context.Context, activeOnly bool) ([]domain.SavingsGoal, error)
	Get(ctx context.Context, id uuid.UUID) (domain.SavingsGoal, error)
	Create(ctx context.Context, g *domain.SavingsGoal) error
	Update(ctx context.Context, g *domain.SavingsGoal) error
	Delete(ctx context.Context, id uuid.UUID) error
}

const goalColumns = `id, label, target_amount, current_amount, target_date, is_active, created_at, updated_at`

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL goal repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) List(ctx context.Context, activeOnly bool) ([]domain.SavingsGoal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+goalColumns+` FROM savings_goals
		 WHERE NOT $1 OR is_active
		 ORDER BY created_at DESC`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing goals: %w", err)
	}
	goals, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SavingsGoal, error) {
		return scanGoal(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning goals: %w", err)
	}
	return goals, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (domain.SavingsGoal, error) {
	g, err := scanGoal(r.pool.QueryRow(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavingsGoal{}, domain.ErrNotFound
		}
		return domain.SavingsGoal{}, fmt.Errorf("getting goal %s: %w", id, err)
	}
	return g, nil
}

func (r *PgRepository) Create(ctx context.Context, g *domain.SavingsGoal) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO savings_goals (id, label, target_amount, current_amount, target_date, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		g.ID, g.Label, g.TargetAmount, g.CurrentAmount, g.TargetDate, g.Active,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating goal: %w", err)
	}
	return nil
}

func (r *PgRepository) Update(ctx context.Context, g *domain.SavingsGoal) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE savings_goals
		 SET label = $2, target_amount = $3, current_amount = $4, target_date = $5,
		     is_active = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		g.ID, g.Label, g.TargetAmount, g.CurrentAmount, g.TargetDate, g.Active,
	).Scan(&g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("updating goal %s: %w", g.ID, err)
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM savings_goals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting goal %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanGoal(row pgx.Row) (domain.SavingsGoal, error) {
	var g domain.SavingsGoal
	err := row.Scan(&g.ID, &g.Label, &g.TargetAmount, &g.CurrentAmount, &g.TargetDate,
		&g.Active, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}
