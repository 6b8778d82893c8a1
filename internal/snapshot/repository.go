package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solosaving/backend/internal/domain"
)

// Filter narrows List. Zero fields are ignored.
type Filter struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Repository defines persistent storage for daily snapshots.
type Repository interface {
	// Insert stores s and fails with *domain.DuplicateSnapshotError when its date exists.
	Insert(ctx context.Context, s *domain.DailySnapshot) error
	// InsertIfAbsent stores s unless its date exists and reports whether it was stored.
	InsertIfAbsent(ctx context.Context, s *domain.DailySnapshot) (bool, error)
	// Upsert stores s, replacing any snapshot with the same date.
	Upsert(ctx context.Context, s *domain.DailySnapshot) error
	Latest(ctx context.Context) (domain.DailySnapshot, error)
	LatestBefore(ctx context.Context, date time.Time) (domain.DailySnapshot, error)
	GetByDate(ctx context.Context, date time.Time) (domain.DailySnapshot, error)
	// List returns snapshots newest first.
	List(ctx context.Context, f Filter) ([]domain.DailySnapshot, error)
	// Since returns snapshots dated on or after start, oldest first.
	Since(ctx context.Context, start time.Time) ([]domain.DailySnapshot, error)
}

const snapshotColumns = `id, snapshot_date, total_assets, jp_stocks, us_stocks, funds, cash,
	holding_count, yield_rate, created_at`

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Insert(ctx context.Context, s *domain.DailySnapshot) error {
	ok, err := r.InsertIfAbsent(ctx, s)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.DuplicateSnapshotError{Date: s.Date}
	}
	return nil
}

func (r *PgRepository) InsertIfAbsent(ctx context.Context, s *domain.DailySnapshot) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO daily_snapshots (id, snapshot_date, total_assets, jp_stocks, us_stocks, funds, cash, holding_count, yield_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (snapshot_date) DO NOTHING
		 RETURNING created_at`,
		s.ID, s.Date, s.TotalAssets, s.JPStocks, s.USStocks, s.Funds, s.Cash, s.HoldingCount, s.YieldRate,
	).Scan(&s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting snapshot %s: %w", s.Date.Format(domain.DateLayout), err)
	}
	return true, nil
}

func (r *PgRepository) Upsert(ctx context.Context, s *domain.DailySnapshot) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO daily_snapshots (id, snapshot_date, total_assets, jp_stocks, us_stocks, funds, cash, holding_count, yield_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (snapshot_date) DO UPDATE SET
		   total_assets = EXCLUDED.total_assets,
		   jp_stocks = EXCLUDED.jp_stocks,
		   us_stocks = EXCLUDED.us_stocks,
		   funds = EXCLUDED.funds,
		   cash = EXCLUDED.cash,
		   holding_count = EXCLUDED.holding_count,
		   yield_rate = EXCLUDED.yield_rate
		 RETURNING id, created_at`,
		s.ID, s.Date, s.TotalAssets, s.JPStocks, s.USStocks, s.Funds, s.Cash, s.HoldingCount, s.YieldRate,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", s.Date.Format(domain.DateLayout), err)
	}
	return nil
}

func (r *PgRepository) Latest(ctx context.Context) (domain.DailySnapshot, error) {
	return r.getOne(ctx, "getting latest snapshot",
		`SELECT `+snapshotColumns+` FROM daily_snapshots ORDER BY snapshot_date DESC LIMIT 1`)
}

func (r *PgRepository) LatestBefore(ctx context.Context, date time.Time) (domain.DailySnapshot, error) {
	return r.getOne(ctx, "getting previous snapshot",
		`SELECT `+snapshotColumns+` FROM daily_snapshots
		 WHERE snapshot_date < $1 ORDER BY snapshot_date DESC LIMIT 1`, domain.DateOf(date))
}

func (r *PgRepository) GetByDate(ctx context.Context, date time.Time) (domain.DailySnapshot, error) {
	return r.getOne(ctx, "getting snapshot by date",
		`SELECT `+snapshotColumns+` FROM daily_snapshots WHERE snapshot_date = $1`, domain.DateOf(date))
}

func (r *PgRepository) List(ctx context.Context, f Filter) ([]domain.DailySnapshot, error) {
	if f.Limit <= 0 {
		f.Limit = 30
	}
	var start, end *time.Time
	if !f.Start.IsZero() {
		d := domain.DateOf(f.Start)
		start = &d
	}
	if !f.End.IsZero() {
		d := domain.DateOf(f.End)
		end = &d
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM daily_snapshots
		 WHERE ($1::date IS NULL OR snapshot_date >= $1)
		   AND ($2::date IS NULL OR snapshot_date <= $2)
		 ORDER BY snapshot_date DESC
		 LIMIT $3`, start, end, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

func (r *PgRepository) Since(ctx context.Context, start time.Time) ([]domain.DailySnapshot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+snapshotColumns+` FROM daily_snapshots
		 WHERE snapshot_date >= $1 ORDER BY snapshot_date`, domain.DateOf(start))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots since %s: %w", start.Format(domain.DateLayout), err)
	}
	return collectSnapshots(rows)
}

func (r *PgRepository) getOne(ctx context.Context, op, sql string, args ...any) (domain.DailySnapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailySnapshot{}, domain.ErrNotFound
		}
		return domain.DailySnapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func collectSnapshots(rows pgx.Rows) ([]domain.DailySnapshot, error) {
	defer rows.Close()

	var snapshots []domain.DailySnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.Row) (domain.DailySnapshot, error) {
	var s domain.DailySnapshot
	err := row.Scan(&s.ID, &s.Date, &s.TotalAssets, &s.JPStocks, &s.USStocks, &s.Funds, &s.Cash,
		&s.HoldingCount, &s.YieldRate, &s.CreatedAt)
	if err != nil {
		return s, err
	}
	s.Date = domain.DateOf(s.Date)
	return s, nil
}
