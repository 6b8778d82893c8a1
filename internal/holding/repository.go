package holding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// Repository defines persistent storage for holdings and everything they own.
type Repository interface {
	List(ctx context.Context, category domain.Category) ([]domain.Holding, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Holding, error)
	Create(ctx context.Context, h *domain.Holding) error
	Update(ctx context.Context, h *domain.Holding) error
	Delete(ctx context.Context, id uuid.UUID) error
	// UpdateValuation stores a fresh quote for one holding and recomputes its value
	// from the quantity currently stored, in a single row update.
	UpdateValuation(ctx context.Context, id uuid.UUID, nativePrice, homePrice decimal.Decimal) (domain.Holding, error)
	RecordHistory(ctx context.Context, rec domain.HoldingHistory) error
	ListTransactions(ctx context.Context, holdingID uuid.UUID) ([]domain.Transaction, error)
	ListHistory(ctx context.Context, holdingID uuid.UUID, since time.Time) ([]domain.HoldingHistory, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the unit of work used by trades and cash movements. Rows read through
// the Lock methods stay locked until the transaction ends.
type Tx interface {
	// LockCash returns the locked cash holding. It may create an empty one first;
	// nil means none exists.
	LockCash(ctx context.Context) (*domain.Holding, error)
	// LockByID returns the holding with the given id, or domain.ErrNotFound.
	LockByID(ctx context.Context, id uuid.UUID) (*domain.Holding, error)
	// LockByTicker returns the holding with the given ticker, or nil.
	LockByTicker(ctx context.Context, ticker string) (*domain.Holding, error)
	Save(ctx context.Context, h *domain.Holding) error
	AddTransaction(ctx context.Context, t *domain.Transaction) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const holdingColumns = `id, category, name, ticker, quantity, average_cost, native_price,
	current_price, current_value, currency, total_cost, created_at, updated_at`

// PgRepository implements Repository with PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL holding repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) List(ctx context.Context, category domain.Category) ([]domain.Holding, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+holdingColumns+` FROM holdings
		 WHERE $1 = '' OR category = $1
		 ORDER BY category, name`, string(category))
	if err != nil {
		return nil, fmt.Errorf("listing holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating holdings: %w", err)
	}
	return holdings, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (domain.Holding, error) {
	h, err := scanHolding(r.pool.QueryRow(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Holding{}, domain.ErrNotFound
		}
		return domain.Holding{}, fmt.Errorf("getting holding %s: %w", id, err)
	}
	return h, nil
}

func (r *PgRepository) Create(ctx context.Context, h *domain.Holding) error {
	return saveHolding(ctx, r.pool, h)
}

func (r *PgRepository) Update(ctx context.Context, h *domain.Holding) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE holdings SET category = $2, name = $3, ticker = $4, quantity = $5,
		        average_cost = $6, native_price = $7, current_price = $8, current_value = $9,
		        currency = $10, total_cost = $11, updated_at = NOW()
		 WHERE id = $1`,
		h.ID, string(h.Category), h.Name, lo.EmptyableToPtr(h.Ticker), h.Quantity,
		h.AverageCost, h.NativePrice, h.CurrentPrice, h.CurrentValue,
		string(h.Currency), h.TotalCost)
	if err != nil {
		return fmt.Errorf("updating holding %s: %w", h.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting holding %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgRepository) UpdateValuation(ctx context.Context, id uuid.UUID, nativePrice, homePrice decimal.Decimal) (domain.Holding, error) {
	h, err := scanHolding(r.pool.QueryRow(ctx,
		`UPDATE holdings
		 SET native_price = $2, current_price = $3,
		     current_value = ROUND($3::numeric * quantity, 2), updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+holdingColumns, id, nativePrice, homePrice))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Holding{}, domain.ErrNotFound
		}
		return domain.Holding{}, fmt.Errorf("updating valuation of %s: %w", id, err)
	}
	return h, nil
}

func (r *PgRepository) RecordHistory(ctx context.Context, rec domain.HoldingHistory) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO holding_histories (holding_id, record_date, price, value, quantity)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (holding_id, record_date)
		 DO UPDATE SET price = $3, value = $4, quantity = $5`,
		rec.HoldingID, rec.Date, rec.Price, rec.Value, rec.Quantity)
	if err != nil {
		return fmt.Errorf("recording history of %s: %w", rec.HoldingID, err)
	}
	return nil
}

func (r *PgRepository) ListTransactions(ctx context.Context, holdingID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, holding_id, type, quantity, price, fx_rate, currency, total_cost,
		        realized_gain, traded_at, note, created_at
		 FROM transactions WHERE holding_id = $1
		 ORDER BY traded_at DESC, created_at DESC`, holdingID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var typ, currency string
		if err := rows.Scan(&t.ID, &t.HoldingID, &typ, &t.Quantity, &t.Price, &t.FXRate,
			&currency, &t.TotalCost, &t.RealizedGain, &t.TradedAt, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Type = domain.TransactionType(typ)
		t.Currency = domain.Currency(currency)
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transactions: %w", err)
	}
	return txs, nil
}

func (r *PgRepository) ListHistory(ctx context.Context, holdingID uuid.UUID, since time.Time) ([]domain.HoldingHistory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT holding_id, record_date, price, value, quantity
		 FROM holding_histories
		 WHERE holding_id = $1 AND record_date >= $2
		 ORDER BY record_date`, holdingID, since)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var recs []domain.HoldingHistory
	for rows.Next() {
		var h domain.HoldingHistory
		if err := rows.Scan(&h.HoldingID, &h.Date, &h.Price, &h.Value, &h.Quantity); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		recs = append(recs, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return recs, nil
}

// InTx runs fn inside a database transaction, committing when fn returns nil.
func (r *PgRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

// LockCash inserts an empty cash row when none exists so that there is always a row
// to lock. Concurrent first deposits then queue on it instead of racing to insert.
func (t *pgTx) LockCash(ctx context.Context) (*domain.Holding, error) {
	empty := domain.NewCashHolding(decimal.Zero)
	_, err := t.tx.Exec(ctx,
		`INSERT INTO holdings (id, category, name, quantity, average_cost, current_price,
		                       current_value, currency, total_cost)
		 VALUES ($1, 'cash', $2, 0, $3, $4, 0, $5, 0)
		 ON CONFLICT (category) WHERE category = 'cash' DO NOTHING`,
		uuid.New(), empty.Name, empty.AverageCost, empty.CurrentPrice, string(empty.Currency))
	if err != nil {
		return nil, fmt.Errorf("ensuring cash holding: %w", err)
	}
	return lockOne(ctx, t.tx,
		`SELECT `+holdingColumns+` FROM holdings WHERE category = 'cash' FOR UPDATE`)
}

func (t *pgTx) LockByID(ctx context.Context, id uuid.UUID) (*domain.Holding, error) {
	h, err := lockOne(ctx, t.tx,
		`SELECT `+holdingColumns+` FROM holdings WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, domain.ErrNotFound
	}
	return h, nil
}

func (t *pgTx) LockByTicker(ctx context.Context, ticker string) (*domain.Holding, error) {
	return lockOne(ctx, t.tx,
		`SELECT `+holdingColumns+` FROM holdings WHERE ticker = $1 FOR UPDATE`, ticker)
}

func (t *pgTx) Save(ctx context.Context, h *domain.Holding) error {
	return saveHolding(ctx, t.tx, h)
}

func (t *pgTx) AddTransaction(ctx context.Context, tr *domain.Transaction) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	err := t.tx.QueryRow(ctx,
		`INSERT INTO transactions (id, holding_id, type, quantity, price, fx_rate, currency,
		                           total_cost, realized_gain, traded_at, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		tr.ID, tr.HoldingID, string(tr.Type), tr.Quantity, tr.Price, tr.FXRate,
		string(tr.Currency), tr.TotalCost, tr.RealizedGain, tr.TradedAt, tr.Note).Scan(&tr.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

func lockOne(ctx context.Context, q querier, sql string, args ...any) (*domain.Holding, error) {
	h, err := scanHolding(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("locking holding: %w", err)
	}
	return &h, nil
}

func saveHolding(ctx context.Context, q querier, h *domain.Holding) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	err := q.QueryRow(ctx,
		`INSERT INTO holdings (id, category, name, ticker, quantity, average_cost, native_price,
		                       current_price, current_value, currency, total_cost)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		     category = $2, name = $3, ticker = $4, quantity = $5, average_cost = $6,
		     native_price = $7, current_price = $8, current_value = $9, currency = $10,
		     total_cost = $11, updated_at = NOW()
		 RETURNING created_at, updated_at`,
		h.ID, string(h.Category), h.Name, lo.EmptyableToPtr(h.Ticker), h.Quantity,
		h.AverageCost, h.NativePrice, h.CurrentPrice, h.CurrentValue,
		string(h.Currency), h.TotalCost).Scan(&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving holding %s: %w", h.ID, err)
	}
	return nil
}

func scanHolding(row pgx.Row) (domain.Holding, error) {
	var h domain.Holding
	var category, currency string
	var ticker *string
	err := row.Scan(&h.ID, &category, &h.Name, &ticker, &h.Quantity, &h.AverageCost,
		&h.NativePrice, &h.CurrentPrice, &h.CurrentValue, &currency, &h.TotalCost,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return domain.Holding{}, err
	}
	h.Category = domain.Category(category)
	h.Currency = domain.Currency(currency)
	h.Ticker = lo.FromPtr(ticker)
	return h, nil
}
