// Package holdingtest provides an in-memory holding.Repository for tests.
package holdingtest

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/holding"
)

// Memory is a holding.Repository backed by maps. InTx runs one transaction at a
// time against a copy of the state and publishes it only when fn succeeds.
type Memory struct {
	txMu sync.Mutex // serializes transactions, standing in for row locks

	mu           sync.Mutex
	holdings     map[uuid.UUID]domain.Holding
	transactions []domain.Transaction
	history      map[string]domain.HoldingHistory

	// FailValuation makes UpdateValuation fail for the given holding ids.
	FailValuation map[uuid.UUID]error
}

// NewMemory returns a Memory seeded with holdings.
func NewMemory(holdings ...domain.Holding) *Memory {
	m := &Memory{
		holdings: make(map[uuid.UUID]domain.Holding),
		history:  make(map[string]domain.HoldingHistory),
	}
	for _, h := range holdings {
		if h.ID == uuid.Nil {
			h.ID = uuid.New()
		}
		m.holdings[h.ID] = h
	}
	return m
}

func (m *Memory) List(_ context.Context, category domain.Category) ([]domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Holding
	for _, h := range m.holdings {
		if category == "" || h.Category == category {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b domain.Holding) int {
		if c := strings.Compare(string(a.Category), string(b.Category)); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (m *Memory) Get(_ context.Context, id uuid.UUID) (domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holdings[id]
	if !ok {
		return domain.Holding{}, domain.ErrNotFound
	}
	return h, nil
}

func (m *Memory) Create(_ context.Context, h *domain.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	h.CreatedAt = time.Now()
	h.UpdatedAt = h.CreatedAt
	m.holdings[h.ID] = *h
	return nil
}

func (m *Memory) Update(_ context.Context, h *domain.Holding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.holdings[h.ID]; !ok {
		return domain.ErrNotFound
	}
	h.UpdatedAt = time.Now()
	m.holdings[h.ID] = *h
	return nil
}

func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.holdings[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.holdings, id)
	m.transactions = slices.DeleteFunc(m.transactions, func(t domain.Transaction) bool {
		return t.HoldingID == id
	})
	return nil
}

func (m *Memory) UpdateValuation(_ context.Context, id uuid.UUID, nativePrice, homePrice decimal.Decimal) (domain.Holding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailValuation[id]; err != nil {
		return domain.Holding{}, err
	}
	h, ok := m.holdings[id]
	if !ok {
		return domain.Holding{}, domain.ErrNotFound
	}
	h.NativePrice = decimal.NewNullDecimal(nativePrice)
	h.Revalue(homePrice)
	h.UpdatedAt = time.Now()
	m.holdings[id] = h
	return h, nil
}

func (m *Memory) RecordHistory(_ context.Context, rec domain.HoldingHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history[rec.HoldingID.String()+"/"+rec.Date.Format(domain.DateLayout)] = rec
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, holdingID uuid.UUID) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, t := range m.transactions {
		if t.HoldingID == holdingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) ListHistory(_ context.Context, holdingID uuid.UUID, since time.Time) ([]domain.HoldingHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.HoldingHistory
	for _, rec := range m.history {
		if rec.HoldingID == holdingID && !rec.Date.Before(since) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.HoldingHistory) int { return a.Date.Compare(b.Date) })
	return out, nil
}

// Transactions returns every recorded transaction.
func (m *Memory) Transactions() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.transactions)
}

func (m *Memory) InTx(ctx context.Context, fn func(holding.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	tx := &memTx{holdings: maps.Clone(m.holdings)}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdings = tx.holdings
	m.transactions = append(m.transactions, tx.transactions...)
	return nil
}

type memTx struct {
	holdings     map[uuid.UUID]domain.Holding
	transactions []domain.Transaction
}

func (t *memTx) LockCash(context.Context) (*domain.Holding, error) {
	for _, h := range t.holdings {
		if h.IsCash() {
			return &h, nil
		}
	}
	return nil, nil
}

func (t *memTx) LockByID(_ context.Context, id uuid.UUID) (*domain.Holding, error) {
	h, ok := t.holdings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &h, nil
}

func (t *memTx) LockByTicker(_ context.Context, ticker string) (*domain.Holding, error) {
	for _, h := range t.holdings {
		if h.Ticker != "" && h.Ticker == ticker {
			return &h, nil
		}
	}
	return nil, nil
}

func (t *memTx) Save(_ context.Context, h *domain.Holding) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	t.holdings[h.ID] = *h
	return nil
}

func (t *memTx) AddTransaction(_ context.Context, tr *domain.Transaction) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	tr.CreatedAt = time.Now()
	t.transactions = append(t.transactions, *tr)
	return nil
}
