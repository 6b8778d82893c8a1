// Package snapshottest provides an in-memory snapshot.Repository for tests.
package snapshottest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/solosaving/backend/internal/domain"
	"github.com/solosaving/backend/internal/snapshot"
)

// Memory is a snapshot.Repository keyed by calendar date.
type Memory struct {
	mu    sync.Mutex
	byDay map[time.Time]domain.DailySnapshot
}

// NewMemory returns a Memory seeded with snapshots.
func NewMemory(snapshots ...domain.DailySnapshot) *Memory {
	m := &Memory{byDay: make(map[time.Time]domain.DailySnapshot)}
	for _, s := range snapshots {
		m.put(s)
	}
	return m
}

func (m *Memory) put(s domain.DailySnapshot) domain.DailySnapshot {
	s.Date = domain.DateOf(s.Date)
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.byDay[s.Date] = s
	return s
}

func (m *Memory) Insert(ctx context.Context, s *domain.DailySnapshot) error {
	ok, _ := m.InsertIfAbsent(ctx, s)
	if !ok {
		return &domain.DuplicateSnapshotError{Date: s.Date}
	}
	return nil
}

func (m *Memory) InsertIfAbsent(_ context.Context, s *domain.DailySnapshot) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byDay[domain.DateOf(s.Date)]; ok {
		return false, nil
	}
	*s = m.put(*s)
	return true, nil
}

func (m *Memory) Upsert(_ context.Context, s *domain.DailySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byDay[domain.DateOf(s.Date)]; ok {
		s.ID = old.ID
		s.CreatedAt = old.CreatedAt
	}
	*s = m.put(*s)
	return nil
}

func (m *Memory) Latest(context.Context) (domain.DailySnapshot, error) {
	all := m.All()
	if len(all) == 0 {
		return domain.DailySnapshot{}, domain.ErrNotFound
	}
	return all[len(all)-1], nil
}

func (m *Memory) LatestBefore(_ context.Context, date time.Time) (domain.DailySnapshot, error) {
	all := m.All()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Date.Before(domain.DateOf(date)) {
			return all[i], nil
		}
	}
	return domain.DailySnapshot{}, domain.ErrNotFound
}

func (m *Memory) GetByDate(_ context.Context, date time.Time) (domain.DailySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byDay[domain.DateOf(date)]
	if !ok {
		return domain.DailySnapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (m *Memory) List(_ context.Context, f snapshot.Filter) ([]domain.DailySnapshot, error) {
	if f.Limit <= 0 {
		f.Limit = 30
	}
	all := m.All()
	slices.Reverse(all)

	var out []domain.DailySnapshot
	for _, s := range all {
		if !f.Start.IsZero() && s.Date.Before(domain.DateOf(f.Start)) {
			continue
		}
		if !f.End.IsZero() && s.Date.After(domain.DateOf(f.End)) {
			continue
		}
		out = append(out, s)
		if len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Since(_ context.Context, start time.Time) ([]domain.DailySnapshot, error) {
	return slices.DeleteFunc(m.All(), func(s domain.DailySnapshot) bool {
		return s.Date.Before(domain.DateOf(start))
	}), nil
}

// All returns every stored snapshot, oldest first.
func (m *Memory) All() []domain.DailySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	days := slices.SortedFunc(maps.Keys(m.byDay), func(a, b time.Time) int { return a.Compare(b) })
	out := make([]domain.DailySnapshot, 0, len(days))
	for _, d := range days {
		out = append(out, m.byDay[d])
	}
	return out
}
