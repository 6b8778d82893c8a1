package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/solosaving/backend/internal/domain"
)

// Source is the full market-data surface used by the application.
type Source interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	FXRate(ctx context.Context, pair string) (decimal.Decimal, error)
	History(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error)
	FXHistory(ctx context.Context, pair string, start, end time.Time) ([]domain.PricePoint, error)
}

// CachedSource memoizes successful lookups of another Source. Latest prices live for
// the given TTL; historical series for historyTTL since closed days do not change.
type CachedSource struct {
	next       Source
	cache      *cache.Cache
	ttl        time.Duration
	historyTTL time.Duration
}

// NewCachedSource wraps next with an in-memory cache.
func NewCachedSource(next Source, ttl, historyTTL time.Duration) *CachedSource {
	return &CachedSource{
		next:       next,
		cache:      cache.New(ttl, 2*historyTTL),
		ttl:        ttl,
		historyTTL: historyTTL,
	}
}

func (s *CachedSource) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return cachedValue(s, "price:"+symbol, s.ttl, func() (decimal.Decimal, error) {
		return s.next.LatestPrice(ctx, symbol)
	})
}

func (s *CachedSource) FXRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	return cachedValue(s, "fx:"+pair, s.ttl, func() (decimal.Decimal, error) {
		return s.next.FXRate(ctx, pair)
	})
}

func (s *CachedSource) History(ctx context.Context, symbol string, start, end time.Time) ([]domain.PricePoint, error) {
	return cachedValue(s, historyKey("history", symbol, start, end), s.historyTTL, func() ([]domain.PricePoint, error) {
		return s.next.History(ctx, symbol, start, end)
	})
}

func (s *CachedSource) FXHistory(ctx context.Context, pair string, start, end time.Time) ([]domain.PricePoint, error) {
	return cachedValue(s, historyKey("fxhistory", pair, start, end), s.historyTTL, func() ([]domain.PricePoint, error) {
		return s.next.FXHistory(ctx, pair, start, end)
	})
}

// Flush drops every cached entry.
func (s *CachedSource) Flush() {
	s.cache.Flush()
}

func historyKey(kind, symbol string, start, end time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", kind, symbol, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
}

func cachedValue[T any](s *CachedSource, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	s.cache.Set(key, v, ttl)
	return v, nil
}
