package rates

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"zkypee/internal/cache"
	"zkypee/pkg/logger"
	"zkypee/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Service owns the active rate table and answers lookups against it.
// Swapping the table is atomic; callers that already hold a Result keep their rate.
type Service struct {
	current     atomic.Pointer[Resolver]
	defaultRate decimal.Decimal

	cache    cache.Cache
	cacheTTL time.Duration
}

type Option func(*Service)

// WithCache memoizes resolutions per table version.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

func NewService(t *Table, defaultRate decimal.Decimal, opts ...Option) *Service {
	s := &Service{defaultRate: defaultRate}
	for _, o := range opts {
		o(s)
	}
	s.current.Store(NewResolver(t, defaultRate))
	return s
}

func (s *Service) Table() *Table { return s.current.Load().Table() }

// Swap replaces the active table.
func (s *Service) Swap(t *Table) {
	s.current.Store(NewResolver(t, s.defaultRate))
}

var ErrEmptyTable = errors.New("rates: refusing to load an empty table")

// Reload reads path and swaps it in. The active table is kept when the file
// is unreadable or yields no records.
func (s *Service) Reload(path string, log *slog.Logger) error {
	t, err := ReadFile(path, log)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		return ErrEmptyTable
	}
	s.Swap(t)
	return nil
}

// Resolve looks number up in the active table, going through the cache when configured.
// Cache failures never fail a lookup.
func (s *Service) Resolve(ctx context.Context, number string) Result {
	r := s.current.Load()
	if s.cache == nil {
		return s.observe(r.Resolve(number))
	}

	key := "rate:" + r.Table().Version() + ":" + cleanNumber(number)
	log := logger.From(ctx)
	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Debug("rate cache get failed", "err", err)
	} else if ok {
		var res Result
		if err := json.Unmarshal(b, &res); err == nil {
			return res
		}
	}

	res := s.observe(r.Resolve(number))
	if b, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, key, b, s.cacheTTL); err != nil {
			log.Debug("rate cache set failed", "err", err)
		}
	}
	return res
}

// GuessCountryCode is the country-code lookup exposed to clients.
func (s *Service) GuessCountryCode(ctx context.Context, number string) (string, bool) {
	res := s.Resolve(ctx, number)
	return res.CountryCode, res.Found
}

func (s *Service) observe(res Result) Result {
	metrics.RateLookups.WithLabelValues(string(res.Tier)).Inc()
	return res
}
