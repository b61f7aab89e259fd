package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	appLog "classgrid/internal/log"
	"classgrid/internal/model"
)

// Repository is the persistence the service reads and replaces.
type Repository interface {
	ReplaceAll(ctx context.Context, entries []model.ScheduleEntry) (model.StoreStats, error)
	Query(ctx context.Context, f model.Filter) ([]model.ScheduleEntry, error)
	ListDistinct(ctx context.Context, field model.Field) ([]string, error)
	Stats(ctx context.Context) (model.StoreStats, error)
}

const (
	defaultCacheTTL = 30 * time.Second
)

// Service answers schedule questions in one fixed reference zone. Every
// time-dependent call takes the instant to evaluate at; the service never
// reads the host clock.
type Service struct {
	repo Repository
	loc  *time.Location

	// mu serializes Replace against readers so no read straddles a swap.
	mu    sync.RWMutex
	cache *gocache.Cache
}

// Option customizes a Service.
type Option func(*Service)

// WithCacheTTL sets how long read results are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = gocache.New(ttl, 2*ttl)
	}
}

// NewService builds a Service over repo. A nil loc selects
// model.DefaultReferenceZone.
func NewService(repo Repository, loc *time.Location, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("schedule: repository is required")
	}
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(model.DefaultReferenceZone)
		if err != nil {
			return nil, fmt.Errorf("schedule: load reference zone: %w", err)
		}
	}
	s := &Service{
		repo:  repo,
		loc:   loc,
		cache: gocache.New(defaultCacheTTL, 2*defaultCacheTTL),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Location returns the reference zone.
func (s *Service) Location() *time.Location { return s.loc }

// Local converts an instant into the reference zone.
func (s *Service) Local(t time.Time) time.Time { return t.In(s.loc) }

// Replace swaps in a new collection and drops cached reads.
func (s *Service) Replace(ctx context.Context, entries []model.ScheduleEntry) (model.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, err := s.repo.ReplaceAll(ctx, entries)
	if err != nil {
		appLog.Error("schedule replace failed", err, "entries", len(entries))
		return model.StoreStats{}, err
	}
	if s.cache != nil {
		s.cache.Flush()
	}
	return stats, nil
}

// Query returns the stored entries matching f.
func (s *Service) Query(ctx context.Context, f model.Filter) ([]model.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := "query:" + f.CacheKey()
	if v, ok := s.cached(key); ok {
		return v.([]model.ScheduleEntry), nil
	}
	entries, err := s.repo.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	s.remember(key, entries)
	return entries, nil
}

// ListDistinct returns the distinct values of field, for filter menus.
func (s *Service) ListDistinct(ctx context.Context, field model.Field) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := "distinct:" + string(field)
	if v, ok := s.cached(key); ok {
		return v.([]string), nil
	}
	values, err := s.repo.ListDistinct(ctx, field)
	if err != nil {
		return nil, err
	}
	s.remember(key, values)
	return values, nil
}

// Stats describes the active collection.
func (s *Service) Stats(ctx context.Context) (model.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.Stats(ctx)
}

// DefaultDay is the weekday a day picker should preselect at asOf. It is
// empty on weekends.
func (s *Service) DefaultDay(asOf time.Time) model.Weekday {
	d, _ := model.WeekdayOf(s.Local(asOf).Weekday())
	return d
}

// Cached values are shared between callers and must be treated as
// read-only. Both helpers run under s.mu so a Replace cannot interleave
// between a repository read and its caching.
func (s *Service) cached(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) remember(key string, v any) {
	if s.cache != nil {
		s.cache.SetDefault(key, v)
	}
}
