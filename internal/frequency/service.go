package frequency

import (
	"cmp"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/abhisek/examwatch/internal/ordering"
)

// DefaultTTL is how long a fetched event set is served from the cache.
const DefaultTTL = time.Hour

// Query selects events of one metric with Time in [From, To). A zero To
// ends the range at the end of From's year. An empty Module matches every
// module.
type Query struct {
	Metric   Metric
	Module   string
	From     time.Time
	To       time.Time
	UseCache bool
}

// Year returns a query covering one calendar year (UTC).
func Year(m Metric, module string, year int, useCache bool) Query {
	return Query{Metric: m, Module: module, From: yearStart(year), To: yearStart(year + 1), UseCache: useCache}
}

// Service answers frequency queries. Raw event sets are cached per
// (metric, module, year); range filtering happens in process.
type Service struct {
	cache *Cache
	group singleflight.Group
	log   zerolog.Logger

	mu       sync.RWMutex
	fetchers map[Metric]Fetcher
	ttl      time.Duration
}

// NewService creates a frequency service. A non-positive ttl uses DefaultTTL.
func NewService(cache *Cache, fetchers map[Metric]Fetcher, ttl time.Duration, log zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{cache: cache, fetchers: fetchers, ttl: ttl, log: log}
}

// Purge drops every cached event set.
func (s *Service) Purge() {
	s.cache.Purge()
	s.log.Debug().Msg("frequency cache purged")
}

// Reconfigure swaps the fetchers and ttl and purges the cache, so no entry
// fetched under the old settings is served.
func (s *Service) Reconfigure(fetchers map[Metric]Fetcher, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	s.fetchers = fetchers
	s.ttl = ttl
	s.cache.Purge()
	s.mu.Unlock()
	s.log.Debug().Dur("ttl", ttl).Msg("frequency service reconfigured")
}

// Events returns the events matching q ordered by time.
func (s *Service) Events(ctx context.Context, q Query) ([]Event, error) {
	s.mu.RLock()
	f, ok := s.fetchers[q.Metric]
	ttl := s.ttl
	gen := s.cache.Generation()
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, q.Metric)
	}
	if q.From.IsZero() {
		return nil, fmt.Errorf("query %s: missing start of range", q.Metric)
	}
	from := q.From.UTC()
	to := q.To.UTC()
	if q.To.IsZero() {
		to = yearStart(from.Year() + 1)
	}
	if !to.After(from) {
		return nil, nil
	}

	var out []Event
	last := to.Add(-time.Nanosecond).Year()
	for y := from.Year(); y <= last; y++ {
		events, err := s.year(ctx, q.Metric, f, ttl, gen, q.Module, y, q.UseCache)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			if !e.Time.Before(from) && e.Time.Before(to) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// year returns the raw events of one cache key. Callers sharing a fetch each
// stop waiting on their own ctx; the fetch itself runs to completion and is
// only stored if the cache was not purged since gen.
func (s *Service) year(ctx context.Context, m Metric, f Fetcher, ttl time.Duration, gen uint64, module string, year int, useCache bool) ([]Event, error) {
	region := m.String()
	key := fmt.Sprintf("%s:%d", moduleKey(module), year)
	if useCache {
		if events, ok := s.cache.Get(region, key); ok {
			s.log.Debug().Str("region", region).Str("key", key).Msg("frequency cache hit")
			return events, nil
		}
	}

	flight := fmt.Sprintf("%s/%s/%d", region, key, gen)
	ch := s.group.DoChan(flight, func() (any, error) {
		events, err := f.Fetch(context.WithoutCancel(ctx), module, yearStart(year), yearStart(year+1))
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s: %w", region, key, err)
		}
		// An empty result is not stored so new data shows up on the next query.
		if len(events) > 0 && !s.cache.SetIfGeneration(gen, region, key, events, ttl) {
			s.log.Debug().Str("region", region).Str("key", key).Msg("dropped events fetched before purge")
		}
		return events, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]Event), nil
	}
}

func moduleKey(module string) string {
	if module == "" {
		return "*"
	}
	return module
}

func yearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// Counts maps a bucket label to a weighted event count.
type Counts map[string]int

// Total sums every bucket.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (s *Service) count(ctx context.Context, q Query, label func(Event) string) (Counts, error) {
	events, err := s.Events(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make(Counts)
	for _, e := range events {
		out[label(e)] += e.Weight
	}
	return out, nil
}

// PerDay counts events by calendar day (YYYY-MM-DD, UTC).
func (s *Service) PerDay(ctx context.Context, q Query) (Counts, error) {
	return s.count(ctx, q, func(e Event) string { return e.Time.UTC().Format(time.DateOnly) })
}

// PerMonth counts events by calendar month (YYYY-MM, UTC).
func (s *Service) PerMonth(ctx context.Context, q Query) (Counts, error) {
	return s.count(ctx, q, func(e Event) string { return e.Time.UTC().Format("2006-01") })
}

// PerActivity counts events by module.
func (s *Service) PerActivity(ctx context.Context, q Query) (Counts, error) {
	return s.count(ctx, q, func(e Event) string { return e.Module })
}

var eventFields = ordering.Fields[Event]{
	"time":   func(a, b Event) int { return a.Time.Compare(b.Time) },
	"id":     func(a, b Event) int { return cmp.Compare(a.EventID, b.EventID) },
	"name":   func(a, b Event) int { return cmp.Compare(a.Name, b.Name) },
	"module": func(a, b Event) int { return cmp.Compare(a.Module, b.Module) },
	"course": func(a, b Event) int { return cmp.Compare(a.CourseID, b.CourseID) },
	"weight": func(a, b Event) int { return cmp.Compare(a.Weight, b.Weight) },
}

// DayEvents returns the events of the UTC day containing q.From sorted by
// order. q.To is ignored.
func (s *Service) DayEvents(ctx context.Context, q Query, order []ordering.Ordering) ([]Event, error) {
	from := q.From.UTC()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	q.From, q.To = day, day.AddDate(0, 0, 1)

	events, err := s.Events(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := eventFields.Sort(events, order); err != nil {
		return nil, err
	}
	return events, nil
}
