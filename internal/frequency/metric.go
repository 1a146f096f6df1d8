// Package frequency aggregates assessment due dates over time and caches the
// raw event sets behind the aggregates.
package frequency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abhisek/examwatch/internal/store"
)

// ErrUnknownMetric is returned for a metric outside the enum.
var ErrUnknownMetric = errors.New("unknown metric")

// Metric selects how due events are counted.
type Metric int

const (
	// Assessments counts each due event once.
	Assessments Metric = iota + 1
	// Students weights each due event by its enrolled students.
	Students
)

func (m Metric) String() string {
	switch m {
	case Assessments:
		return "assessments"
	case Students:
		return "students"
	}
	return fmt.Sprintf("metric(%d)", int(m))
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == Assessments || m == Students
}

// ParseMetric parses a metric name.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "assessments", "assessment":
		return Assessments, nil
	case "students", "student":
		return Students, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// Event is one due date with the weight it contributes to a count.
type Event struct {
	EventID    int64     `json:"event_id"`
	Module     string    `json:"module"`
	CourseID   int64     `json:"course_id"`
	InstanceID int64     `json:"instance_id"`
	Name       string    `json:"name"`
	Time       time.Time `json:"time"`
	Weight     int       `json:"weight"`
}

// Fetcher loads the events of one metric with Time in [from, to). An empty
// module matches every module.
type Fetcher interface {
	Fetch(ctx context.Context, module string, from, to time.Time) ([]Event, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, module string, from, to time.Time) ([]Event, error)

func (f FetcherFunc) Fetch(ctx context.Context, module string, from, to time.Time) ([]Event, error) {
	return f(ctx, module, from, to)
}

// Fetchers returns the due-event index backed fetcher of every metric.
func Fetchers(repo store.DueEventRepo, includeHidden bool) map[Metric]Fetcher {
	return map[Metric]Fetcher{
		Assessments: &indexFetcher{repo: repo, includeHidden: includeHidden, weight: func(store.DueEvent) int { return 1 }},
		Students:    &indexFetcher{repo: repo, includeHidden: includeHidden, weight: func(e store.DueEvent) int { return e.Students }},
	}
}

type indexFetcher struct {
	repo          store.DueEventRepo
	includeHidden bool
	weight        func(store.DueEvent) int
}

func (f *indexFetcher) Fetch(ctx context.Context, module string, from, to time.Time) ([]Event, error) {
	rows, err := f.repo.Query(ctx, store.DueEventFilter{
		Module:        module,
		From:          from,
		To:            to,
		IncludeHidden: f.includeHidden,
	})
	if err != nil {
		return nil, fmt.Errorf("query due events: %w", err)
	}
	var out []Event
	for _, r := range rows {
		w := f.weight(r)
		if w <= 0 {
			continue
		}
		out = append(out, Event{
			EventID:    r.EventID,
			Module:     r.Module,
			CourseID:   r.CourseID,
			InstanceID: r.InstanceID,
			Name:       r.Name,
			Time:       r.TimeDue,
			Weight:     w,
		})
	}
	return out, nil
}
