package summary

import (
	"cmp"
	"slices"
	"time"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/ordering"
)

const (
	DefaultHorizon         = time.Hour
	DefaultUpcomingBuckets = 2
)

// Options tunes the bucketing.
type Options struct {
	// Horizon is the tracking buffer H around now.
	Horizon time.Duration
	// UpcomingBuckets is how many horizon-sized buckets after now are reported.
	UpcomingBuckets int
	// IncludeHidden keeps assessments of hidden courses.
	IncludeHidden bool
}

// DefaultOptions returns the dashboard defaults.
func DefaultOptions() Options {
	return Options{Horizon: DefaultHorizon, UpcomingBuckets: DefaultUpcomingBuckets}
}

// UpcomingBucket groups assessments opening within one horizon slot.
type UpcomingBucket struct {
	// Index n covers openings in (now+(n-1)H, now+nH].
	Index       int
	Offset      time.Duration
	Assessments []assessment.Effective
}

// Summary partitions a catalogue relative to one instant.
type Summary struct {
	Now        time.Time
	Horizon    time.Duration
	Upcoming   []UpcomingBucket
	InProgress []assessment.Effective
	Finished   []assessment.Effective
}

// UpcomingCount returns the number of assessments across all upcoming buckets.
func (s Summary) UpcomingCount() int {
	n := 0
	for _, b := range s.Upcoming {
		n += len(b.Assessments)
	}
	return n
}

var windowFields = ordering.Fields[assessment.Effective]{
	"open":  func(a, b assessment.Effective) int { return a.EffectiveOpen.Compare(b.EffectiveOpen) },
	"close": func(a, b assessment.Effective) int { return a.EffectiveClose.Compare(b.EffectiveClose) },
	"id":    func(a, b assessment.Effective) int { return cmp.Compare(a.ID, b.ID) },
	"name":  func(a, b assessment.Effective) int { return cmp.Compare(a.Name, b.Name) },
}

var defaultCompare = windowFields.MustComparator([]ordering.Ordering{
	ordering.Asc("open"), ordering.Asc("close"), ordering.Asc("id"),
})

// Bucket partitions resolved windows into upcoming, in-progress and finished.
// Windows without a configured open time are never tracked.
func Bucket(windows []assessment.Effective, now time.Time, opts Options) Summary {
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultHorizon
	}
	if opts.UpcomingBuckets < 0 {
		opts.UpcomingBuckets = 0
	}
	h := opts.Horizon

	s := Summary{Now: now, Horizon: h}
	upcoming := make(map[int][]assessment.Effective)

	for _, w := range windows {
		if !w.Tracked() {
			continue
		}
		if !w.CourseVisible && !opts.IncludeHidden {
			continue
		}

		isUpcoming := false
		if idx, ok := upcomingIndex(w, now, h); ok && idx <= opts.UpcomingBuckets {
			upcoming[idx] = append(upcoming[idx], w)
			isUpcoming = true
		}
		if inProgress(w, now, h) {
			s.InProgress = append(s.InProgress, w)
			continue
		}
		if !isUpcoming && finished(w, now, h) {
			s.Finished = append(s.Finished, w)
		}
	}

	for idx := 1; idx <= opts.UpcomingBuckets; idx++ {
		ws, ok := upcoming[idx]
		if !ok {
			continue
		}
		sortWindows(ws)
		s.Upcoming = append(s.Upcoming, UpcomingBucket{
			Index:       idx,
			Offset:      time.Duration(idx) * h,
			Assessments: ws,
		})
	}
	sortWindows(s.InProgress)
	sortWindows(s.Finished)
	return s
}

// upcomingIndex returns ceil((open-now)/h) for windows opening after now.
func upcomingIndex(w assessment.Effective, now time.Time, h time.Duration) (int, bool) {
	if !w.EffectiveOpen.After(now) {
		return 0, false
	}
	d := w.EffectiveOpen.Sub(now)
	idx := int(d / h)
	if d%h != 0 {
		idx++
	}
	return idx, true
}

// inProgress keeps windows opening within one horizon and not closed for
// longer than one horizon. Both close clauses are kept as written so a
// polling gap never drops a short assessment.
func inProgress(w assessment.Effective, now time.Time, h time.Duration) bool {
	if w.EffectiveOpen.After(now.Add(h)) {
		return false
	}
	if w.EffectiveClose.IsZero() {
		return true
	}
	return w.EffectiveClose.After(now.Add(-h)) || w.EffectiveClose.After(now)
}

func finished(w assessment.Effective, now time.Time, h time.Duration) bool {
	return !w.EffectiveClose.IsZero() && w.EffectiveClose.Before(now.Add(-h))
}

func sortWindows(ws []assessment.Effective) {
	slices.SortStableFunc(ws, defaultCompare)
}

// Sort orders windows by a caller supplied ordering.
func Sort(ws []assessment.Effective, order []ordering.Ordering) error {
	return windowFields.Sort(ws, order)
}

// Filter returns the windows of one module type.
func Filter(ws []assessment.Effective, module assessment.Module) []assessment.Effective {
	return slices.DeleteFunc(slices.Clone(ws), func(w assessment.Effective) bool {
		return w.Module != module
	})
}
