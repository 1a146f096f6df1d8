package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examwatch/internal/assessment"
)

var now = time.Unix(1594788000, 0).UTC()

type fakeLookup struct {
	users map[int64][]int64
	fail  map[int64]bool
	calls map[int64]int
}

func (f *fakeLookup) EligibleUsers(_ context.Context, w assessment.Window, _ []string) ([]int64, error) {
	if f.calls == nil {
		f.calls = make(map[int64]int)
	}
	f.calls[w.ID]++
	if f.fail[w.ID] {
		return nil, errors.New("lookup failed")
	}
	return f.users[w.ID], nil
}

func quiz(id int64, open, close time.Duration) assessment.Effective {
	return assessment.Resolve(assessment.Window{
		ID:            id,
		Module:        assessment.ModuleQuiz,
		CourseID:      1,
		Open:          now.Add(open),
		Close:         now.Add(close),
		CourseVisible: true,
	}, nil)
}

func newDetector(l EligibleLookup) *Detector {
	return NewDetector(l, assessment.ModuleQuiz, []string{"mod/quiz:attempt"}, zerolog.Nop())
}

func TestOverlaps(t *testing.T) {
	at := func(h int) time.Time { return now.Add(time.Duration(h) * time.Hour) }

	tests := []struct {
		name                       string
		aOpen, aClose, bOpen, bClose int
		want                       bool
	}{
		{"a starts inside b", 2, 5, 1, 3, true},
		{"a ends inside b", 1, 3, 2, 5, true},
		{"a contains b", 1, 6, 2, 5, true},
		{"touching", 1, 2, 2, 3, false},
		{"touching reversed", 2, 3, 1, 2, false},
		{"disjoint", 1, 2, 3, 4, false},
		{"identical windows", 1, 2, 1, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlaps(at(tt.aOpen), at(tt.aClose), at(tt.bOpen), at(tt.bClose))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_SharedUsers(t *testing.T) {
	lookup := &fakeLookup{users: map[int64][]int64{
		1: {10, 11, 12},
		2: {12, 11, 13},
	}}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(1, time.Hour, 3*time.Hour),
		quiz(2, 2*time.Hour, 4*time.Hour),
	}, now)

	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{EventID: 1, ConflictID: 2, SharedUserIDs: []int64{11, 12}}, pairs[0])
}

func TestDetect_TouchingIsNotConflict(t *testing.T) {
	lookup := &fakeLookup{users: map[int64][]int64{1: {10}, 2: {10}}}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(1, time.Hour, 2*time.Hour),
		quiz(2, 2*time.Hour, 3*time.Hour),
	}, now)
	assert.Empty(t, pairs)
}

func TestDetect_DisjointUsersSuppressed(t *testing.T) {
	lookup := &fakeLookup{users: map[int64][]int64{1: {10}, 2: {20}}}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(1, time.Hour, 3*time.Hour),
		quiz(2, 2*time.Hour, 4*time.Hour),
	}, now)
	assert.Empty(t, pairs)
}

func TestDetect_EmittedOnce(t *testing.T) {
	lookup := &fakeLookup{users: map[int64][]int64{1: {10}, 2: {10}}}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(2, 2*time.Hour, 4*time.Hour),
		quiz(1, time.Hour, 5*time.Hour),
	}, now)
	require.Len(t, pairs, 1)
	assert.Equal(t, int64(1), pairs[0].EventID)
	assert.Equal(t, int64(2), pairs[0].ConflictID)
}

func TestDetect_FirstMustStartAfterNow(t *testing.T) {
	lookup := &fakeLookup{users: map[int64][]int64{1: {10}, 2: {10}}}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(1, -time.Hour, 2*time.Hour),
		quiz(2, time.Hour, 3*time.Hour),
	}, now)

	require.Len(t, pairs, 1)
	assert.Equal(t, int64(2), pairs[0].EventID)
	assert.Equal(t, int64(1), pairs[0].ConflictID)

	// Neither starts after now.
	pairs = newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(1, -2*time.Hour, 2*time.Hour),
		quiz(2, -time.Hour, 3*time.Hour),
	}, now)
	assert.Empty(t, pairs)
}

func TestDetect_OtherModulesIgnored(t *testing.T) {
	a := quiz(1, time.Hour, 3*time.Hour)
	b := quiz(2, 2*time.Hour, 4*time.Hour)
	b.Module = assessment.ModuleAssign

	lookup := &fakeLookup{users: map[int64][]int64{1: {10}, 2: {10}}}
	assert.Empty(t, newDetector(lookup).Detect(context.Background(), []assessment.Effective{a, b}, now))
}

func TestDetect_LookupFailureSkipsOnlyAffectedPairs(t *testing.T) {
	lookup := &fakeLookup{
		users: map[int64][]int64{1: {10}, 3: {10}},
		fail:  map[int64]bool{2: true},
	}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		quiz(1, time.Hour, 4*time.Hour),
		quiz(2, 2*time.Hour, 5*time.Hour),
		quiz(3, 3*time.Hour, 6*time.Hour),
	}, now)

	require.Len(t, pairs, 1)
	assert.Equal(t, int64(1), pairs[0].EventID)
	assert.Equal(t, int64(3), pairs[0].ConflictID)
	assert.Equal(t, 1, lookup.calls[2], "failed lookup is not retried")
	assert.Equal(t, 1, lookup.calls[1])
}

func TestDetect_UsesOverrideWidenedWindows(t *testing.T) {
	base := assessment.Window{
		ID:       1,
		Module:   assessment.ModuleQuiz,
		CourseID: 1,
		Open:     now.Add(time.Hour),
		Close:    now.Add(2 * time.Hour),
	}
	late := now.Add(4 * time.Hour)
	widened := assessment.Resolve(base, []assessment.Override{{AssessmentID: 1, UserID: 10, Close: &late}})

	lookup := &fakeLookup{users: map[int64][]int64{1: {10}, 2: {10}}}
	pairs := newDetector(lookup).Detect(context.Background(), []assessment.Effective{
		widened,
		quiz(2, 3*time.Hour, 5*time.Hour),
	}, now)
	require.Len(t, pairs, 1)
}
