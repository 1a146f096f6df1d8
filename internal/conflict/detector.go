package conflict

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/examwatch/internal/assessment"
)

// EligibleLookup returns the users allowed to take an assessment.
type EligibleLookup interface {
	EligibleUsers(ctx context.Context, w assessment.Window, capabilities []string) ([]int64, error)
}

// Pair is two overlapping assessments sharing at least one user.
type Pair struct {
	EventID       int64   `json:"event_id"`
	ConflictID    int64   `json:"conflict_id"`
	SharedUserIDs []int64 `json:"shared_user_ids"`
}

// Detector finds overlapping assessments of one module type.
type Detector struct {
	lookup       EligibleLookup
	module       assessment.Module
	capabilities []string
	log          zerolog.Logger
}

// NewDetector creates a detector for module, resolving users with capabilities.
func NewDetector(lookup EligibleLookup, module assessment.Module, capabilities []string, log zerolog.Logger) *Detector {
	return &Detector{lookup: lookup, module: module, capabilities: capabilities, log: log}
}

// Overlaps reports whether a overlaps b. Touching boundaries do not overlap,
// and the test is directional: Detect checks both directions.
func Overlaps(aOpen, aClose, bOpen, bClose time.Time) bool {
	return (aOpen.After(bOpen) && aOpen.Before(bClose)) ||
		(aClose.After(bOpen) && aClose.Before(bClose)) ||
		(aClose.After(bClose) && aOpen.Before(bOpen))
}

type eligibleSet struct {
	users map[int64]bool
	err   error
}

// Detect returns every pair of overlapping windows where the first starts
// after now and both share eligible users. A failed user lookup only skips
// the pairs involving that assessment.
func (d *Detector) Detect(ctx context.Context, windows []assessment.Effective, now time.Time) []Pair {
	var candidates []assessment.Effective
	for _, w := range windows {
		if w.Module != d.module || !w.Tracked() || w.EffectiveClose.IsZero() {
			continue
		}
		if w.EffectiveClose.Before(now) {
			continue
		}
		candidates = append(candidates, w)
	}
	slices.SortStableFunc(candidates, func(a, b assessment.Effective) int {
		if c := a.EffectiveOpen.Compare(b.EffectiveOpen); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	eligible := make(map[int64]eligibleSet)
	usersOf := func(w assessment.Effective) (map[int64]bool, error) {
		if s, ok := eligible[w.ID]; ok {
			return s.users, s.err
		}
		ids, err := d.lookup.EligibleUsers(ctx, w.Window, d.capabilities)
		s := eligibleSet{err: err}
		if err == nil {
			s.users = make(map[int64]bool, len(ids))
			for _, id := range ids {
				s.users[id] = true
			}
		} else {
			d.log.Warn().Err(err).Int64("assessment_id", w.ID).Msg("eligible users lookup failed, skipping its conflicts")
		}
		eligible[w.ID] = s
		return s.users, s.err
	}

	type key struct{ lo, hi int64 }
	seen := make(map[key]bool)
	var pairs []Pair

	for _, a := range candidates {
		if !a.EffectiveOpen.After(now) {
			continue
		}
		for _, b := range candidates {
			if a.ID == b.ID {
				continue
			}
			k := key{min(a.ID, b.ID), max(a.ID, b.ID)}
			if seen[k] {
				continue
			}
			if !Overlaps(a.EffectiveOpen, a.EffectiveClose, b.EffectiveOpen, b.EffectiveClose) {
				continue
			}
			seen[k] = true

			ua, err := usersOf(a)
			if err != nil {
				continue
			}
			ub, err := usersOf(b)
			if err != nil {
				continue
			}
			shared := intersect(ua, ub)
			if len(shared) == 0 {
				continue
			}
			pairs = append(pairs, Pair{EventID: a.ID, ConflictID: b.ID, SharedUserIDs: shared})
		}
	}
	d.log.Debug().Int("candidates", len(candidates)).Int("conflicts", len(pairs)).Msg("conflict detection done")
	return pairs
}

func intersect(a, b map[int64]bool) []int64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var out []int64
	for id := range a {
		if b[id] {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
