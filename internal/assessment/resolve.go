package assessment

import "time"

// Effective is an assessment window widened by every eligible user override.
type Effective struct {
	Window
	EffectiveOpen  time.Time
	EffectiveClose time.Time

	// OverrideUsers counts distinct users whose override was applied.
	OverrideUsers int
	// EarliestOverride and LatestOverride are the outermost override bounds,
	// zero when no override set them.
	EarliestOverride time.Time
	LatestOverride   time.Time
}

// Resolve merges w with its overrides into a single tracking window.
// Overrides for other assessments are skipped. The result never narrows w.
func Resolve(w Window, overrides []Override) Effective {
	eff := Effective{
		Window:         w,
		EffectiveOpen:  w.Open,
		EffectiveClose: w.Close,
	}

	users := make(map[int64]struct{})
	for _, o := range overrides {
		if o.AssessmentID != w.ID {
			continue
		}
		applied := false
		if o.HasOpen() {
			applied = true
			if eff.EarliestOverride.IsZero() || o.Open.Before(eff.EarliestOverride) {
				eff.EarliestOverride = *o.Open
			}
			// An unconfigured base open stays unbounded.
			if w.Tracked() && o.Open.Before(eff.EffectiveOpen) {
				eff.EffectiveOpen = *o.Open
			}
		}
		if o.HasClose() {
			applied = true
			if o.Close.After(eff.LatestOverride) {
				eff.LatestOverride = *o.Close
			}
			// An open-ended base close stays open-ended.
			if !w.Close.IsZero() && o.Close.After(eff.EffectiveClose) {
				eff.EffectiveClose = *o.Close
			}
		}
		if o.TimeLimit != nil {
			applied = true
		}
		if applied {
			users[o.UserID] = struct{}{}
		}
	}
	eff.OverrideUsers = len(users)
	return eff
}

// ResolveUser returns the window a single user sees: every field the override
// sets replaces the base value.
func ResolveUser(w Window, o *Override) Window {
	if o == nil || o.AssessmentID != w.ID {
		return w
	}
	uw := w
	if o.HasOpen() {
		uw.Open = *o.Open
	}
	if o.HasClose() {
		uw.Close = *o.Close
	}
	if o.TimeLimit != nil {
		uw.TimeLimit = *o.TimeLimit
	}
	return uw
}

// FilterEligible drops overrides belonging to users outside eligible.
func FilterEligible(overrides []Override, eligible map[int64]bool) []Override {
	var kept []Override
	for _, o := range overrides {
		if eligible[o.UserID] {
			kept = append(kept, o)
		}
	}
	return kept
}

// ResolveAll resolves every window of a catalogue against the overrides
// grouped by assessment id.
func ResolveAll(windows []Window, overrides map[int64][]Override) []Effective {
	out := make([]Effective, 0, len(windows))
	for _, w := range windows {
		out = append(out, Resolve(w, overrides[w.ID]))
	}
	return out
}

// Contains reports whether t falls inside the effective window, treating a
// zero close as open-ended.
func (e Effective) Contains(t time.Time) bool {
	if !e.Tracked() || t.Before(e.EffectiveOpen) {
		return false
	}
	return e.EffectiveClose.IsZero() || t.Before(e.EffectiveClose)
}
