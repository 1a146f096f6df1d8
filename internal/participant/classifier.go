package participant

import (
	"sort"
	"time"
)

// Input is everything the classifier needs for one assessment at one instant.
type Input struct {
	AssessmentID int64
	Users        []int64
	Now          time.Time

	// Active holds users with a session modified within the session
	// timeout before Now.
	Active map[int64]bool
	// Attempts holds the latest attempt per user; users without one are absent.
	Attempts map[int64]Attempt
}

// Result is the outcome of classifying one assessment.
type Result struct {
	AssessmentID int64           `json:"assessment_id"`
	At           time.Time       `json:"at"`
	States       map[int64]State `json:"-"`
	Counts       Counts          `json:"counts"`
}

// UsersIn returns the ids of users in state s, sorted ascending.
func (r Result) UsersIn(s State) []int64 {
	var ids []int64
	for id, st := range r.States {
		if st == s {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Classify derives the state of every user in in.Users. It has no side
// effects and returns identical results for identical input.
func Classify(in Input) Result {
	res := Result{
		AssessmentID: in.AssessmentID,
		At:           in.Now,
		States:       make(map[int64]State, len(in.Users)),
	}
	for _, uid := range in.Users {
		if _, seen := res.States[uid]; seen {
			continue
		}
		st := classifyUser(in.Attempts[uid], in.Active[uid])
		res.States[uid] = st
		res.Counts.add(st)
	}
	return res
}

// classifyUser applies the precedence: attempt state first, then session
// freshness. The order must not change.
func classifyUser(a Attempt, active bool) State {
	switch a.State {
	case AttemptFinished, AttemptAbandoned:
		return StateFinished
	case AttemptInProgress, AttemptOverdue:
		return StateInProgress
	}
	if active {
		return StateLoggedIn
	}
	return StateNotLoggedIn
}
