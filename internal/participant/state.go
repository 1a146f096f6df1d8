package participant

import "time"

// State is a user's live participation state for one assessment.
// The ordering is the resolution precedence, lowest first.
type State int

const (
	StateNotLoggedIn State = iota
	StateLoggedIn
	StateInProgress
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNotLoggedIn:
		return "notloggedin"
	case StateLoggedIn:
		return "loggedin"
	case StateInProgress:
		return "inprogress"
	case StateFinished:
		return "finished"
	}
	return "unknown"
}

// AttemptState mirrors the LMS attempt lifecycle.
type AttemptState string

const (
	AttemptInProgress AttemptState = "inprogress"
	AttemptOverdue    AttemptState = "overdue"
	AttemptFinished   AttemptState = "finished"
	AttemptAbandoned  AttemptState = "abandoned"
)

// Attempt is the most recent attempt of a user at an assessment.
type Attempt struct {
	UserID       int64
	AssessmentID int64
	State        AttemptState
	Start        time.Time
	Finish       time.Time
}

// Counts aggregates states over every eligible user.
type Counts struct {
	NotLoggedIn int `json:"not_logged_in"`
	LoggedIn    int `json:"logged_in"`
	InProgress  int `json:"in_progress"`
	Finished    int `json:"finished"`
}

// Total returns the number of classified users.
func (c Counts) Total() int {
	return c.NotLoggedIn + c.LoggedIn + c.InProgress + c.Finished
}

func (c *Counts) add(s State) {
	switch s {
	case StateFinished:
		c.Finished++
	case StateInProgress:
		c.InProgress++
	case StateLoggedIn:
		c.LoggedIn++
	default:
		c.NotLoggedIn++
	}
}
