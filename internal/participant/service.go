package participant

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/examwatch/internal/assessment"
)

// EligibleUsers resolves the users enrolled in an assessment's course who
// hold every required capability.
type EligibleUsers interface {
	EligibleUsers(ctx context.Context, w assessment.Window, capabilities []string) ([]int64, error)
}

// Sessions reports which users have a session modified at or after since.
type Sessions interface {
	ActiveSessions(ctx context.Context, userIDs []int64, since time.Time) (map[int64]bool, error)
}

// Attempts returns the most recent attempt per user.
type Attempts interface {
	LatestAttempts(ctx context.Context, w assessment.Window, userIDs []int64) (map[int64]Attempt, error)
}

// Service gathers classifier input from the LMS collaborators.
type Service struct {
	eligible       EligibleUsers
	sessions       Sessions
	attempts       Attempts
	capabilities   []string
	sessionTimeout time.Duration
	log            zerolog.Logger
}

// NewService creates a participant service.
func NewService(eligible EligibleUsers, sessions Sessions, attempts Attempts, capabilities []string, sessionTimeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		eligible:       eligible,
		sessions:       sessions,
		attempts:       attempts,
		capabilities:   capabilities,
		sessionTimeout: sessionTimeout,
		log:            log,
	}
}

// Classify loads the eligible users of w with their sessions and attempts and
// classifies them at now.
func (s *Service) Classify(ctx context.Context, w assessment.Window, now time.Time) (Result, error) {
	users, err := s.eligible.EligibleUsers(ctx, w, s.capabilities)
	if err != nil {
		return Result{}, fmt.Errorf("eligible users for %d: %w", w.ID, err)
	}
	if len(users) == 0 {
		return Classify(Input{AssessmentID: w.ID, Now: now}), nil
	}

	active, err := s.sessions.ActiveSessions(ctx, users, now.Add(-s.sessionTimeout))
	if err != nil {
		return Result{}, fmt.Errorf("active sessions for %d: %w", w.ID, err)
	}
	attempts, err := s.attempts.LatestAttempts(ctx, w, users)
	if err != nil {
		return Result{}, fmt.Errorf("latest attempts for %d: %w", w.ID, err)
	}

	res := Classify(Input{
		AssessmentID: w.ID,
		Users:        users,
		Now:          now,
		Active:       active,
		Attempts:     attempts,
	})
	s.log.Debug().
		Int64("assessment_id", w.ID).
		Int("users", len(users)).
		Int("finished", res.Counts.Finished).
		Int("in_progress", res.Counts.InProgress).
		Int("logged_in", res.Counts.LoggedIn).
		Int("not_logged_in", res.Counts.NotLoggedIn).
		Msg("classified participants")
	return res, nil
}
