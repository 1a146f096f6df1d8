package lms

import (
	"context"
	"fmt"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/participant"
)

type attemptRow struct {
	UserID     int64  `db:"userid"`
	State      string `db:"state"`
	TimeStart  int64  `db:"timestart"`
	TimeFinish int64  `db:"timefinish"`
}

// Rows are ordered newest first per user so the first row wins.
const quizAttemptsSQL = `
SELECT userid, state, timestart, timefinish
  FROM {quiz_attempts}
 WHERE quiz = ? AND preview = 0 AND userid IN (?)
 ORDER BY userid, attempt DESC, id DESC`

const assignSubmissionsSQL = `
SELECT userid, status AS state, timecreated AS timestart, timemodified AS timefinish
  FROM {assign_submission}
 WHERE assignment = ? AND latest = 1 AND userid IN (?)
 ORDER BY userid, attemptnumber DESC, id DESC`

// LatestAttempts returns the most recent attempt per user. Assignment
// submissions are mapped onto attempt states; new submissions count as no
// attempt.
func (s *Source) LatestAttempts(ctx context.Context, w assessment.Window, userIDs []int64) (map[int64]participant.Attempt, error) {
	var query string
	switch w.Module {
	case assessment.ModuleQuiz:
		query = quizAttemptsSQL
	case assessment.ModuleAssign:
		query = assignSubmissionsSQL
	default:
		return nil, fmt.Errorf("unsupported module %q", w.Module)
	}

	out := make(map[int64]participant.Attempt)
	seen := make(map[int64]bool)
	for _, chunk := range chunks(userIDs) {
		var rows []attemptRow
		if err := s.selectContext(ctx, &rows, query, w.Instance, chunk); err != nil {
			return nil, fmt.Errorf("query attempts of %d: %w", w.ID, err)
		}
		for _, r := range rows {
			if seen[r.UserID] {
				continue
			}
			seen[r.UserID] = true
			state, ok := attemptState(w.Module, r.State)
			if !ok {
				continue
			}
			out[r.UserID] = participant.Attempt{
				UserID:       r.UserID,
				AssessmentID: w.ID,
				State:        state,
				Start:        unixTime(r.TimeStart),
				Finish:       unixTime(r.TimeFinish),
			}
		}
	}
	return out, nil
}

func attemptState(module assessment.Module, raw string) (participant.AttemptState, bool) {
	if module == assessment.ModuleAssign {
		switch raw {
		case "submitted":
			return participant.AttemptFinished, true
		case "draft", "reopened":
			return participant.AttemptInProgress, true
		}
		return "", false
	}
	switch st := participant.AttemptState(raw); st {
	case participant.AttemptInProgress, participant.AttemptOverdue, participant.AttemptFinished, participant.AttemptAbandoned:
		return st, true
	}
	return "", false
}
