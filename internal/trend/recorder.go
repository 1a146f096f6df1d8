// Package trend records participant-state counts over time.
package trend

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/examwatch/internal/participant"
	"github.com/abhisek/examwatch/internal/store"
)

// Point is one recorded count.
type Point struct {
	RunID  string             `json:"run_id"`
	At     time.Time          `json:"at"`
	Counts participant.Counts `json:"counts"`
}

// Recorder appends snapshots and reads downsampled series.
type Recorder struct {
	repo store.TrendRepo
	log  zerolog.Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo store.TrendRepo, log zerolog.Logger) *Recorder {
	return &Recorder{repo: repo, log: log}
}

// Record appends a snapshot. Snapshots are never updated.
func (r *Recorder) Record(ctx context.Context, runID string, assessmentID int64, counts participant.Counts, at time.Time) error {
	err := r.repo.Append(ctx, store.TrendSnapshot{
		RunID:        runID,
		AssessmentID: assessmentID,
		NotLoggedIn:  counts.NotLoggedIn,
		LoggedIn:     counts.LoggedIn,
		InProgress:   counts.InProgress,
		Finished:     counts.Finished,
		TimeCreated:  at,
	})
	if err != nil {
		return fmt.Errorf("record trend of %d: %w", assessmentID, err)
	}
	r.log.Debug().Int64("assessment_id", assessmentID).Str("run_id", runID).Msg("trend recorded")
	return nil
}

// Series returns the snapshots of an assessment in time order. With a
// positive limit and at least limit snapshots, only every Nth snapshot is
// kept, N = round(count/limit).
func (r *Recorder) Series(ctx context.Context, assessmentID int64, limit int) ([]Point, error) {
	snaps, err := r.repo.List(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load trend of %d: %w", assessmentID, err)
	}

	step := Step(len(snaps), limit)
	out := make([]Point, 0, len(snaps)/step+1)
	for i := 0; i < len(snaps); i += step {
		s := snaps[i]
		out = append(out, Point{
			RunID: s.RunID,
			At:    s.TimeCreated,
			Counts: participant.Counts{
				NotLoggedIn: s.NotLoggedIn,
				LoggedIn:    s.LoggedIn,
				InProgress:  s.InProgress,
				Finished:    s.Finished,
			},
		})
	}
	return out, nil
}

// Step returns the sampling interval for count snapshots under limit.
func Step(count, limit int) int {
	if limit <= 0 || count < limit {
		return 1
	}
	n := int(math.Round(float64(count) / float64(limit)))
	if n < 1 {
		n = 1
	}
	return n
}
