package store

import (
	"context"
	"time"
)

// TrendSnapshot is a participant-state count for one assessment at one instant.
type TrendSnapshot struct {
	ID           int64
	RunID        string
	AssessmentID int64
	NotLoggedIn  int
	LoggedIn     int
	InProgress   int
	Finished     int
	TimeCreated  time.Time
}

// TrendRepo stores trend snapshots. Snapshots are append-only.
type TrendRepo interface {
	// Append stores a new snapshot.
	Append(ctx context.Context, snap TrendSnapshot) error

	// List returns every snapshot of an assessment ordered by TimeCreated ascending.
	List(ctx context.Context, assessmentID int64) ([]TrendSnapshot, error)

	// Count returns the number of snapshots of an assessment.
	Count(ctx context.Context, assessmentID int64) (int, error)
}

// DueEvent is an assessment due date materialised from the LMS event table.
type DueEvent struct {
	EventID       int64
	Module        string
	CourseID      int64
	InstanceID    int64
	Name          string
	TimeDue       time.Time
	Students      int
	CourseVisible bool
}

// DueEventFilter selects due events. Zero From/To leave the range open.
type DueEventFilter struct {
	Module        string
	From          time.Time // TimeDue >= From
	To            time.Time // TimeDue < To
	IncludeHidden bool
}

// DueEventRepo maintains the due-event index.
type DueEventRepo interface {
	// NextGeneration returns a new rebuild generation number.
	NextGeneration(ctx context.Context) (int64, error)

	// ReplaceBatch deletes the batch's event ids and inserts them again tagged
	// with generation, inside a single transaction.
	ReplaceBatch(ctx context.Context, generation int64, events []DueEvent) error

	// DeleteMissing removes events not written by generation.
	DeleteMissing(ctx context.Context, generation int64) (int64, error)

	// Query returns due events matching filter ordered by TimeDue.
	Query(ctx context.Context, filter DueEventFilter) ([]DueEvent, error)
}
