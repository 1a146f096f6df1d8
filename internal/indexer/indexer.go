// Package indexer rebuilds the due-event index from the LMS calendar.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/examwatch/internal/lms"
	"github.com/abhisek/examwatch/internal/store"
)

// DefaultBatchSize is the number of events written per transaction.
const DefaultBatchSize = 100

// Cursor is a forward-only stream of due events.
type Cursor interface {
	Next() bool
	Event() lms.DueEvent
	Err() error
	Close() error
}

// Source opens a cursor over every due event.
type Source interface {
	DueEvents(ctx context.Context) (Cursor, error)
}

type lmsSource struct{ src *lms.Source }

func (s lmsSource) DueEvents(ctx context.Context) (Cursor, error) {
	cur, err := s.src.DueEvents(ctx)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

// FromLMS adapts an LMS connection to Source.
func FromLMS(src *lms.Source) Source {
	return lmsSource{src: src}
}

// Stats summarises one rebuild.
type Stats struct {
	Generation int64         `json:"generation"`
	Rows       int           `json:"rows"`
	Batches    int           `json:"batches"`
	Removed    int64         `json:"removed"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Indexer copies due events into the store in batches.
type Indexer struct {
	src       Source
	repo      store.DueEventRepo
	batchSize int
	log       zerolog.Logger
}

// New creates an indexer. A non-positive batchSize uses DefaultBatchSize.
func New(src Source, repo store.DueEventRepo, batchSize int, log zerolog.Logger) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{src: src, repo: repo, batchSize: batchSize, log: log}
}

// Rebuild streams every due event into the index. Each batch replaces its
// event ids in one transaction; a failed batch is rolled back and stops the
// rebuild. Events missing from the LMS are removed only after a full scan.
func (ix *Indexer) Rebuild(ctx context.Context) (Stats, error) {
	start := time.Now()
	var stats Stats

	gen, err := ix.repo.NextGeneration(ctx)
	if err != nil {
		return stats, fmt.Errorf("start rebuild: %w", err)
	}
	stats.Generation = gen

	cur, err := ix.src.DueEvents(ctx)
	if err != nil {
		return stats, fmt.Errorf("open due events: %w", err)
	}
	defer cur.Close()

	batch := make([]store.DueEvent, 0, ix.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.repo.ReplaceBatch(ctx, gen, batch); err != nil {
			return fmt.Errorf("write batch %d: %w", stats.Batches+1, err)
		}
		stats.Batches++
		stats.Rows += len(batch)
		batch = batch[:0]
		return nil
	}

	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch = append(batch, toStore(cur.Event()))
		if len(batch) == ix.batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return stats, fmt.Errorf("read due events: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	removed, err := ix.repo.DeleteMissing(ctx, gen)
	if err != nil {
		return stats, err
	}
	stats.Removed = removed
	stats.Elapsed = time.Since(start)

	ix.log.Info().
		Int64("generation", gen).
		Int("rows", stats.Rows).
		Int("batches", stats.Batches).
		Int64("removed", removed).
		Dur("elapsed", stats.Elapsed).
		Msg("due-event index rebuilt")
	return stats, nil
}

func toStore(e lms.DueEvent) store.DueEvent {
	return store.DueEvent{
		EventID:       e.EventID,
		Module:        e.Module,
		CourseID:      e.CourseID,
		InstanceID:    e.InstanceID,
		Name:          e.Name,
		TimeDue:       e.TimeDue,
		Students:      e.Students,
		CourseVisible: e.CourseVisible,
	}
}
