package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	entsql "entgo.io/ent/dialect/sql"
)

// generationCounter hands out increasing rebuild generations for the
// due-event index. A rebuild tags every row it writes with its generation so
// rows from older generations can be swept once the scan completes.
//
// The mutex serializes within the process; the RETURNING clause makes the
// increment atomic at the database level.
type generationCounter struct {
	mu      sync.Mutex
	db      *sql.DB
	dialect string
}

func newGenerationCounter(db *sql.DB, dialect string) *generationCounter {
	return &generationCounter{db: db, dialect: dialect}
}

// seedGenerations makes sure the single counter row exists.
func seedGenerations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO generations (id, next_val) VALUES (1, 1) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("seed generations: %w", err)
	}
	return nil
}

// Next atomically returns the next generation and increments the counter.
func (gc *generationCounter) Next(ctx context.Context) (int64, error) {
	gc.mu.Lock()
	defer gc.mu.Unlock()

	b := entsql.Dialect(gc.dialect)
	query, args := b.Update("generations").
		Add("next_val", 1).
		Where(entsql.EQ("id", 1)).
		Query()

	var gen int64
	err := gc.db.QueryRowContext(ctx, query+` RETURNING next_val - 1`, args...).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("next generation: %w", err)
	}
	return gen, nil
}
