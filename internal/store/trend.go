package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// trendRepo implements TrendRepo with the ent SQL builder.
type trendRepo struct {
	db      *sql.DB
	dialect string
}

func (r *trendRepo) Append(ctx context.Context, snap TrendSnapshot) error {
	if snap.TimeCreated.IsZero() {
		snap.TimeCreated = time.Now()
	}
	query, args := entsql.Dialect(r.dialect).
		Insert(trendSnapshotsTable.Name).
		Columns("run_id", "assessment_id", "not_logged_in", "logged_in", "in_progress", "finished", "time_created").
		Values(snap.RunID, snap.AssessmentID, snap.NotLoggedIn, snap.LoggedIn, snap.InProgress, snap.Finished, snap.TimeCreated.Unix()).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save trend snapshot: %w", err)
	}
	return nil
}

func (r *trendRepo) List(ctx context.Context, assessmentID int64) ([]TrendSnapshot, error) {
	b := entsql.Dialect(r.dialect)
	query, args := b.Select("id", "run_id", "assessment_id", "not_logged_in", "logged_in", "in_progress", "finished", "time_created").
		From(b.Table(trendSnapshotsTable.Name)).
		Where(entsql.EQ("assessment_id", assessmentID)).
		OrderBy(entsql.Asc("time_created"), entsql.Asc("id")).
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trend snapshots: %w", err)
	}
	defer rows.Close()

	var out []TrendSnapshot
	for rows.Next() {
		var (
			s       TrendSnapshot
			created int64
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.AssessmentID, &s.NotLoggedIn, &s.LoggedIn, &s.InProgress, &s.Finished, &created); err != nil {
			return nil, fmt.Errorf("scan trend snapshot: %w", err)
		}
		s.TimeCreated = time.Unix(created, 0).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trend snapshots: %w", err)
	}
	return out, nil
}

func (r *trendRepo) Count(ctx context.Context, assessmentID int64) (int, error) {
	b := entsql.Dialect(r.dialect)
	query, args := b.Select(entsql.Count("*")).
		From(b.Table(trendSnapshotsTable.Name)).
		Where(entsql.EQ("assessment_id", assessmentID)).
		Query()

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trend snapshots: %w", err)
	}
	return n, nil
}
