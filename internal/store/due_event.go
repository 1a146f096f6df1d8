package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// dueEventRepo implements DueEventRepo with the ent SQL builder.
type dueEventRepo struct {
	db      *sql.DB
	dialect string
	gen     *generationCounter
}

var dueEventColumns = []string{"event_id", "module", "course_id", "instance_id", "name", "time_due", "students", "course_visible", "generation"}

func (r *dueEventRepo) NextGeneration(ctx context.Context) (int64, error) {
	return r.gen.Next(ctx)
}

func (r *dueEventRepo) ReplaceBatch(ctx context.Context, generation int64, events []DueEvent) (err error) {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	ids := make([]any, len(events))
	for i, e := range events {
		ids[i] = e.EventID
	}
	b := entsql.Dialect(r.dialect)
	query, args := b.Delete(dueEventsTable.Name).Where(entsql.In("event_id", ids...)).Query()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}

	ins := b.Insert(dueEventsTable.Name).Columns(dueEventColumns...)
	for _, e := range events {
		ins.Values(e.EventID, e.Module, e.CourseID, e.InstanceID, e.Name, e.TimeDue.Unix(), e.Students, e.CourseVisible, generation)
	}
	query, args = ins.Query()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *dueEventRepo) DeleteMissing(ctx context.Context, generation int64) (int64, error) {
	query, args := entsql.Dialect(r.dialect).
		Delete(dueEventsTable.Name).
		Where(entsql.NEQ("generation", generation)).
		Query()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete stale due events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale due events: %w", err)
	}
	return n, nil
}

func (r *dueEventRepo) Query(ctx context.Context, filter DueEventFilter) ([]DueEvent, error) {
	var preds []*entsql.Predicate
	if filter.Module != "" {
		preds = append(preds, entsql.EQ("module", filter.Module))
	}
	if !filter.From.IsZero() {
		preds = append(preds, entsql.GTE("time_due", filter.From.Unix()))
	}
	if !filter.To.IsZero() {
		preds = append(preds, entsql.LT("time_due", filter.To.Unix()))
	}
	if !filter.IncludeHidden {
		preds = append(preds, entsql.EQ("course_visible", true))
	}

	b := entsql.Dialect(r.dialect)
	sel := b.Select(dueEventColumns[:8]...).
		From(b.Table(dueEventsTable.Name)).
		OrderBy(entsql.Asc("time_due"), entsql.Asc("event_id"))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	query, args := sel.Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due events: %w", err)
	}
	defer rows.Close()

	var out []DueEvent
	for rows.Next() {
		var (
			e   DueEvent
			due int64
		)
		if err := rows.Scan(&e.EventID, &e.Module, &e.CourseID, &e.InstanceID, &e.Name, &due, &e.Students, &e.CourseVisible); err != nil {
			return nil, fmt.Errorf("scan due event: %w", err)
		}
		e.TimeDue = time.Unix(due, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due events: %w", err)
	}
	return out, nil
}
