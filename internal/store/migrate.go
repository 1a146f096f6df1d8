package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// trendSnapshotsColumns holds the columns for the "trend_snapshots" table.
	trendSnapshotsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "run_id", Type: field.TypeString, Size: 36},
		{Name: "assessment_id", Type: field.TypeInt64},
		{Name: "not_logged_in", Type: field.TypeInt},
		{Name: "logged_in", Type: field.TypeInt},
		{Name: "in_progress", Type: field.TypeInt},
		{Name: "finished", Type: field.TypeInt},
		{Name: "time_created", Type: field.TypeInt64},
	}
	trendSnapshotsTable = &schema.Table{
		Name:       "trend_snapshots",
		Columns:    trendSnapshotsColumns,
		PrimaryKey: []*schema.Column{trendSnapshotsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "trendsnapshot_assessment_id_time_created",
				Columns: []*schema.Column{trendSnapshotsColumns[2], trendSnapshotsColumns[7]},
			},
			{
				Name:    "trendsnapshot_run_id",
				Columns: []*schema.Column{trendSnapshotsColumns[1]},
			},
		},
	}

	// dueEventsColumns holds the columns for the "due_events" table.
	dueEventsColumns = []*schema.Column{
		{Name: "event_id", Type: field.TypeInt64},
		{Name: "module", Type: field.TypeString, Size: 32},
		{Name: "course_id", Type: field.TypeInt64},
		{Name: "instance_id", Type: field.TypeInt64},
		{Name: "name", Type: field.TypeString, Size: 1333},
		{Name: "time_due", Type: field.TypeInt64},
		{Name: "students", Type: field.TypeInt, Default: 0},
		{Name: "course_visible", Type: field.TypeBool, Default: true},
		{Name: "generation", Type: field.TypeInt64},
	}
	dueEventsTable = &schema.Table{
		Name:       "due_events",
		Columns:    dueEventsColumns,
		PrimaryKey: []*schema.Column{dueEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "dueevent_module_time_due",
				Columns: []*schema.Column{dueEventsColumns[1], dueEventsColumns[5]},
			},
			{
				Name:    "dueevent_generation",
				Columns: []*schema.Column{dueEventsColumns[8]},
			},
		},
	}

	// generationsColumns holds the columns for the "generations" table.
	generationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_val", Type: field.TypeInt64, Default: 1},
	}
	generationsTable = &schema.Table{
		Name:       "generations",
		Columns:    generationsColumns,
		PrimaryKey: []*schema.Column{generationsColumns[0]},
	}

	tables = []*schema.Table{
		trendSnapshotsTable,
		dueEventsTable,
		generationsTable,
	}
)

// migrate creates or updates the store tables.
func (s *Store) migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(s.drv)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return seedGenerations(ctx, s.db)
}
