package lms

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// DueEvent is a calendar event marking an assessment due date.
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

type dueEventRow struct {
	ID            int64  `db:"id"`
	Module        string `db:"modulename"`
	CourseID      int64  `db:"courseid"`
	Instance      int64  `db:"instance"`
	Name          string `db:"name"`
	TimeStart     int64  `db:"timestart"`
	Students      int    `db:"students"`
	CourseVisible int64  `db:"coursevisible"`
}

const dueEventsSQL = `
SELECT ev.id, ev.modulename, ev.courseid, ev.instance, ev.name, ev.timestart,
       c.visible AS coursevisible,
       (SELECT COUNT(DISTINCT ue.userid)
          FROM {user_enrolments} ue
          JOIN {enrol} e ON e.id = ue.enrolid
         WHERE e.courseid = ev.courseid AND e.status = 0 AND ue.status = 0) AS students
  FROM {event} ev
  JOIN {course} c ON c.id = ev.courseid
 WHERE ev.modulename IN (?) AND ev.eventtype IN (?) AND ev.visible = 1
 ORDER BY ev.id`

var (
	dueModules    = []string{"quiz", "assign"}
	dueEventTypes = []string{"due", "close"}
)

// EventCursor streams due events. It is read once from start to end and
// cannot be rewound; callers must drain it or call Close.
type EventCursor struct {
	rows   *sqlx.Rows
	cur    DueEvent
	err    error
	closed bool
}

// DueEvents opens a cursor over every visible quiz and assignment due event.
func (s *Source) DueEvents(ctx context.Context) (*EventCursor, error) {
	query, args, err := s.sql(dueEventsSQL, dueModules, dueEventTypes)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due events: %w", err)
	}
	return &EventCursor{rows: rows}, nil
}

// Next advances to the next event. It returns false when the cursor is
// exhausted or failed; check Err afterwards.
func (c *EventCursor) Next() bool {
	if c.closed {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}
	var r dueEventRow
	if err := c.rows.StructScan(&r); err != nil {
		c.err = fmt.Errorf("scan due event: %w", err)
		c.Close()
		return false
	}
	c.cur = DueEvent{
		EventID:       r.ID,
		Module:        r.Module,
		CourseID:      r.CourseID,
		InstanceID:    r.Instance,
		Name:          r.Name,
		TimeDue:       unixTime(r.TimeStart),
		Students:      r.Students,
		CourseVisible: r.CourseVisible != 0,
	}
	return true
}

// Event returns the current event.
func (c *EventCursor) Event() DueEvent {
	return c.cur
}

// Err returns the error that stopped iteration, if any.
func (c *EventCursor) Err() error {
	return c.err
}

// Close releases the cursor. It is safe to call more than once.
func (c *EventCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
