package lms

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/abhisek/examwatch/internal/assessment"
)

type windowRow struct {
	CMID          int64  `db:"cmid"`
	Instance      int64  `db:"instance"`
	CourseID      int64  `db:"course"`
	ContextID     int64  `db:"contextid"`
	Name          string `db:"name"`
	TimeOpen      int64  `db:"timeopen"`
	TimeClose     int64  `db:"timeclose"`
	TimeLimit     int64  `db:"timelimit"`
	CourseVisible int64  `db:"coursevisible"`
}

func (r windowRow) window(module assessment.Module) assessment.Window {
	return assessment.Window{
		ID:            r.CMID,
		Instance:      r.Instance,
		Module:        module,
		CourseID:      r.CourseID,
		ContextID:     r.ContextID,
		Name:          r.Name,
		Open:          unixTime(r.TimeOpen),
		Close:         unixTime(r.TimeClose),
		TimeLimit:     time.Duration(r.TimeLimit) * time.Second,
		CourseVisible: r.CourseVisible != 0,
	}
}

const quizWindowsSQL = `
SELECT cm.id AS cmid, q.id AS instance, q.course AS course, COALESCE(ctx.id, 0) AS contextid,
       q.name AS name, q.timeopen AS timeopen, q.timeclose AS timeclose, q.timelimit AS timelimit,
       c.visible AS coursevisible
  FROM {quiz} q
  JOIN {course} c ON c.id = q.course
  JOIN {modules} m ON m.name = 'quiz'
  JOIN {course_modules} cm ON cm.instance = q.id AND cm.module = m.id AND cm.course = q.course
  LEFT JOIN {context} ctx ON ctx.instanceid = cm.id AND ctx.contextlevel = ?
 WHERE cm.visible = 1`

// An assignment closes at its cut-off date, or its due date without one.
const assignWindowsSQL = `
SELECT cm.id AS cmid, a.id AS instance, a.course AS course, COALESCE(ctx.id, 0) AS contextid,
       a.name AS name, a.allowsubmissionsfromdate AS timeopen,
       CASE WHEN a.cutoffdate > 0 THEN a.cutoffdate ELSE a.duedate END AS timeclose,
       0 AS timelimit, c.visible AS coursevisible
  FROM {assign} a
  JOIN {course} c ON c.id = a.course
  JOIN {modules} m ON m.name = 'assign'
  JOIN {course_modules} cm ON cm.instance = a.id AND cm.module = m.id AND cm.course = a.course
  LEFT JOIN {context} ctx ON ctx.instanceid = cm.id AND ctx.contextlevel = ?
 WHERE cm.visible = 1`

func windowsSQL(module assessment.Module) (string, error) {
	switch module {
	case assessment.ModuleQuiz:
		return quizWindowsSQL, nil
	case assessment.ModuleAssign:
		return assignWindowsSQL, nil
	}
	return "", fmt.Errorf("unsupported module %q", module)
}

// Windows returns the visible assessments of one module type.
func (s *Source) Windows(ctx context.Context, module assessment.Module) ([]assessment.Window, error) {
	query, err := windowsSQL(module)
	if err != nil {
		return nil, err
	}
	var rows []windowRow
	if err := s.selectContext(ctx, &rows, query+` ORDER BY cm.id`, contextModule); err != nil {
		return nil, fmt.Errorf("query %s windows: %w", module, err)
	}
	out := make([]assessment.Window, len(rows))
	for i, r := range rows {
		out[i] = r.window(module)
	}
	return out, nil
}

// Catalogue returns the visible assessments of every given module type.
func (s *Source) Catalogue(ctx context.Context, modules ...assessment.Module) ([]assessment.Window, error) {
	if len(modules) == 0 {
		modules = []assessment.Module{assessment.ModuleQuiz, assessment.ModuleAssign}
	}
	var out []assessment.Window
	for _, m := range modules {
		ws, err := s.Windows(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, ws...)
	}
	return out, nil
}

// Window returns one assessment by course module id.
func (s *Source) Window(ctx context.Context, module assessment.Module, cmid int64) (assessment.Window, error) {
	query, err := windowsSQL(module)
	if err != nil {
		return assessment.Window{}, err
	}
	var rows []windowRow
	if err := s.selectContext(ctx, &rows, query+` AND cm.id = ?`, contextModule, cmid); err != nil {
		return assessment.Window{}, fmt.Errorf("query %s window %d: %w", module, cmid, err)
	}
	if len(rows) == 0 {
		return assessment.Window{}, fmt.Errorf("%w: %s %d", ErrUnknownAssessment, module, cmid)
	}
	return rows[0].window(module), nil
}

type overrideRow struct {
	CMID      int64         `db:"cmid"`
	UserID    int64         `db:"userid"`
	TimeOpen  sql.NullInt64 `db:"timeopen"`
	TimeClose sql.NullInt64 `db:"timeclose"`
	TimeLimit sql.NullInt64 `db:"timelimit"`
}

func (r overrideRow) override() assessment.Override {
	o := assessment.Override{AssessmentID: r.CMID, UserID: r.UserID}
	if r.TimeOpen.Valid && r.TimeOpen.Int64 > 0 {
		t := unixTime(r.TimeOpen.Int64)
		o.Open = &t
	}
	if r.TimeClose.Valid && r.TimeClose.Int64 > 0 {
		t := unixTime(r.TimeClose.Int64)
		o.Close = &t
	}
	if r.TimeLimit.Valid {
		d := time.Duration(r.TimeLimit.Int64) * time.Second
		o.TimeLimit = &d
	}
	return o
}

// Group overrides are resolved to users by the LMS itself; only user
// overrides are read here.
const quizOverridesSQL = `
SELECT cm.id AS cmid, o.userid AS userid, o.timeopen AS timeopen, o.timeclose AS timeclose, o.timelimit AS timelimit
  FROM {quiz_overrides} o
  JOIN {modules} m ON m.name = 'quiz'
  JOIN {course_modules} cm ON cm.instance = o.quiz AND cm.module = m.id
 WHERE o.userid IS NOT NULL AND cm.id IN (?)
 ORDER BY cm.id, o.userid`

const assignOverridesSQL = `
SELECT cm.id AS cmid, o.userid AS userid, o.allowsubmissionsfromdate AS timeopen,
       CASE WHEN o.cutoffdate > 0 THEN o.cutoffdate ELSE o.duedate END AS timeclose,
       NULL AS timelimit
  FROM {assign_overrides} o
  JOIN {modules} m ON m.name = 'assign'
  JOIN {course_modules} cm ON cm.instance = o.assignid AND cm.module = m.id
 WHERE o.userid IS NOT NULL AND cm.id IN (?)
 ORDER BY cm.id, o.userid`

// Overrides returns the user overrides of the given windows grouped by
// assessment id.
func (s *Source) Overrides(ctx context.Context, windows []assessment.Window) (map[int64][]assessment.Override, error) {
	byModule := make(map[assessment.Module][]int64)
	for _, w := range windows {
		byModule[w.Module] = append(byModule[w.Module], w.ID)
	}

	out := make(map[int64][]assessment.Override)
	for module, ids := range byModule {
		var query string
		switch module {
		case assessment.ModuleQuiz:
			query = quizOverridesSQL
		case assessment.ModuleAssign:
			query = assignOverridesSQL
		default:
			continue
		}
		for _, chunk := range chunks(ids) {
			var rows []overrideRow
			if err := s.selectContext(ctx, &rows, query, chunk); err != nil {
				return nil, fmt.Errorf("query %s overrides: %w", module, err)
			}
			for _, r := range rows {
				out[r.CMID] = append(out[r.CMID], r.override())
			}
		}
	}
	return out, nil
}
