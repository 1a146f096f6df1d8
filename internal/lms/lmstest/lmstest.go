// Package lmstest provides an in-memory LMS database for tests.
package lmstest

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/abhisek/examwatch/internal/lms"
)

// Schema is the subset of the LMS schema the engine reads.
const Schema = `
CREATE TABLE mdl_course (id INTEGER PRIMARY KEY, fullname TEXT NOT NULL DEFAULT '', visible INTEGER NOT NULL DEFAULT 1);
CREATE TABLE mdl_modules (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE mdl_course_modules (id INTEGER PRIMARY KEY, course INTEGER NOT NULL, module INTEGER NOT NULL, instance INTEGER NOT NULL, visible INTEGER NOT NULL DEFAULT 1);
CREATE TABLE mdl_context (id INTEGER PRIMARY KEY, contextlevel INTEGER NOT NULL, instanceid INTEGER NOT NULL);
CREATE TABLE mdl_quiz (id INTEGER PRIMARY KEY, course INTEGER NOT NULL, name TEXT NOT NULL, timeopen INTEGER NOT NULL DEFAULT 0, timeclose INTEGER NOT NULL DEFAULT 0, timelimit INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_assign (id INTEGER PRIMARY KEY, course INTEGER NOT NULL, name TEXT NOT NULL, allowsubmissionsfromdate INTEGER NOT NULL DEFAULT 0, duedate INTEGER NOT NULL DEFAULT 0, cutoffdate INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_quiz_overrides (id INTEGER PRIMARY KEY, quiz INTEGER NOT NULL, groupid INTEGER, userid INTEGER, timeopen INTEGER, timeclose INTEGER, timelimit INTEGER);
CREATE TABLE mdl_assign_overrides (id INTEGER PRIMARY KEY, assignid INTEGER NOT NULL, groupid INTEGER, userid INTEGER, allowsubmissionsfromdate INTEGER, duedate INTEGER, cutoffdate INTEGER);
CREATE TABLE mdl_enrol (id INTEGER PRIMARY KEY, courseid INTEGER NOT NULL, status INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_user_enrolments (id INTEGER PRIMARY KEY, enrolid INTEGER NOT NULL, userid INTEGER NOT NULL, status INTEGER NOT NULL DEFAULT 0, timestart INTEGER NOT NULL DEFAULT 0, timeend INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_user (id INTEGER PRIMARY KEY, deleted INTEGER NOT NULL DEFAULT 0, suspended INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_role_assignments (id INTEGER PRIMARY KEY, roleid INTEGER NOT NULL, contextid INTEGER NOT NULL, userid INTEGER NOT NULL);
CREATE TABLE mdl_role_capabilities (id INTEGER PRIMARY KEY, contextid INTEGER NOT NULL DEFAULT 1, roleid INTEGER NOT NULL, capability TEXT NOT NULL, permission INTEGER NOT NULL);
CREATE TABLE mdl_sessions (id INTEGER PRIMARY KEY, userid INTEGER NOT NULL, timemodified INTEGER NOT NULL);
CREATE TABLE mdl_quiz_attempts (id INTEGER PRIMARY KEY, quiz INTEGER NOT NULL, userid INTEGER NOT NULL, attempt INTEGER NOT NULL, state TEXT NOT NULL, timestart INTEGER NOT NULL DEFAULT 0, timefinish INTEGER NOT NULL DEFAULT 0, preview INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_assign_submission (id INTEGER PRIMARY KEY, assignment INTEGER NOT NULL, userid INTEGER NOT NULL, status TEXT NOT NULL, latest INTEGER NOT NULL DEFAULT 1, attemptnumber INTEGER NOT NULL DEFAULT 0, timecreated INTEGER NOT NULL DEFAULT 0, timemodified INTEGER NOT NULL DEFAULT 0);
CREATE TABLE mdl_event (id INTEGER PRIMARY KEY, name TEXT NOT NULL, modulename TEXT NOT NULL, instance INTEGER NOT NULL, courseid INTEGER NOT NULL, eventtype TEXT NOT NULL, timestart INTEGER NOT NULL, visible INTEGER NOT NULL DEFAULT 1);
INSERT INTO mdl_modules (id, name) VALUES (1, 'quiz'), (2, 'assign');
`

const (
	moduleQuiz   = 1
	moduleAssign = 2

	contextCourse = 50
	contextModule = 70

	// RoleStudent is the role granted by Enrol.
	RoleStudent = 5
)

// DB is a seeded in-memory LMS.
type DB struct {
	t  testing.TB
	DB *sqlx.DB
}

// New creates an empty in-memory LMS database that lives for the duration
// of the test.
func New(t testing.TB) *DB {
	t.Helper()
	return open(t, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
}

// NewFile creates an empty LMS database at path, for code that opens the
// database by DSN itself.
func NewFile(t testing.TB, path string) *DB {
	t.Helper()
	return open(t, path)
}

func open(t testing.TB, dsn string) *DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open lms db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create lms schema: %v\n%s", err, stmt)
		}
	}
	return &DB{t: t, DB: db}
}

// Source returns a lms.Source over the database.
func (d *DB) Source() *lms.Source {
	return lms.New(d.DB, lms.DefaultPrefix)
}

// Exec runs a statement and fails the test on error.
func (d *DB) Exec(query string, args ...any) {
	d.t.Helper()
	if _, err := d.DB.Exec(query, args...); err != nil {
		d.t.Fatalf("exec %q: %v", query, err)
	}
}

// Course creates a course with its context.
func (d *DB) Course(id int64, visible bool) {
	d.t.Helper()
	v := 0
	if visible {
		v = 1
	}
	d.Exec(`INSERT INTO mdl_course (id, fullname, visible) VALUES (?, ?, ?)`, id, "Course", v)
	d.Exec(`INSERT INTO mdl_context (contextlevel, instanceid) VALUES (?, ?)`, contextCourse, id)
	d.Exec(`INSERT INTO mdl_enrol (id, courseid, status) VALUES (?, ?, 0)`, id, id)
}

// Quiz creates a quiz instance and its course module.
func (d *DB) Quiz(cmid, id, course int64, open, close time.Time, limit time.Duration) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_quiz (id, course, name, timeopen, timeclose, timelimit) VALUES (?, ?, ?, ?, ?, ?)`,
		id, course, "Quiz", unix(open), unix(close), int64(limit/time.Second))
	d.Exec(`INSERT INTO mdl_course_modules (id, course, module, instance) VALUES (?, ?, ?, ?)`, cmid, course, moduleQuiz, id)
	d.Exec(`INSERT INTO mdl_context (contextlevel, instanceid) VALUES (?, ?)`, contextModule, cmid)
}

// Assign creates an assignment instance and its course module.
func (d *DB) Assign(cmid, id, course int64, open, due, cutoff time.Time) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_assign (id, course, name, allowsubmissionsfromdate, duedate, cutoffdate) VALUES (?, ?, ?, ?, ?, ?)`,
		id, course, "Assignment", unix(open), unix(due), unix(cutoff))
	d.Exec(`INSERT INTO mdl_course_modules (id, course, module, instance) VALUES (?, ?, ?, ?)`, cmid, course, moduleAssign, id)
	d.Exec(`INSERT INTO mdl_context (contextlevel, instanceid) VALUES (?, ?)`, contextModule, cmid)
}

// Enrol enrols users in a course with the student role.
func (d *DB) Enrol(course int64, users ...int64) {
	d.t.Helper()
	for _, u := range users {
		d.Exec(`INSERT OR IGNORE INTO mdl_user (id) VALUES (?)`, u)
		d.Exec(`INSERT INTO mdl_user_enrolments (enrolid, userid) VALUES (?, ?)`, course, u)
		d.Exec(`INSERT INTO mdl_role_assignments (roleid, contextid, userid)
			SELECT ?, id, ? FROM mdl_context WHERE contextlevel = ? AND instanceid = ?`, RoleStudent, u, contextCourse, course)
	}
}

// Allow grants capabilities to a role.
func (d *DB) Allow(role int64, capabilities ...string) {
	d.t.Helper()
	for _, c := range capabilities {
		d.Exec(`INSERT INTO mdl_role_capabilities (roleid, capability, permission) VALUES (?, ?, 1)`, role, c)
	}
}

// Session records session activity for a user.
func (d *DB) Session(user int64, modified time.Time) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_sessions (userid, timemodified) VALUES (?, ?)`, user, unix(modified))
}

// QuizAttempt records a quiz attempt.
func (d *DB) QuizAttempt(quiz, user int64, attempt int, state string) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_quiz_attempts (quiz, userid, attempt, state) VALUES (?, ?, ?, ?)`, quiz, user, attempt, state)
}

// Submission records an assignment submission.
func (d *DB) Submission(assign, user int64, status string) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_assign_submission (assignment, userid, status) VALUES (?, ?, ?)`, assign, user, status)
}

// QuizOverride records a user override. Zero values are stored as NULL.
func (d *DB) QuizOverride(quiz, user int64, open, close time.Time) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_quiz_overrides (quiz, userid, timeopen, timeclose) VALUES (?, ?, ?, ?)`,
		quiz, user, nullUnix(open), nullUnix(close))
}

// Event records a calendar event.
func (d *DB) Event(id int64, module string, instance, course int64, eventType string, start time.Time) {
	d.t.Helper()
	d.Exec(`INSERT INTO mdl_event (id, name, modulename, instance, courseid, eventtype, timestart) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, "Due", module, instance, course, eventType, unix(start))
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
