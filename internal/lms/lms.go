// Package lms reads assessment schedules, enrolments, sessions and attempts
// from the host LMS database. It never writes to it.
package lms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"

	// Postgres driver.
	_ "github.com/lib/pq"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// ErrUnknownAssessment is returned when an assessment id does not exist.
var ErrUnknownAssessment = errors.New("unknown assessment")

// DefaultPrefix is the table prefix of a stock installation.
const DefaultPrefix = "mdl_"

// Context levels used by the LMS permission system.
const (
	contextCourse = 50
	contextModule = 70
)

// chunkSize bounds the number of ids bound into a single IN clause.
const chunkSize = 500

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Source is a read-only view of the LMS database.
type Source struct {
	db     *sqlx.DB
	prefix string
	now    func() time.Time
}

// Open connects to the LMS database.
func Open(driver, dsn, prefix string) (*Source, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open lms database: %w", err)
	}
	return New(db, prefix), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, prefix string) *Source {
	return &Source{db: db, prefix: prefix, now: time.Now}
}

// DB returns the underlying connection.
func (s *Source) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

var tableRef = regexp.MustCompile(`\{(\w+)\}`)

// sql expands {table} references to prefixed table names, binds slice
// arguments and rebinds placeholders for the driver.
func (s *Source) sql(query string, args ...any) (string, []any, error) {
	query = tableRef.ReplaceAllString(query, s.prefix+"${1}")
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, fmt.Errorf("bind query: %w", err)
	}
	return s.db.Rebind(query), args, nil
}

func (s *Source) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	q, a, err := s.sql(query, args...)
	if err != nil {
		return err
	}
	return s.db.SelectContext(ctx, dest, q, a...)
}

// chunks splits ids into slices of at most chunkSize.
func chunks(ids []int64) [][]int64 {
	var out [][]int64
	for len(ids) > chunkSize {
		out = append(out, ids[:chunkSize])
		ids = ids[chunkSize:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// unixTime converts LMS seconds to time, keeping 0 as the zero time.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
