package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Postgres driver.
	_ "github.com/lib/pq"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store holds the database handle and provides access to repositories.
type Store struct {
	db      *sql.DB
	drv     *entsql.Driver
	dialect string
}

// Open creates a new Store on the given driver and runs auto-migration.
// SQLite connections are opened with WAL, a busy timeout and foreign keys on.
func Open(driver, dsn string) (*Store, error) {
	d, err := Dialect(driver)
	if err != nil {
		return nil, err
	}

	if d == dialect.SQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if d == dialect.SQLite {
		// One connection keeps in-memory databases shared.
		db.SetMaxOpenConns(1)
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect: %w", err)
		}
	}

	s := &Store{db: db, drv: entsql.OpenDB(d, db), dialect: d}
	if err := s.migrate(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return s, nil
}

// Dialect maps a database/sql driver name to its ent dialect.
func Dialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return dialect.SQLite, nil
	case DriverPostgres:
		return dialect.Postgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.drv.Close()
}

// TrendRepo returns a TrendRepo backed by this store.
func (s *Store) TrendRepo() TrendRepo {
	return &trendRepo{db: s.db, dialect: s.dialect}
}

// DueEventRepo returns a DueEventRepo backed by this store.
func (s *Store) DueEventRepo() DueEventRepo {
	return &dueEventRepo{db: s.db, dialect: s.dialect, gen: newGenerationCounter(s.db, s.dialect)}
}

// sqlitePragmas run on every new SQLite connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(ON)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the connection pragmas to dsn as _pragma parameters,
// which the modernc driver executes on connect.
func sqliteDSN(dsn string) string {
	q := make(url.Values)
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

// DefaultDBPath returns $XDG_DATA_HOME/examwatch/examwatch.db, falling back
// to ~/.local/share when XDG_DATA_HOME is unset, and creates its directory.
func DefaultDBPath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	p := filepath.Join(dataHome, "examwatch", "examwatch.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
