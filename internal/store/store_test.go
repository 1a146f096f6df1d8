package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "whatever"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		// WAL mode falls back to "memory" for in-memory databases,
		// so we skip journal_mode here.
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		dsn    string
		prefix string
	}{
		{"/tmp/examwatch.db", "/tmp/examwatch.db?_pragma="},
		{"file:x?mode=memory&cache=shared", "file:x?mode=memory&cache=shared&_pragma="},
	}
	for _, tt := range tests {
		got := sqliteDSN(tt.dsn)
		if !strings.HasPrefix(got, tt.prefix) {
			t.Errorf("sqliteDSN(%q) = %q, want prefix %q", tt.dsn, got, tt.prefix)
		}
		if n := strings.Count(got, "_pragma="); n != len(sqlitePragmas) {
			t.Errorf("sqliteDSN(%q) has %d pragmas, want %d", tt.dsn, n, len(sqlitePragmas))
		}
	}
}

func TestDefaultDBPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	p, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath: %v", err)
	}
	if want := filepath.Join(dir, "examwatch", "examwatch.db"); p != want {
		t.Errorf("DefaultDBPath = %q, want %q", p, want)
	}
	if fi, err := os.Stat(filepath.Dir(p)); err != nil || !fi.IsDir() {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestAutoMigrationCreatesTables(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	for _, table := range []string{"trend_snapshots", "due_events", "generations"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("query sqlite_master for %s: %v", table, err)
		}
		if name != table {
			t.Errorf("table name = %q, want %q", name, table)
		}
	}
}

func TestTrendAppendAndList(t *testing.T) {
	s := openTestStore(t)
	repo := s.TrendRepo()
	ctx := context.Background()

	snaps, err := repo.List(ctx, 1)
	if err != nil {
		t.Fatalf("list (empty): %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("expected no snapshots, got %d", len(snaps))
	}

	base := time.Unix(1594788000, 0).UTC()
	// Insert out of order to check ordering by time_created.
	for _, i := range []int{2, 0, 1} {
		err := repo.Append(ctx, TrendSnapshot{
			RunID:        "run",
			AssessmentID: 1,
			Finished:     i,
			TimeCreated:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := repo.Append(ctx, TrendSnapshot{RunID: "run", AssessmentID: 2, TimeCreated: base}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	snaps, err = repo.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("len = %d, want 3", len(snaps))
	}
	for i, s := range snaps {
		if s.Finished != i {
			t.Errorf("snaps[%d].Finished = %d, want %d", i, s.Finished, i)
		}
		if !s.TimeCreated.Equal(base.Add(time.Duration(i) * time.Minute)) {
			t.Errorf("snaps[%d].TimeCreated = %s", i, s.TimeCreated)
		}
	}

	n, err := repo.Count(ctx, 1)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestGenerationCounter(t *testing.T) {
	s := openTestStore(t)
	repo := s.DueEventRepo()
	ctx := context.Background()

	var gens []int64
	for i := 0; i < 5; i++ {
		g, err := repo.NextGeneration(ctx)
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		gens = append(gens, g)
	}

	// Should be monotonically increasing starting from 1.
	for i, g := range gens {
		expected := int64(i + 1)
		if g != expected {
			t.Errorf("gen[%d] = %d, want %d", i, g, expected)
		}
	}
}

func dueEvents(ids ...int64) []DueEvent {
	base := time.Date(2020, 7, 1, 9, 0, 0, 0, time.UTC)
	out := make([]DueEvent, len(ids))
	for i, id := range ids {
		out[i] = DueEvent{
			EventID:       id,
			Module:        "quiz",
			CourseID:      3,
			InstanceID:    id * 10,
			Name:          "Quiz",
			TimeDue:       base.AddDate(0, 0, int(id)),
			Students:      int(id),
			CourseVisible: true,
		}
	}
	return out
}

func TestDueEventReplaceBatch(t *testing.T) {
	s := openTestStore(t)
	repo := s.DueEventRepo()
	ctx := context.Background()

	if err := repo.ReplaceBatch(ctx, 1, dueEvents(1, 2, 3)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	updated := dueEvents(2)
	updated[0].Students = 99
	if err := repo.ReplaceBatch(ctx, 2, updated); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	got, err := repo.Query(ctx, DueEventFilter{Module: "quiz"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[1].EventID != 2 || got[1].Students != 99 {
		t.Errorf("event 2 = %+v, want students 99", got[1])
	}

	removed, err := repo.DeleteMissing(ctx, 2)
	if err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
}

func TestDueEventReplaceBatchRollsBack(t *testing.T) {
	s := openTestStore(t)
	repo := s.DueEventRepo()
	ctx := context.Background()

	if err := repo.ReplaceBatch(ctx, 1, dueEvents(1, 2)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	// Duplicate ids make the insert fail after the delete ran.
	bad := append(dueEvents(1, 2), dueEvents(2)...)
	if err := repo.ReplaceBatch(ctx, 2, bad); err == nil {
		t.Fatal("expected error for duplicate event ids")
	}

	got, err := repo.Query(ctx, DueEventFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (batch must roll back)", len(got))
	}
}

func TestDueEventQueryFilter(t *testing.T) {
	s := openTestStore(t)
	repo := s.DueEventRepo()
	ctx := context.Background()

	events := dueEvents(1, 2, 3, 4)
	events[3].CourseVisible = false
	events[2].Module = "assign"
	if err := repo.ReplaceBatch(ctx, 1, events); err != nil {
		t.Fatalf("replace: %v", err)
	}

	tests := []struct {
		name   string
		filter DueEventFilter
		want   []int64
	}{
		{"visible only", DueEventFilter{}, []int64{1, 2, 3}},
		{"include hidden", DueEventFilter{IncludeHidden: true}, []int64{1, 2, 3, 4}},
		{"module", DueEventFilter{Module: "quiz", IncludeHidden: true}, []int64{1, 2, 4}},
		{"range", DueEventFilter{From: events[1].TimeDue, To: events[2].TimeDue}, []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			var ids []int64
			for _, e := range got {
				ids = append(ids, e.EventID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("ids = %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}
