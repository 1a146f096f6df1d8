package lms_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/lms"
	"github.com/abhisek/examwatch/internal/lms/lmstest"
	"github.com/abhisek/examwatch/internal/participant"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) *lmstest.DB {
	t.Helper()
	db := lmstest.New(t)
	db.Course(10, true)
	db.Course(20, false)
	db.Quiz(101, 1, 10, base, base.Add(2*time.Hour), 45*time.Minute)
	db.Quiz(102, 2, 20, base.Add(time.Hour), base.Add(3*time.Hour), 0)
	db.Assign(201, 1, 10, base, base.Add(24*time.Hour), base.Add(48*time.Hour))
	db.Assign(202, 2, 10, time.Time{}, base.Add(24*time.Hour), time.Time{})
	return db
}

func TestCatalogue(t *testing.T) {
	src := seed(t).Source()
	ws, err := src.Catalogue(context.Background())
	require.NoError(t, err)
	require.Len(t, ws, 4)

	quiz := ws[0]
	assert.Equal(t, int64(101), quiz.ID)
	assert.Equal(t, int64(1), quiz.Instance)
	assert.Equal(t, assessment.ModuleQuiz, quiz.Module)
	assert.Equal(t, int64(10), quiz.CourseID)
	assert.NotZero(t, quiz.ContextID)
	assert.True(t, quiz.Open.Equal(base))
	assert.True(t, quiz.Close.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, 45*time.Minute, quiz.TimeLimit)
	assert.True(t, quiz.CourseVisible)

	assert.False(t, ws[1].CourseVisible)

	// Cut-off date wins over the due date.
	assert.True(t, ws[2].Close.Equal(base.Add(48*time.Hour)))
	assert.Equal(t, assessment.ModuleAssign, ws[2].Module)

	// Without a cut-off the due date closes the window.
	assert.True(t, ws[3].Close.Equal(base.Add(24*time.Hour)))
	assert.False(t, ws[3].Tracked())
}

func TestCatalogue_HiddenModule(t *testing.T) {
	db := seed(t)
	db.Exec(`UPDATE mdl_course_modules SET visible = 0 WHERE id = 102`)

	ws, err := db.Source().Windows(context.Background(), assessment.ModuleQuiz)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, int64(101), ws[0].ID)
}

func TestWindow(t *testing.T) {
	src := seed(t).Source()

	w, err := src.Window(context.Background(), assessment.ModuleAssign, 201)
	require.NoError(t, err)
	assert.Equal(t, int64(1), w.Instance)

	_, err = src.Window(context.Background(), assessment.ModuleQuiz, 999)
	assert.True(t, errors.Is(err, lms.ErrUnknownAssessment))

	_, err = src.Window(context.Background(), assessment.Module("forum"), 1)
	assert.Error(t, err)
}

func TestOverrides(t *testing.T) {
	db := seed(t)
	db.QuizOverride(1, 7, base.Add(-time.Hour), time.Time{})
	db.QuizOverride(1, 8, time.Time{}, base.Add(4*time.Hour))
	db.Exec(`INSERT INTO mdl_quiz_overrides (quiz, groupid, timeclose) VALUES (1, 3, ?)`, base.Add(9*time.Hour).Unix())
	db.Exec(`INSERT INTO mdl_assign_overrides (assignid, userid, duedate, cutoffdate) VALUES (1, 7, ?, 0)`, base.Add(72*time.Hour).Unix())

	src := db.Source()
	ws, err := src.Catalogue(context.Background())
	require.NoError(t, err)

	ovs, err := src.Overrides(context.Background(), ws)
	require.NoError(t, err)

	quiz := ovs[101]
	require.Len(t, quiz, 2, "group overrides are skipped")
	assert.Equal(t, int64(7), quiz[0].UserID)
	require.True(t, quiz[0].HasOpen())
	assert.True(t, quiz[0].Open.Equal(base.Add(-time.Hour)))
	assert.False(t, quiz[0].HasClose())
	assert.Equal(t, int64(8), quiz[1].UserID)
	assert.False(t, quiz[1].HasOpen())
	assert.True(t, quiz[1].Close.Equal(base.Add(4*time.Hour)))

	assign := ovs[201]
	require.Len(t, assign, 1)
	assert.Equal(t, int64(201), assign[0].AssessmentID)
	assert.False(t, assign[0].HasOpen())
	assert.True(t, assign[0].Close.Equal(base.Add(72*time.Hour)))

	assert.Empty(t, ovs[102])
}

func TestOverrides_Empty(t *testing.T) {
	ovs, err := seed(t).Source().Overrides(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ovs)
}

func TestEligibleUsers(t *testing.T) {
	db := seed(t)
	db.Enrol(10, 1, 2, 3)
	db.Enrol(20, 4)
	db.Allow(lmstest.RoleStudent, "mod/quiz:attempt", "mod/quiz:view")
	db.Exec(`UPDATE mdl_user SET suspended = 1 WHERE id = 3`)

	src := db.Source()
	w := assessment.Window{ID: 101, CourseID: 10, Module: assessment.ModuleQuiz}

	tests := []struct {
		name string
		caps []string
		want []int64
	}{
		{"no capabilities", nil, []int64{1, 2}},
		{"one capability", []string{"mod/quiz:attempt"}, []int64{1, 2}},
		{"all capabilities", []string{"mod/quiz:attempt", "mod/quiz:view", "mod/quiz:attempt"}, []int64{1, 2}},
		{"missing capability", []string{"mod/quiz:attempt", "mod/quiz:grade"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := src.EligibleUsers(context.Background(), w, tt.caps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEligibleUsers_EnrolmentEnded(t *testing.T) {
	db := seed(t)
	db.Enrol(10, 1, 2)
	db.Exec(`UPDATE mdl_user_enrolments SET timeend = ? WHERE userid = 2`, time.Now().Add(-time.Hour).Unix())

	got, err := db.Source().EligibleUsers(context.Background(), assessment.Window{CourseID: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, got)
}

func TestActiveSessions(t *testing.T) {
	db := seed(t)
	db.Session(1, base)
	db.Session(1, base.Add(-time.Hour))
	db.Session(2, base.Add(-2*time.Hour))
	db.Session(3, base.Add(time.Minute))

	got, err := db.Source().ActiveSessions(context.Background(), []int64{1, 2, 4}, base.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: true}, got)

	got, err = db.Source().ActiveSessions(context.Background(), nil, base)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLatestAttempts_Quiz(t *testing.T) {
	db := seed(t)
	db.QuizAttempt(1, 1, 1, "finished")
	db.QuizAttempt(1, 1, 2, "inprogress")
	db.QuizAttempt(1, 2, 1, "abandoned")
	db.QuizAttempt(1, 3, 1, "bogus")
	db.QuizAttempt(2, 4, 1, "finished")
	db.Exec(`INSERT INTO mdl_quiz_attempts (quiz, userid, attempt, state, preview) VALUES (1, 5, 1, 'finished', 1)`)

	w := assessment.Window{ID: 101, Instance: 1, Module: assessment.ModuleQuiz}
	got, err := db.Source().LatestAttempts(context.Background(), w, []int64{1, 2, 3, 4, 5})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, participant.AttemptInProgress, got[1].State)
	assert.Equal(t, int64(101), got[1].AssessmentID)
	assert.Equal(t, participant.AttemptAbandoned, got[2].State)
}

func TestLatestAttempts_Assign(t *testing.T) {
	db := seed(t)
	db.Submission(1, 1, "submitted")
	db.Submission(1, 2, "draft")
	db.Submission(1, 3, "new")
	db.Submission(1, 4, "reopened")

	w := assessment.Window{ID: 201, Instance: 1, Module: assessment.ModuleAssign}
	got, err := db.Source().LatestAttempts(context.Background(), w, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	assert.Equal(t, participant.AttemptFinished, got[1].State)
	assert.Equal(t, participant.AttemptInProgress, got[2].State)
	assert.NotContains(t, got, int64(3))
	assert.Equal(t, participant.AttemptInProgress, got[4].State)
}

func TestLatestAttempts_UnknownModule(t *testing.T) {
	_, err := seed(t).Source().LatestAttempts(context.Background(), assessment.Window{Module: "forum"}, []int64{1})
	assert.Error(t, err)
}

func TestDueEvents(t *testing.T) {
	db := seed(t)
	db.Enrol(10, 1, 2, 3)
	db.Event(3, "quiz", 1, 10, "close", base.Add(2*time.Hour))
	db.Event(1, "assign", 1, 10, "due", base.Add(24*time.Hour))
	db.Event(2, "assign", 1, 10, "gradingdue", base.Add(72*time.Hour))
	db.Event(4, "forum", 1, 10, "due", base)
	db.Event(5, "quiz", 2, 20, "close", base.Add(3*time.Hour))
	db.Exec(`INSERT INTO mdl_event (id, name, modulename, instance, courseid, eventtype, timestart, visible)
		VALUES (6, 'Hidden', 'quiz', 1, 10, 'close', 0, 0)`)

	cur, err := db.Source().DueEvents(context.Background())
	require.NoError(t, err)

	var got []lms.DueEvent
	for cur.Next() {
		got = append(got, cur.Event())
	}
	require.NoError(t, cur.Err())
	assert.False(t, cur.Next(), "cursor stays exhausted")
	assert.NoError(t, cur.Close())

	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 3, 5}, []int64{got[0].EventID, got[1].EventID, got[2].EventID})
	assert.Equal(t, "assign", got[0].Module)
	assert.Equal(t, 3, got[0].Students)
	assert.True(t, got[0].CourseVisible)
	assert.True(t, got[1].TimeDue.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, 0, got[2].Students)
	assert.False(t, got[2].CourseVisible)
}

func TestDueEvents_CloseEarly(t *testing.T) {
	db := seed(t)
	db.Event(1, "quiz", 1, 10, "close", base)
	db.Event(2, "quiz", 1, 10, "close", base)

	src := db.Source()
	cur, err := src.DueEvents(context.Background())
	require.NoError(t, err)
	require.True(t, cur.Next())
	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())
	assert.False(t, cur.Next())

	// The single connection is released.
	require.NoError(t, src.Ping(context.Background()))
}
