package lms

import (
	"context"
	"fmt"
	"time"

	"github.com/abhisek/examwatch/internal/assessment"
	"github.com/abhisek/examwatch/internal/participant"
)

const enrolledSQL = `
SELECT DISTINCT ue.userid
  FROM {user_enrolments} ue
  JOIN {enrol} e ON e.id = ue.enrolid AND e.courseid = ? AND e.status = 0
  JOIN {user} u ON u.id = ue.userid AND u.deleted = 0 AND u.suspended = 0
 WHERE ue.status = 0
   AND (ue.timestart = 0 OR ue.timestart <= ?)
   AND (ue.timeend = 0 OR ue.timeend > ?)
 ORDER BY ue.userid`

// A user is eligible when a role assigned in the course context allows
// every required capability.
const eligibleSQL = `
SELECT ue.userid
  FROM {user_enrolments} ue
  JOIN {enrol} e ON e.id = ue.enrolid AND e.courseid = ? AND e.status = 0
  JOIN {user} u ON u.id = ue.userid AND u.deleted = 0 AND u.suspended = 0
  JOIN {context} ctx ON ctx.contextlevel = ? AND ctx.instanceid = e.courseid
  JOIN {role_assignments} ra ON ra.userid = ue.userid AND ra.contextid = ctx.id
  JOIN {role_capabilities} rc ON rc.roleid = ra.roleid AND rc.permission = 1 AND rc.capability IN (?)
 WHERE ue.status = 0
   AND (ue.timestart = 0 OR ue.timestart <= ?)
   AND (ue.timeend = 0 OR ue.timeend > ?)
 GROUP BY ue.userid
HAVING COUNT(DISTINCT rc.capability) = ?
 ORDER BY ue.userid`

// EligibleUsers returns active enrolled users of the window's course holding
// every capability. With no capabilities every active enrolment qualifies.
func (s *Source) EligibleUsers(ctx context.Context, w assessment.Window, capabilities []string) ([]int64, error) {
	now := s.now().Unix()
	var ids []int64
	var err error
	if len(capabilities) == 0 {
		err = s.selectContext(ctx, &ids, enrolledSQL, w.CourseID, now, now)
	} else {
		caps := uniqueStrings(capabilities)
		err = s.selectContext(ctx, &ids, eligibleSQL, w.CourseID, contextCourse, caps, now, now, len(caps))
	}
	if err != nil {
		return nil, fmt.Errorf("query eligible users of course %d: %w", w.CourseID, err)
	}
	return ids, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

const activeSessionsSQL = `
SELECT DISTINCT userid
  FROM {sessions}
 WHERE userid IN (?) AND timemodified >= ?`

// ActiveSessions returns the users with a session modified at or after since.
func (s *Source) ActiveSessions(ctx context.Context, userIDs []int64, since time.Time) (map[int64]bool, error) {
	active := make(map[int64]bool)
	for _, chunk := range chunks(userIDs) {
		var ids []int64
		if err := s.selectContext(ctx, &ids, activeSessionsSQL, chunk, since.Unix()); err != nil {
			return nil, fmt.Errorf("query active sessions: %w", err)
		}
		for _, id := range ids {
			active[id] = true
		}
	}
	return active, nil
}

var (
	_ participant.EligibleUsers = (*Source)(nil)
	_ participant.Sessions      = (*Source)(nil)
	_ participant.Attempts      = (*Source)(nil)
)
