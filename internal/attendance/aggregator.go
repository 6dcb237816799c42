// Package attendance computes attendance statistics from register snapshots.
// Everything here is a pure function; persistence stays with the caller.
package attendance

import (
	"time"

	"studioregister/internal/model"
)

// Summary is a student's attendance over a session range. Percentage is on a
// 0-100 scale and is 0 (not NaN) when nothing counted; callers that need to
// distinguish "0%" from "no data" check Counted.
type Summary struct {
	Attended   int     `json:"attended"`
	Counted    int     `json:"counted"`
	Percentage float64 `json:"percentage"`
}

// Eligible reports whether a session counts toward the student's history:
// either the session started on or after the student joined, or the student
// has an explicit mark in it (mid-session enrollment).
func Eligible(student model.Student, session model.RegisterSession) bool {
	if !session.StartedAt.Before(student.JoinedAt) {
		return true
	}
	_, marked := session.MarkFor(student.ID)
	return marked
}

// Summarize computes the student's attendance over sessions whose start falls
// within [from, to], both bounds inclusive. Unmarked sessions are skipped;
// EXCUSED marks are excluded from both counters.
func Summarize(student model.Student, sessions []model.RegisterSession, from, to time.Time) Summary {
	var sum Summary
	for _, sess := range sessions {
		if sess.Deleted() || sess.ClassID != student.ClassID {
			continue
		}
		if sess.StartedAt.Before(from) || sess.StartedAt.After(to) {
			continue
		}
		if !Eligible(student, sess) {
			continue
		}
		mark, ok := sess.MarkFor(student.ID)
		if !ok || mark == model.MarkExcused {
			continue
		}
		sum.Counted++
		if mark.Attended() {
			sum.Attended++
		}
	}
	if sum.Counted > 0 {
		sum.Percentage = float64(sum.Attended) / float64(sum.Counted) * 100
	}
	return sum
}
