// Package points reads the append-only point-event ledger.
package points

import (
	"time"

	"studioregister/internal/model"
)

// Sum totals points granted to a student in a class with createdAt inside
// [from, to], both bounds inclusive. Soft-deleted events do not count.
func Sum(events []model.PointEvent, studentID, classID string, from, to time.Time) int {
	total := 0
	for _, e := range events {
		if e.Deleted() || e.StudentID != studentID || e.ClassID != classID {
			continue
		}
		if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		total += e.Points
	}
	return total
}

// HasGrant reports whether a grant with the same dedupe tuple already exists.
// Callers check this before re-issuing recurring rewards like the On Time
// bonus, so closing the same register twice grants nothing extra.
func HasGrant(events []model.PointEvent, studentID, classID, reason, sessionID string) bool {
	for _, e := range events {
		if e.Deleted() {
			continue
		}
		if e.StudentID == studentID && e.ClassID == classID && e.Reason == reason && e.SessionID == sessionID {
			return true
		}
	}
	return false
}
