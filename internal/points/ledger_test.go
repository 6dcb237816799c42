package points

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"studioregister/internal/model"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func event(id, studentID string, pts int, created string) model.PointEvent {
	return model.PointEvent{
		ID:        id,
		StudentID: studentID,
		ClassID:   "c",
		Reason:    "Great effort",
		Points:    pts,
		CreatedAt: day(created),
	}
}

func TestSumInclusiveRange(t *testing.T) {
	events := []model.PointEvent{
		event("1", "y", 5, "2025-03-01"),
		event("2", "y", 3, "2025-03-10"),
		event("3", "y", 2, "2025-03-31"),
		// One day past the range's to bound: excluded.
		event("4", "y", 7, "2025-04-01"),
	}
	assert.Equal(t, 10, Sum(events, "y", "c", day("2025-03-01"), day("2025-03-31")))
}

func TestSumFiltersStudentClassAndDeleted(t *testing.T) {
	gone := event("3", "y", 50, "2025-03-05")
	gone.State = model.LifecycleDeleted
	other := event("4", "z", 9, "2025-03-05")
	foreign := event("5", "y", 9, "2025-03-05")
	foreign.ClassID = "other"

	events := []model.PointEvent{event("1", "y", 4, "2025-03-05"), gone, other, foreign}
	assert.Equal(t, 4, Sum(events, "y", "c", day("2025-03-01"), day("2025-03-31")))
}

func TestSumNegativeEvents(t *testing.T) {
	events := []model.PointEvent{
		event("1", "y", 5, "2025-03-01"),
		event("2", "y", -2, "2025-03-02"),
	}
	assert.Equal(t, 3, Sum(events, "y", "c", day("2025-03-01"), day("2025-03-31")))
}

func TestHasGrant(t *testing.T) {
	e := event("1", "y", 2, "2025-03-01")
	e.Reason = "On Time"
	e.SessionID = "sess-1"
	events := []model.PointEvent{e}

	assert.True(t, HasGrant(events, "y", "c", "On Time", "sess-1"))
	assert.False(t, HasGrant(events, "y", "c", "On Time", "sess-2"))
	assert.False(t, HasGrant(events, "z", "c", "On Time", "sess-1"))

	e.State = model.LifecycleDeleted
	assert.False(t, HasGrant([]model.PointEvent{e}, "y", "c", "On Time", "sess-1"))
}
