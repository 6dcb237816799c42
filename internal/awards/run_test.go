package awards

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studioregister/internal/model"
)

// closeSnapshot builds a class where ann is the clear winner of everything.
func closeSnapshot() Snapshot {
	return Snapshot{
		Students: []model.Student{student("ann", "Ann"), student("ben", "Ben")},
		Sessions: []model.RegisterSession{
			session("2025-01-05", map[string]model.Mark{"ann": model.MarkAbsent, "ben": model.MarkAbsent}),
			session("2025-01-12", map[string]model.Mark{"ann": model.MarkAbsent, "ben": model.MarkAbsent}),
			session("2025-01-19", map[string]model.Mark{"ann": model.MarkPresent, "ben": model.MarkAbsent}),
			session("2025-01-26", map[string]model.Mark{"ann": model.MarkPresent, "ben": model.MarkAbsent}),
		},
	}
}

func TestRunOnRegisterCloseMintsAllThree(t *testing.T) {
	now := day("2025-01-26").Add(20 * time.Hour)
	minted := RunOnRegisterClose(closeSnapshot(), "c", now)

	byAward := map[model.AwardID]model.AwardUnlock{}
	for _, a := range minted {
		byAward[a.AwardID] = a
	}
	require.Len(t, minted, 3)

	month := byAward[model.AwardStudentOfMonth]
	assert.Equal(t, "ann", month.StudentID)
	assert.Equal(t, "2025-01", month.Period.Key)
	assert.Equal(t, model.PeriodMonth, month.Period.Type)
	assert.Equal(t, model.DecidedBySystem, month.DecidedBy)
	assert.True(t, month.PendingPush())

	improved := byAward[model.AwardMostImproved]
	assert.Equal(t, "ann", improved.StudentID)
	assert.Equal(t, "2024-2025", improved.Period.Key)
	assert.Equal(t, model.PeriodAcademicYear, improved.Period.Type)

	year := byAward[model.AwardStudentOfYear]
	assert.Equal(t, "ann", year.StudentID)
	assert.Equal(t, "2024-2025", year.Period.Key)
}

func TestRunOnRegisterCloseIsIdempotent(t *testing.T) {
	now := day("2025-01-26").Add(20 * time.Hour)
	snap := closeSnapshot()

	first := RunOnRegisterClose(snap, "c", now)
	require.NotEmpty(t, first)

	snap.Awards = append(snap.Awards, first...)
	second := RunOnRegisterClose(snap, "c", now)
	assert.Empty(t, second)
}

func TestRunBatchDedupesWithinOnePass(t *testing.T) {
	now := day("2025-01-26").Add(20 * time.Hour)
	// The same class twice in one batch: the second pass sees the first
	// pass's unlocks even though nothing was persisted yet.
	minted := RunBatch(closeSnapshot(), []string{"c", "c"}, now)
	assert.Len(t, minted, 3)
}

func TestRunOnRegisterCloseNoDataNoWinner(t *testing.T) {
	snap := Snapshot{
		Students: []model.Student{student("ann", "Ann")},
		Sessions: []model.RegisterSession{session("2025-01-05", nil)},
	}
	assert.Empty(t, RunOnRegisterClose(snap, "c", day("2025-01-06")))
}

func TestRunAntiRepeatFallsBackWhenRunnerUpHasNoData(t *testing.T) {
	// ann won last month and is still the only student with marked sessions.
	// The anti-repeat swap puts ben first, but ben has nothing counted, so the
	// award falls back to ann instead of going unminted.
	now := day("2025-02-23").Add(20 * time.Hour)
	snap := Snapshot{
		Students: []model.Student{student("ann", "Ann"), student("ben", "Ben")},
		Sessions: []model.RegisterSession{
			session("2025-02-02", map[string]model.Mark{"ann": model.MarkPresent}),
			session("2025-02-09", map[string]model.Mark{"ann": model.MarkPresent}),
		},
		Awards: []model.AwardUnlock{{
			ID: "prev", AwardID: model.AwardStudentOfMonth, StudentID: "ann", ClassID: "c",
			Period: model.MonthOf(day("2025-01-15")),
		}},
	}

	minted := RunOnRegisterClose(snap, "c", now)
	var month *model.AwardUnlock
	for i := range minted {
		if minted[i].AwardID == model.AwardStudentOfMonth {
			month = &minted[i]
		}
	}
	require.NotNil(t, month)
	assert.Equal(t, "ann", month.StudentID)
	assert.Equal(t, "2025-02", month.Period.Key)
}

func TestRunOnRegisterCloseFlatTrendNoMostImproved(t *testing.T) {
	snap := Snapshot{
		Students: []model.Student{student("ann", "Ann")},
		Sessions: []model.RegisterSession{
			session("2025-01-05", map[string]model.Mark{"ann": model.MarkPresent}),
			session("2025-01-12", map[string]model.Mark{"ann": model.MarkPresent}),
			session("2025-01-19", map[string]model.Mark{"ann": model.MarkPresent}),
			session("2025-01-26", map[string]model.Mark{"ann": model.MarkPresent}),
		},
	}
	minted := RunOnRegisterClose(snap, "c", day("2025-01-26").Add(20*time.Hour))
	for _, a := range minted {
		assert.NotEqual(t, model.AwardMostImproved, a.AwardID, "flat attendance is not improvement")
	}
}

func TestDecideSuggestedWinner(t *testing.T) {
	now := day("2025-01-26").Add(20 * time.Hour)
	unlock, err := Decide(closeSnapshot(), "c", model.AwardStudentOfMonth, "", now)
	require.NoError(t, err)
	assert.Equal(t, "ann", unlock.StudentID)
	assert.Equal(t, model.DecidedByTeacher, unlock.DecidedBy)
	assert.Equal(t, "2025-01", unlock.Period.Key)
}

func TestDecideOverrideWinner(t *testing.T) {
	now := day("2025-01-26").Add(20 * time.Hour)
	unlock, err := Decide(closeSnapshot(), "c", model.AwardStudentOfMonth, "ben", now)
	require.NoError(t, err)
	assert.Equal(t, "ben", unlock.StudentID)
}

func TestDecideOverrideOutsideRanking(t *testing.T) {
	// ben has no marked sessions in the year, so Most Improved excludes him,
	// but a teacher override may still pick any roster student.
	snap := Snapshot{
		Students: []model.Student{student("ann", "Ann"), student("ben", "Ben")},
		Sessions: []model.RegisterSession{
			session("2024-10-05", map[string]model.Mark{"ann": model.MarkAbsent}),
			session("2024-11-02", map[string]model.Mark{"ann": model.MarkAbsent}),
			session("2024-12-07", map[string]model.Mark{"ann": model.MarkPresent}),
			session("2025-01-11", map[string]model.Mark{"ann": model.MarkPresent}),
		},
	}
	unlock, err := Decide(snap, "c", model.AwardMostImproved, "ben", day("2025-01-15"))
	require.NoError(t, err)
	assert.Equal(t, "ben", unlock.StudentID)

	_, err = Decide(snap, "c", model.AwardMostImproved, "nobody", day("2025-01-15"))
	assert.ErrorIs(t, err, ErrUnknownStudent)
}

func TestDecideDuplicateRejected(t *testing.T) {
	now := day("2025-01-26").Add(20 * time.Hour)
	snap := closeSnapshot()
	unlock, err := Decide(snap, "c", model.AwardStudentOfYear, "", now)
	require.NoError(t, err)

	snap.Awards = append(snap.Awards, unlock)
	_, err = Decide(snap, "c", model.AwardStudentOfYear, "", now)
	assert.ErrorIs(t, err, ErrDuplicateAward)
}
