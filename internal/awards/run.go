package awards

import (
	"time"

	"studioregister/internal/model"
)

// Trailing evaluation window for the automatic monthly award.
const monthWindow = 30 * 24 * time.Hour

// RunOnRegisterClose evaluates all three awards for one class at register
// close and returns the unlocks to persist, decided by SYSTEM. The month award
// scores a trailing 30-day window ending now but is keyed to the calendar
// month, so one close per month can mint it; the yearly pair is keyed to the
// academic year containing now. Nothing already unlocked (in the snapshot or
// earlier in this run) is minted twice.
func RunOnRegisterClose(snap Snapshot, classID string, now time.Time) []model.AwardUnlock {
	return run(snap, []string{classID}, now)
}

// RunBatch evaluates several classes in one pass. Unlocks minted for earlier
// classes join the duplicate check for later ones.
func RunBatch(snap Snapshot, classIDs []string, now time.Time) []model.AwardUnlock {
	return run(snap, classIDs, now)
}

func run(snap Snapshot, classIDs []string, now time.Time) []model.AwardUnlock {
	var minted []model.AwardUnlock
	unlocked := func(awardID model.AwardID, studentID, periodKey string) bool {
		return Unlocked(snap.Awards, awardID, studentID, periodKey) ||
			Unlocked(minted, awardID, studentID, periodKey)
	}

	for _, classID := range classIDs {
		month := model.MonthOf(now)
		prev := PreviousWinner(snap.Awards, classID, model.AwardStudentOfMonth, model.PreviousMonth(now))
		if w, ok := scoredWinner(StudentOfMonth(snap, classID, now.Add(-monthWindow), now, prev)); ok {
			if !unlocked(model.AwardStudentOfMonth, w.Student.ID, month.Key) {
				minted = append(minted, mint(model.AwardStudentOfMonth, w, classID, month, model.DecidedBySystem, now))
			}
		}

		year := model.AcademicYearOf(now)
		if w, ok := trendWinner(MostImproved(snap, classID, now)); ok {
			if !unlocked(model.AwardMostImproved, w.Student.ID, year.Key) {
				minted = append(minted, mint(model.AwardMostImproved, w, classID, year, model.DecidedBySystem, now))
			}
		}
		if w, ok := scoredWinner(StudentOfYear(snap, classID, now)); ok {
			if !unlocked(model.AwardStudentOfYear, w.Student.ID, year.Key) {
				minted = append(minted, mint(model.AwardStudentOfYear, w, classID, year, model.DecidedBySystem, now))
			}
		}
	}
	return minted
}

// scoredWinner picks the highest-ranked candidate with counted attendance
// data; nobody with data means no winner. Skipping data-less entries keeps the
// anti-repeat swap from suppressing the award when second place never attended:
// the previous winner then takes it again, demoted in rank but never excluded.
func scoredWinner(ranked []Candidate) (Candidate, bool) {
	for _, c := range ranked {
		if c.Attendance.Counted > 0 {
			return c, true
		}
	}
	return Candidate{}, false
}

// trendWinner picks the top of the improvement ranking; the trend has to point
// upward to be award-worthy.
func trendWinner(ranked []Candidate) (Candidate, bool) {
	if len(ranked) == 0 || ranked[0].Slope <= 0 {
		return Candidate{}, false
	}
	return ranked[0], true
}

// Decide mints a teacher-decided award. winnerID overrides the suggested
// winner when non-empty; it must name a student on the class roster. The
// period is the calendar month (month award) or academic year (yearly awards)
// containing now, and the usual duplicate rule applies.
func Decide(snap Snapshot, classID string, awardID model.AwardID, winnerID string, now time.Time) (model.AwardUnlock, error) {
	var period model.Period
	var ranked []Candidate
	switch awardID {
	case model.AwardStudentOfMonth:
		period = model.MonthOf(now)
		prev := PreviousWinner(snap.Awards, classID, model.AwardStudentOfMonth, model.PreviousMonth(now))
		ranked = StudentOfMonth(snap, classID, now.Add(-monthWindow), now, prev)
	case model.AwardMostImproved:
		period = model.AcademicYearOf(now)
		ranked = MostImproved(snap, classID, now)
	case model.AwardStudentOfYear:
		period = model.AcademicYearOf(now)
		ranked = StudentOfYear(snap, classID, now)
	default:
		return model.AwardUnlock{}, ErrNoWinner
	}

	var winner Candidate
	if winnerID != "" {
		found := false
		for _, c := range ranked {
			if c.Student.ID == winnerID {
				winner, found = c, true
				break
			}
		}
		if !found {
			// Override may name a roster student the ranking excluded
			// (e.g. too few samples for Most Improved).
			for _, s := range roster(snap, classID) {
				if s.ID == winnerID {
					winner, found = Candidate{Student: s}, true
					break
				}
			}
		}
		if !found {
			return model.AwardUnlock{}, ErrUnknownStudent
		}
	} else {
		if len(ranked) == 0 {
			return model.AwardUnlock{}, ErrNoWinner
		}
		winner = ranked[0]
	}

	if Unlocked(snap.Awards, awardID, winner.Student.ID, period.Key) {
		return model.AwardUnlock{}, ErrDuplicateAward
	}
	return mint(awardID, winner, classID, period, model.DecidedByTeacher, now), nil
}
