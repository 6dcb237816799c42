// Package awards ranks students for the three periodic awards and decides
// which unlocks to mint. All evaluation is pure over an in-memory snapshot;
// persistence of minted unlocks stays with the caller.
package awards

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"studioregister/internal/attendance"
	"studioregister/internal/model"
	"studioregister/internal/points"
)

// Weights for the two scored awards.
const (
	monthAttendanceWeight = 0.7
	monthPointsWeight     = 0.3
	yearAttendanceWeight  = 0.6
	yearPointsWeight      = 0.4

	// Most Improved needs at least this many marked sessions to fit a trend.
	minTrendSamples = 4
)

var (
	ErrDuplicateAward = errors.New("award already unlocked for this period")
	ErrUnknownStudent = errors.New("student not in class roster")
	ErrNoWinner       = errors.New("no award-worthy candidate")
)

// Snapshot is the in-memory state the evaluator reads. Collections may contain
// deleted or archived records; the evaluator filters them itself.
type Snapshot struct {
	Students []model.Student
	Sessions []model.RegisterSession
	Points   []model.PointEvent
	Awards   []model.AwardUnlock
}

// Candidate is one ranked student. Slope and Samples are only meaningful for
// Most Improved; Score, PointsTotal and PointsNorm for the weighted awards.
type Candidate struct {
	Student     model.Student      `json:"student"`
	Attendance  attendance.Summary `json:"attendance"`
	PointsTotal int                `json:"pointsTotal"`
	PointsNorm  float64            `json:"pointsNorm"`
	Score       float64            `json:"score"`
	Slope       float64            `json:"slope"`
	Samples     int                `json:"samples"`
}

// roster returns the live, non-archived students of one class.
func roster(snap Snapshot, classID string) []model.Student {
	var out []model.Student
	for _, s := range model.Live(snap.Students) {
		if s.ClassID == classID && !s.Archived {
			out = append(out, s)
		}
	}
	return out
}

// weightedRanking scores attendance (as a 0-1 fraction) against normalized
// points. Points normalize against the best points total among candidates;
// when nobody has points everyone's norm is 0 and attendance decides alone.
func weightedRanking(snap Snapshot, classID string, from, to time.Time, attWeight, ptsWeight float64) []Candidate {
	students := roster(snap, classID)
	cands := make([]Candidate, 0, len(students))
	maxPts := 0
	for _, s := range students {
		c := Candidate{
			Student:     s,
			Attendance:  attendance.Summarize(s, snap.Sessions, from, to),
			PointsTotal: points.Sum(snap.Points, s.ID, classID, from, to),
		}
		if c.PointsTotal > maxPts {
			maxPts = c.PointsTotal
		}
		cands = append(cands, c)
	}
	for i := range cands {
		if maxPts > 0 {
			cands[i].PointsNorm = float64(cands[i].PointsTotal) / float64(maxPts)
		}
		cands[i].Score = attWeight*(cands[i].Attendance.Percentage/100) + ptsWeight*cands[i].PointsNorm
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Attendance.Percentage != b.Attendance.Percentage {
			return a.Attendance.Percentage > b.Attendance.Percentage
		}
		if a.PointsTotal != b.PointsTotal {
			return a.PointsTotal > b.PointsTotal
		}
		return a.Student.Name < b.Student.Name
	})
	return cands
}

// StudentOfMonth ranks a class over [from, to]. prevWinnerID is the previous
// period's winner; when they still rank first they are swapped with second
// place. That only demotes by one rank, it never excludes them.
func StudentOfMonth(snap Snapshot, classID string, from, to time.Time, prevWinnerID string) []Candidate {
	ranked := weightedRanking(snap, classID, from, to, monthAttendanceWeight, monthPointsWeight)
	if prevWinnerID != "" && len(ranked) > 1 && ranked[0].Student.ID == prevWinnerID {
		ranked[0], ranked[1] = ranked[1], ranked[0]
	}
	return ranked
}

// StudentOfYear ranks a class over the academic year containing ref.
func StudentOfYear(snap Snapshot, classID string, ref time.Time) []Candidate {
	from, to := model.AcademicYearBounds(ref)
	return weightedRanking(snap, classID, from, to, yearAttendanceWeight, yearPointsWeight)
}

// MostImproved ranks a class by the OLS slope of attendance outcome against
// days since the academic year started. Students with fewer than
// minTrendSamples marked sessions are excluded entirely.
func MostImproved(snap Snapshot, classID string, ref time.Time) []Candidate {
	from, to := model.AcademicYearBounds(ref)

	sessions := make([]model.RegisterSession, 0, len(snap.Sessions))
	for _, sess := range model.Live(snap.Sessions) {
		if sess.ClassID != classID || sess.StartedAt.Before(from) || sess.StartedAt.After(to) {
			continue
		}
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].StartedAt.Before(sessions[j].StartedAt) })

	var cands []Candidate
	for _, s := range roster(snap, classID) {
		var xs, ys []float64
		for _, sess := range sessions {
			if !attendance.Eligible(s, sess) {
				continue
			}
			mark, ok := sess.MarkFor(s.ID)
			if !ok || mark == model.MarkExcused {
				continue
			}
			y := 0.0
			if mark.Attended() {
				y = 1.0
			}
			xs = append(xs, sess.StartedAt.Sub(from).Hours()/24)
			ys = append(ys, y)
		}
		if len(xs) < minTrendSamples {
			continue
		}
		cands = append(cands, Candidate{
			Student: s,
			Slope:   olsSlope(xs, ys),
			Samples: len(xs),
		})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Slope != b.Slope {
			return a.Slope > b.Slope
		}
		if a.Samples != b.Samples {
			return a.Samples > b.Samples
		}
		return a.Student.Name < b.Student.Name
	})
	return cands
}

// olsSlope is the ordinary-least-squares slope of y over x. A degenerate x
// spread (all marks on one day) yields 0.
func olsSlope(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 || math.IsNaN(denom) {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// Unlocked reports whether an award matching the uniqueness tuple
// (awardID, studentID, periodKey) already exists among live unlocks.
func Unlocked(awards []model.AwardUnlock, awardID model.AwardID, studentID, periodKey string) bool {
	for _, a := range awards {
		if a.Deleted() {
			continue
		}
		if a.AwardID == awardID && a.StudentID == studentID && a.Period.Key == periodKey {
			return true
		}
	}
	return false
}

// PreviousWinner returns the student who holds awardID for the given period in
// this class, or "" when nobody does.
func PreviousWinner(awards []model.AwardUnlock, classID string, awardID model.AwardID, period model.Period) string {
	for _, a := range awards {
		if a.Deleted() {
			continue
		}
		if a.ClassID == classID && a.AwardID == awardID && a.Period.Key == period.Key {
			return a.StudentID
		}
	}
	return ""
}

func mint(awardID model.AwardID, c Candidate, classID string, period model.Period, decidedBy model.Decider, now time.Time) model.AwardUnlock {
	a := model.AwardUnlock{
		ID:         uuid.NewString(),
		AwardID:    awardID,
		StudentID:  c.Student.ID,
		ClassID:    classID,
		Period:     period,
		UnlockedAt: now.UTC(),
		DecidedBy:  decidedBy,
	}
	a.State = model.LifecycleActive
	a.Touch(now)
	return a
}
