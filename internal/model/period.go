package model

import (
	"fmt"
	"time"
)

// PeriodType names the kind of window an award is scoped to.
type PeriodType string

const (
	PeriodMonth        PeriodType = "MONTH"
	PeriodAcademicYear PeriodType = "ACADEMIC_YEAR"
	PeriodRange        PeriodType = "RANGE"
)

// Period scopes an award to a window of time. Key is the canonical string form
// used in the award uniqueness constraint; its format depends on Type.
type Period struct {
	Type PeriodType `json:"type"`
	Key  string     `json:"key"`
}

// MonthOf returns the calendar-month period containing t, keyed "2025-01".
func MonthOf(t time.Time) Period {
	return Period{Type: PeriodMonth, Key: t.UTC().Format("2006-01")}
}

// PreviousMonth returns the calendar-month period before the one containing t.
func PreviousMonth(t time.Time) Period {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return MonthOf(first.AddDate(0, 0, -1))
}

// AcademicYearOf returns the academic-year period (Sep 1 through Jul 31)
// containing t, keyed "2024-2025". August falls in the year that just ended.
func AcademicYearOf(t time.Time) Period {
	start, _ := AcademicYearBounds(t)
	return Period{
		Type: PeriodAcademicYear,
		Key:  fmt.Sprintf("%d-%d", start.Year(), start.Year()+1),
	}
}

// AcademicYearBounds returns the inclusive [Sep 1, Jul 31] window of the
// academic year containing t.
func AcademicYearBounds(t time.Time) (from, to time.Time) {
	t = t.UTC()
	year := t.Year()
	if t.Month() < time.September {
		year--
	}
	from = time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC)
	to = time.Date(year+1, time.July, 31, 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	return from, to
}

// RangeOver returns an explicit date-range period, keyed "20250101-20250131".
func RangeOver(from, to time.Time) Period {
	return Period{
		Type: PeriodRange,
		Key:  from.UTC().Format("20060102") + "-" + to.UTC().Format("20060102"),
	}
}
