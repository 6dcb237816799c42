// Package export renders register data as spreadsheets for teachers.
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"studioregister/internal/attendance"
	"studioregister/internal/model"
)

// Register builds an xlsx register sheet for one class over [from, to]:
// one row per active student, one column per session (marked with the
// attendance letter), and a final attendance-percentage column.
func Register(class model.DanceClass, students []model.Student, sessions []model.RegisterSession, from, to time.Time) (*excelize.File, error) {
	var roster []model.Student
	for _, s := range model.Live(students) {
		if s.ClassID == class.ID && !s.Archived {
			roster = append(roster, s)
		}
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].Name < roster[j].Name })

	var cols []model.RegisterSession
	for _, sess := range model.Live(sessions) {
		if sess.ClassID != class.ID || sess.StartedAt.Before(from) || sess.StartedAt.After(to) {
			continue
		}
		cols = append(cols, sess)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].StartedAt.Before(cols[j].StartedAt) })

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetCellValue(sheet, "A1", "Student"); err != nil {
		return nil, err
	}
	for i, sess := range cols {
		cell, err := excelize.CoordinatesToCellName(i+2, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, sess.StartedAt.Format("2006-01-02")); err != nil {
			return nil, err
		}
	}
	pctCell, err := excelize.CoordinatesToCellName(len(cols)+2, 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, pctCell, "Attendance %"); err != nil {
		return nil, err
	}

	for r, st := range roster {
		row := r + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, st.Name); err != nil {
			return nil, err
		}
		for i, sess := range cols {
			mark, ok := sess.MarkFor(st.ID)
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+2, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, markLetter(mark)); err != nil {
				return nil, err
			}
		}
		sum := attendance.Summarize(st, sessions, from, to)
		cell, err = excelize.CoordinatesToCellName(len(cols)+2, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, fmt.Sprintf("%.0f%%", sum.Percentage)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func markLetter(m model.Mark) string {
	switch m {
	case model.MarkPresent:
		return "P"
	case model.MarkLate:
		return "L"
	case model.MarkAbsent:
		return "A"
	case model.MarkExcused:
		return "E"
	}
	return ""
}
