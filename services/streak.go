package services

import (
	"time"

	"github.com/studymate/studymate/models"
)

// AdvanceStreak applies one completed study session at `at` to the streak.
// The streak grows at most once per calendar day in loc; a gap of more than one
// day restarts it at 1. changed is false when the day was already counted.
func AdvanceStreak(s models.StudyStreak, at time.Time, loc *time.Location) (next models.StudyStreak, changed bool) {
	next = s
	today := dayStart(at, loc)

	switch {
	case s.LastStudyDate == nil || s.Current == 0:
		next.Current = 1
	default:
		last := dayStart(*s.LastStudyDate, loc)
		switch {
		case isSameDay(last, today):
			return s, false
		case today.Before(last):
			// clock went backwards; keep what we have
			return s, false
		case isSameDay(last.AddDate(0, 0, 1), today):
			next.Current = s.Current + 1
		default:
			next.Current = 1
		}
	}

	if next.Current > next.Longest {
		next.Longest = next.Current
	}
	next.LastStudyDate = &today
	return next, true
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func isSameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
