package eligibility

import (
	"time"

	"github.com/aimd54/retail-gamification/internal/ruleset"
)

// PeriodRange returns the calendar window [start, end) containing now in loc. Weeks start on
// Monday. all_time returns zero bounds. ok is false for unknown periods.
func PeriodRange(period ruleset.Period, now time.Time, loc *time.Location) (start, end time.Time, ok bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	y, m, d := local.Date()

	switch period {
	case ruleset.PeriodDaily:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	case ruleset.PeriodWeekly:
		offset := (int(local.Weekday()) + 6) % 7
		start = time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 7)
	case ruleset.PeriodMonthly:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case ruleset.PeriodQuarterly:
		qm := time.Month((int(m)-1)/3*3 + 1)
		start = time.Date(y, qm, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 3, 0)
	case ruleset.PeriodYearly:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	case ruleset.PeriodAllTime:
		return time.Time{}, time.Time{}, true
	default:
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// DayKey formats the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// MonthKey formats the calendar month of t in loc as YYYY-MM.
func MonthKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01")
}
