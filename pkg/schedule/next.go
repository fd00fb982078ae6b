// Package schedule decides when rules run and fires them from a background job
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/arnavshah/referee-assigner-go/pkg/models"
)

// NextRun returns the next time a rule should fire strictly after after, or nil when
// it never fires again. Manual rules never fire. A one-time rule fires at its start
// date and time, even if that is already past
func NextRun(rule *models.AssignmentRule, after time.Time, loc *time.Location) *time.Time {
	if loc == nil {
		loc = time.UTC
	}
	hour, minute := clock(rule.Time)

	switch rule.ScheduleType {
	case models.ScheduleOneTime:
		if rule.StartDate == nil {
			return nil
		}
		d := rule.StartDate.In(loc)
		at := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
		return &at
	case models.ScheduleRecurring:
	default:
		return nil
	}

	from := after.In(loc)
	if rule.StartDate != nil {
		if start := startOfDay(rule.StartDate.In(loc)); start.After(from) {
			from = start.Add(-time.Nanosecond)
		}
	}

	var next time.Time
	switch rule.Frequency {
	case models.FrequencyDaily, "":
		next = nextDaily(from, hour, minute)
	case models.FrequencyWeekly:
		next = nextWeekly(from, time.Weekday(rule.DayOfWeek), hour, minute)
	case models.FrequencyMonthly:
		next = nextMonthly(from, rule.DayOfMonth, hour, minute)
	default:
		return nil
	}

	if rule.EndDate != nil {
		end := startOfDay(rule.EndDate.In(loc)).AddDate(0, 0, 1)
		if !next.Before(end) {
			return nil
		}
	}
	return &next
}

// Due reports whether an enabled, scheduled rule should fire at now
func Due(rule *models.AssignmentRule, now time.Time) bool {
	if !rule.Enabled || rule.ScheduleType == models.ScheduleManual || rule.NextRun == nil {
		return false
	}
	return !rule.NextRun.After(now)
}

func nextDaily(after time.Time, hour, minute int) time.Time {
	y, m, d := after.Date()
	for i := 0; ; i++ {
		t := time.Date(y, m, d+i, hour, minute, 0, 0, after.Location())
		if t.After(after) {
			return t
		}
	}
}

func nextWeekly(after time.Time, weekday time.Weekday, hour, minute int) time.Time {
	y, m, d := after.Date()
	for i := 0; ; i++ {
		t := time.Date(y, m, d+i, hour, minute, 0, 0, after.Location())
		if t.Weekday() == weekday && t.After(after) {
			return t
		}
	}
}

// nextMonthly clamps the day to the month's length, so day 31 fires on April 30th
func nextMonthly(after time.Time, day, hour, minute int) time.Time {
	if day < 1 {
		day = 1
	}
	y, m, _ := after.Date()
	for i := 0; ; i++ {
		first := time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, after.Location())
		d := min(day, daysIn(first))
		t := time.Date(first.Year(), first.Month(), d, hour, minute, 0, 0, after.Location())
		if t.After(after) {
			return t
		}
	}
}

func daysIn(month time.Time) int {
	return time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, month.Location()).Day()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// clock parses "HH:MM"; anything else means midnight
func clock(value string) (int, int) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0
	}
	return hour, minute
}
