package recurring

import (
	"time"

	"github.com/tasklife/project/internal/contracts"
)

// NextDueAt computes the next occurrence for a completed recurring task.
// Monthly recurrence clamps to the last valid day of the target month
// (Jan 31 -> Feb 28, or Feb 29 in a leap year); time.AddDate would normalize
// overflow into March instead.
func NextDueAt(base time.Time, rule contracts.RecurrenceRule) time.Time {
	switch rule {
	case contracts.RecurrenceWeekly:
		return base.AddDate(0, 0, 7)
	case contracts.RecurrenceMonthly:
		return addMonthClamped(base)
	default:
		return base.AddDate(0, 0, 1)
	}
}

func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	// Day 0 of month+2 is the last day of month+1.
	lastDay := time.Date(year, month+2, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month+1, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
