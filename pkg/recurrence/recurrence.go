package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Rule is the closed set of repeat intervals a task can carry.
type Rule string

const (
	None    Rule = "none"
	Daily   Rule = "daily"
	Weekly  Rule = "weekly"
	Monthly Rule = "monthly"
)

func (r Rule) String() string {
	switch r {
	case None, Daily, Weekly, Monthly:
		return string(r)
	default:
		return ""
	}
}

func (r Rule) Valid() bool {
	return r.String() != ""
}

// Repeats reports whether completing a task with this rule spawns a successor.
func (r Rule) Repeats() bool {
	return r.Valid() && r != None
}

var ErrInvalidRule = errors.New("invalid recurrence rule")

// NextDue computes the due timestamp of the successor task.
//
// The rule is applied n times (n >= 1) to the previous due timestamp until
// the result lies strictly after now, so a task completed long after its due
// date never regenerates already-overdue. The previous due timestamp is the
// iteration base throughout: the clock time is preserved and the monthly
// step keeps the original day-of-month anchor, clamping to the last valid
// day of shorter target months (Jan 31 -> Feb 28/29, but -> Mar 31 again).
func NextDue(previousDue time.Time, rule Rule, now time.Time) (time.Time, error) {
	if !rule.Repeats() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidRule, rule)
	}

	for n := 1; ; n++ {
		next := advance(previousDue, rule, n)
		if next.After(now) {
			return next, nil
		}
	}
}

func advance(base time.Time, rule Rule, n int) time.Time {
	switch rule {
	case Daily:
		return base.AddDate(0, 0, n)
	case Weekly:
		return base.AddDate(0, 0, 7*n)
	default:
		return addMonthsClamped(base, n)
	}
}

// addMonthsClamped advances by whole calendar months without the normalising
// overflow of AddDate (which would turn Jan 31 + 1 month into Mar 3).
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	shifted := firstOfMonth.AddDate(0, months, 0)

	day := t.Day()
	if last := daysIn(shifted.Year(), shifted.Month()); day > last {
		day = last
	}

	return time.Date(shifted.Year(), shifted.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
