package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestNextDueDaily(t *testing.T) {
	now := date(2026, time.January, 1, 0)
	next, err := NextDue(date(2026, time.January, 10, 9), Daily, now)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.January, 11, 9), next)
}

func TestNextDueWeekly(t *testing.T) {
	now := date(2026, time.January, 1, 0)
	next, err := NextDue(date(2026, time.January, 10, 9), Weekly, now)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.January, 17, 9), next)
}

func TestNextDueMonthlyClampsToShortMonth(t *testing.T) {
	now := date(2026, time.January, 15, 0)
	next, err := NextDue(date(2026, time.January, 31, 10), Monthly, now)
	require.NoError(t, err)
	// 2026 is not a leap year.
	require.Equal(t, date(2026, time.February, 28, 10), next)
}

func TestNextDueMonthlyLeapYear(t *testing.T) {
	now := date(2028, time.January, 15, 0)
	next, err := NextDue(date(2028, time.January, 31, 10), Monthly, now)
	require.NoError(t, err)
	require.Equal(t, date(2028, time.February, 29, 10), next)
}

func TestNextDueMonthlyKeepsAnchorDay(t *testing.T) {
	// Completing in March a task due Jan 31: Feb 28 is already in the past,
	// so the anchor day carries through to Mar 31.
	now := date(2026, time.March, 10, 0)
	next, err := NextDue(date(2026, time.January, 31, 10), Monthly, now)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.March, 31, 10), next)
}

func TestNextDueCatchesUpToFuture(t *testing.T) {
	// Task due over a year ago; the next daily occurrence must land strictly
	// after now rather than one day after the stale due date.
	now := date(2026, time.June, 15, 12)
	next, err := NextDue(date(2025, time.March, 1, 9), Daily, now)
	require.NoError(t, err)
	require.True(t, next.After(now))
	require.Equal(t, date(2026, time.June, 16, 9), next)
}

func TestNextDueAlwaysAdvances(t *testing.T) {
	now := date(2026, time.January, 1, 0)
	for _, rule := range []Rule{Daily, Weekly, Monthly} {
		prev := date(2026, time.January, 31, 10)
		for i := 0; i < 48; i++ {
			next, err := NextDue(prev, rule, now)
			require.NoError(t, err)
			require.True(t, next.After(prev), "rule %s regressed at step %d", rule, i)
			prev = next
		}
	}
}

func TestNextDueRejectsInvalidRule(t *testing.T) {
	_, err := NextDue(time.Now(), Rule("yearly"), time.Now())
	require.ErrorIs(t, err, ErrInvalidRule)

	_, err = NextDue(time.Now(), None, time.Now())
	require.ErrorIs(t, err, ErrInvalidRule)
}

func TestRuleValidity(t *testing.T) {
	require.True(t, None.Valid())
	require.True(t, Monthly.Valid())
	require.False(t, Rule("hourly").Valid())
	require.False(t, None.Repeats())
	require.True(t, Daily.Repeats())
}
