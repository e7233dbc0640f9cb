package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/newsletter-engine/internal/models"
)

func newsletter(freq models.Frequency, tz, sendTime string) *models.Newsletter {
	return &models.Newsletter{
		ID:        1,
		Title:     "Test Digest",
		Timezone:  tz,
		SendTime:  sendTime,
		Frequency: freq,
	}
}

func TestNextSendDaily(t *testing.T) {
	t.Parallel()

	n := newsletter(models.FrequencyDaily, "UTC", "08:00")

	t.Run("before send time targets today", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("after send time targets tomorrow", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("exactly at send time targets tomorrow", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("already sent today targets tomorrow", func(t *testing.T) {
		t.Parallel()
		now := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, true)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC), next)
	})

	t.Run("always strictly after now", func(t *testing.T) {
		t.Parallel()
		zones := []string{"UTC", "America/New_York", "Asia/Tokyo", "Pacific/Auckland"}
		for _, tz := range zones {
			nl := newsletter(models.FrequencyDaily, tz, "06:30")
			for hour := 0; hour < 24; hour++ {
				now := time.Date(2026, 3, 15, hour, 17, 0, 0, time.UTC)
				for _, sentToday := range []bool{false, true} {
					next, err := NextSend(nl, now, sentToday)
					require.NoError(t, err)
					require.True(t, next.After(now),
						"tz=%s hour=%d sentToday=%v: %v not after %v", tz, hour, sentToday, next, now)
				}
			}
		}
	})
}

func TestNextSendDailySentTodayUsesLocalDate(t *testing.T) {
	t.Parallel()

	// 20:00 UTC on June 1 is already 08:00 on June 2 in Auckland. With
	// today's (local June 2) issue sent, the next send is local June 3,
	// not the UTC-date June 2.
	n := newsletter(models.FrequencyDaily, "Pacific/Auckland", "09:00")
	loc, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)
	next, err := NextSend(n, now, true)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 6, 3, 9, 0, 0, 0, loc), next)
}

func TestNextSendWeekly(t *testing.T) {
	t.Parallel()

	t.Run("tuesday rolls to wednesday", func(t *testing.T) {
		t.Parallel()
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		n := newsletter(models.FrequencyWeekly, "America/New_York", "06:00")
		n.DaysOfWeek = models.IntSlice{1, 3, 5} // Mon, Wed, Fri

		// 2026-03-10 is a Tuesday.
		now := time.Date(2026, 3, 10, 7, 0, 0, 0, ny)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 3, 11, 6, 0, 0, 0, ny), next)
	})

	t.Run("today counts when send time is ahead", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyWeekly, "UTC", "18:00")
		n.DaysOfWeek = models.IntSlice{2} // Tuesday

		now := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC) // Tuesday morning
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), next)
	})

	t.Run("already sent today skips to next week", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyWeekly, "UTC", "18:00")
		n.DaysOfWeek = models.IntSlice{2} // Tuesday only

		now := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, true)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 3, 17, 18, 0, 0, 0, time.UTC), next)
	})

	t.Run("sunday is day seven", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyWeekly, "UTC", "10:00")
		n.DaysOfWeek = models.IntSlice{7}

		now := time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC) // Tuesday
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC), next)
		require.Equal(t, time.Sunday, next.Weekday())
	})

	t.Run("empty day set is rejected", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyWeekly, "UTC", "10:00")
		_, err := NextSend(n, time.Now(), false)
		require.Error(t, err)
	})
}

func TestNextSendMonthlyClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	t.Run("day 31 in february yields february 28", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyMonthly, "UTC", "09:00")
		n.DayOfMonth = 31

		now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("day 31 in leap february yields february 29", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyMonthly, "UTC", "09:00")
		n.DayOfMonth = 31

		now := time.Date(2028, 2, 10, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2028, 2, 29, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("day 31 in a 30-day month yields day 30", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyMonthly, "UTC", "09:00")
		n.DayOfMonth = 31

		now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("passed target advances to next month", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyMonthly, "UTC", "09:00")
		n.DayOfMonth = 5

		now := time.Date(2026, 12, 20, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		// December wraps into January of the next year.
		require.Equal(t, time.Date(2027, 1, 5, 9, 0, 0, 0, time.UTC), next)
	})
}

func TestNextSendQuarterly(t *testing.T) {
	t.Parallel()

	t.Run("march targets april 15", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyQuarterly, "UTC", "09:00")
		n.DayOfMonth = 15
		n.Months = models.IntSlice{1, 4, 7, 10}

		now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("no remaining month rolls to next year", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyQuarterly, "UTC", "09:00")
		n.DayOfMonth = 15
		n.Months = models.IntSlice{1, 4}

		now := time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2027, 1, 15, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("clamps within the qualifying month", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyQuarterly, "UTC", "09:00")
		n.DayOfMonth = 31
		n.Months = models.IntSlice{2}

		now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
		next, err := NextSend(n, now, false)
		require.NoError(t, err)
		require.Equal(t, time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC), next)
	})

	t.Run("empty month set is rejected", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyQuarterly, "UTC", "09:00")
		n.DayOfMonth = 15
		_, err := NextSend(n, time.Now(), false)
		require.Error(t, err)
	})
}

func TestNextSendInvalidInputs(t *testing.T) {
	t.Parallel()

	t.Run("invalid timezone", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyDaily, "Mars/Olympus", "08:00")
		_, err := NextSend(n, time.Now(), false)
		require.Error(t, err)
	})

	t.Run("invalid send time", func(t *testing.T) {
		t.Parallel()
		n := newsletter(models.FrequencyDaily, "UTC", "25:99")
		_, err := NextSend(n, time.Now(), false)
		require.Error(t, err)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		t.Parallel()
		n := newsletter("hourly", "UTC", "08:00")
		_, err := NextSend(n, time.Now(), false)
		require.Error(t, err)
	})
}

func TestIsDue(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	n := newsletter(models.FrequencyDaily, "America/New_York", "06:00")

	t.Run("due inside window", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2026, 6, 1, 5, 50, 0, 0, ny)
		due, err := IsDue(n, start, start.Add(15*time.Minute), false)
		require.NoError(t, err)
		require.True(t, due)
	})

	t.Run("due at exact window start", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2026, 6, 1, 6, 0, 0, 0, ny)
		due, err := IsDue(n, start, start.Add(15*time.Minute), false)
		require.NoError(t, err)
		require.True(t, due, "a send instant on the tick boundary belongs to the window starting there")
	})

	t.Run("not due at exact window end", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2026, 6, 1, 5, 45, 0, 0, ny)
		due, err := IsDue(n, start, start.Add(15*time.Minute), false)
		require.NoError(t, err)
		require.False(t, due, "the window is half-open at the end")
	})

	t.Run("not due outside window", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2026, 6, 1, 5, 30, 0, 0, ny)
		due, err := IsDue(n, start, start.Add(15*time.Minute), false)
		require.NoError(t, err)
		require.False(t, due)
	})

	t.Run("not due when already sent today", func(t *testing.T) {
		t.Parallel()
		start := time.Date(2026, 6, 1, 5, 50, 0, 0, ny)
		due, err := IsDue(n, start, start.Add(15*time.Minute), true)
		require.NoError(t, err)
		require.False(t, due)
	})

	t.Run("paused is never due", func(t *testing.T) {
		t.Parallel()
		paused := newsletter(models.FrequencyDaily, "America/New_York", "06:00")
		paused.IsPaused = true
		start := time.Date(2026, 6, 1, 5, 50, 0, 0, ny)
		due, err := IsDue(paused, start, start.Add(15*time.Minute), false)
		require.NoError(t, err)
		require.False(t, due)
	})
}

func TestLocalDate(t *testing.T) {
	t.Parallel()

	// 23:30 UTC is already the next day in Tokyo.
	now := time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC)

	utcDate, err := LocalDate("UTC", now)
	require.NoError(t, err)
	require.Equal(t, "2026-06-01", utcDate)

	tokyoDate, err := LocalDate("Asia/Tokyo", now)
	require.NoError(t, err)
	require.Equal(t, "2026-06-02", tokyoDate)

	_, err = LocalDate("Not/AZone", now)
	require.Error(t, err)
}
