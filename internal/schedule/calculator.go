// Package schedule computes send eligibility for newsletters.
//
// Everything in this package is pure: no clocks, no I/O, no logging. The
// dispatcher supplies "now" and the already-sent-today flag, and treats any
// returned error as "never due" (schedule fields are validated by the
// config-writing layer before they are persisted, so an error here means a
// record the dashboard should never have produced).
package schedule

import (
	"fmt"
	"time"

	"github.com/newsletter-engine/internal/models"
)

// maxQuarterlyScan bounds the month scan for quarterly schedules. Any
// non-empty month set qualifies within 12 months; 24 is a hard stop.
const maxQuarterlyScan = 24

// NextSend returns the next eligible send instant for the newsletter,
// strictly after now. sentToday marks that an issue was already delivered
// on now's calendar date in the newsletter's local zone; candidates on
// that date are skipped.
func NextSend(n *models.Newsletter, now time.Time, sentToday bool) (time.Time, error) {
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", n.Timezone, err)
	}

	hour, minute, err := parseSendTime(n.SendTime)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)

	sendAt := func(d time.Time) time.Time {
		return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
	}
	// A candidate is rejected if it is not in the future, or if it falls on
	// today's local date and today's issue already went out.
	rejected := func(cand time.Time) bool {
		if !cand.After(now) {
			return true
		}
		return sentToday && sameLocalDay(cand, local)
	}

	switch n.Frequency {
	case models.FrequencyDaily:
		cand := sendAt(local)
		if rejected(cand) {
			cand = sendAt(local.AddDate(0, 0, 1))
		}
		return cand, nil

	case models.FrequencyWeekly:
		if len(n.DaysOfWeek) == 0 {
			return time.Time{}, fmt.Errorf("weekly newsletter %d has no send days", n.ID)
		}
		for i := 0; i <= 7; i++ {
			day := local.AddDate(0, 0, i)
			if !n.DaysOfWeek.Contains(isoWeekday(day)) {
				continue
			}
			if cand := sendAt(day); !rejected(cand) {
				return cand, nil
			}
		}
		return time.Time{}, fmt.Errorf("weekly newsletter %d: no eligible day within 7 days", n.ID)

	case models.FrequencyMonthly:
		firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		for i := 0; i < 3; i++ {
			month := firstOfMonth.AddDate(0, i, 0)
			cand := clampedSend(month, n.DayOfMonth, hour, minute, loc)
			if !rejected(cand) {
				return cand, nil
			}
		}
		return time.Time{}, fmt.Errorf("monthly newsletter %d: no eligible date", n.ID)

	case models.FrequencyQuarterly:
		if len(n.Months) == 0 {
			return time.Time{}, fmt.Errorf("quarterly newsletter %d has no send months", n.ID)
		}
		firstOfMonth := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		for i := 0; i < maxQuarterlyScan; i++ {
			month := firstOfMonth.AddDate(0, i, 0)
			if !n.Months.Contains(int(month.Month())) {
				continue
			}
			cand := clampedSend(month, n.DayOfMonth, hour, minute, loc)
			if !rejected(cand) {
				return cand, nil
			}
		}
		return time.Time{}, fmt.Errorf("quarterly newsletter %d: no eligible month", n.ID)

	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", n.Frequency)
	}
}

// IsDue reports whether the newsletter's next send instant falls inside
// [windowStart, windowEnd). Paused newsletters are never due.
//
// The start is inclusive: a send instant landing exactly on a tick
// boundary belongs to this window, not to none. NextSend only returns
// instants strictly after its reference, so the reference is nudged
// just behind the boundary. The nudge can only confuse the sentToday
// guard when the boundary is exactly local midnight; the ledger's
// uniqueness constraint catches that duplicate.
func IsDue(n *models.Newsletter, windowStart, windowEnd time.Time, sentToday bool) (bool, error) {
	if n.IsPaused {
		return false, nil
	}
	next, err := NextSend(n, windowStart.Add(-time.Nanosecond), sentToday)
	if err != nil {
		return false, err
	}
	return next.Before(windowEnd), nil
}

// LocalDate formats t as YYYY-MM-DD in the given IANA zone. This is the
// idempotency key component: "already sent today" is keyed by the
// newsletter's local calendar date, never the UTC date.
func LocalDate(timezone string, t time.Time) (string, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return "", fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return t.In(loc).Format("2006-01-02"), nil
}

// clampedSend places the send instant on day-of-month within the month
// containing ref, clamping to the last valid day. day_of_month=31 in a
// 30-day month sends on the 30th, never the 1st of the following month.
func clampedSend(ref time.Time, dayOfMonth, hour, minute int, loc *time.Location) time.Time {
	if dayOfMonth < 1 {
		dayOfMonth = 1
	}
	last := daysInMonth(ref.Year(), ref.Month())
	if dayOfMonth > last {
		dayOfMonth = last
	}
	return time.Date(ref.Year(), ref.Month(), dayOfMonth, hour, minute, 0, 0, loc)
}

// daysInMonth returns the number of days in the given month. Day zero of
// the following month normalizes to the last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// isoWeekday maps time.Weekday to ISO numbering: Monday=1 .. Sunday=7
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func parseSendTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid send time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
