package nudge

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sendWindowHours is how far either side of the preferred hour a nudge may go out.
const sendWindowHours = 1

// WithinSendWindow reports whether now, seen in the recipient's timezone,
// is within one hour of their preferred time. Only hours are compared and
// the distance wraps at midnight. An unknown timezone or unreadable
// preferred time allows the send; the dedupe check still caps it at one.
func WithinSendWindow(now time.Time, preferredTime, timezone string) bool {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return true
	}

	preferred, ok := parseHour(preferredTime)
	if !ok {
		return true
	}

	delta := now.In(loc).Hour() - preferred
	if delta < 0 {
		delta = -delta
	}
	if delta > 12 {
		delta = 24 - delta
	}

	return delta <= sendWindowHours
}

// parseHour reads the hour from "HH:MM" or "HH:MM:SS".
func parseHour(s string) (int, bool) {
	h, _, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	return hour, true
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DuePhrase renders a due date relative to today as bold mrkdwn:
// *Today*, *Tomorrow*, or the weekday name.
func DuePhrase(due, now time.Time) string {
	// Compare calendar dates in UTC so DST shifts cannot skew the count.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)

	switch int(day.Sub(today) / (24 * time.Hour)) {
	case 0:
		return "*Today*"
	case 1:
		return "*Tomorrow*"
	default:
		return "*" + day.Weekday().String() + "*"
	}
}

// SessionDatePhrase renders a session date like "Mon, Jan 2".
func SessionDatePhrase(d time.Time) string {
	return d.Format("Mon, Jan 2")
}

// ISOWeekKey identifies the ISO week containing t, e.g. "2026-W43".
func ISOWeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
