package convo

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var digitsRegex = regexp.MustCompile(`\d+`)

// parseSowingDate interprets a normalized date expression: the literal
// "hoy"/"today", "hace N dias"/"N days ago", "hace N semanas"/"N weeks
// ago", or a numeric day/month/year date. Returns false when the input
// cannot be parsed; callers re-prompt without advancing state.
func parseSowingDate(msg string, today time.Time) (time.Time, bool) {
	today = dateOnly(today)

	if msg == "hoy" || msg == "today" {
		return today, true
	}

	if strings.Contains(msg, "hace") || strings.Contains(msg, "ago") {
		m := digitsRegex.FindString(msg)
		if m == "" {
			return time.Time{}, false
		}
		n, err := strconv.Atoi(m)
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		switch {
		case strings.Contains(msg, "dia") || strings.Contains(msg, "day"):
			return today.AddDate(0, 0, -n), true
		case strings.Contains(msg, "semana") || strings.Contains(msg, "week"):
			return today.AddDate(0, 0, -7*n), true
		}
		return time.Time{}, false
	}

	if strings.Contains(msg, "/") {
		parts := strings.Split(msg, "/")
		if len(parts) != 3 {
			return time.Time{}, false
		}
		day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		year, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			return time.Time{}, false
		}
		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location())
		// time.Date normalizes overflow (40/13/2025 rolls over), so an
		// exact round trip is required for the input to be valid.
		if date.Day() != day || int(date.Month()) != month || date.Year() != year {
			return time.Time{}, false
		}
		return date, true
	}

	return time.Time{}, false
}

// elapsedDays counts whole calendar days between the sowing date and today.
// Both dates are reduced to UTC midnights first, so a DST transition in the
// local zone cannot shorten or stretch a day to 23h or 25h.
func elapsedDays(sowing, today time.Time) int {
	return int(utcMidnight(today).Sub(utcMidnight(sowing)).Hours() / 24)
}

func utcMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
