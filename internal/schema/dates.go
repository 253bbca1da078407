package schema

import (
	"strings"
	"time"
)

// dateLayouts is the full set of accepted calendar-date forms. Slash dates
// are month-first; dotted and dashed day-first dates use two-digit fields.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"02.01.2006",
	"02-01-2006",
	"01/02/2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"2 January 2006",
}

// timestampLayouts are accepted as dates; the time of day is dropped.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseDate parses s strictly against the accepted layouts and returns the
// calendar date at UTC midnight. Strings made only of digits (and an
// optional sign) are never dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || isDigits(s) {
		return time.Time{}, false
	}
	for _, lay := range dateLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	for _, lay := range timestampLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
