package coerce

import (
	"strings"
	"time"
)

// Layout ladders for free-text parsing. Day-first layouts are attempted
// before month-first when dayfirst is set, and vice versa, so ambiguous
// values like "03/04/2024" resolve according to the caller's locale hint.
var (
	unambiguousLayouts = []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"2006/01/02",
		"2 January 2006",
		"2 Jan 2006",
		"January 2, 2006",
		"Jan 2, 2006",
	}
	dayFirstLayouts = []string{
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"02/01/2006",
		"02-01-2006",
		"02.01.2006",
		"2/1/2006",
		"2.1.2006",
	}
	monthFirstLayouts = []string{
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
		"01/02/2006",
		"01-02-2006",
		"01.02.2006",
		"1/2/2006",
		"1.2.2006",
	}
)

// ParseDate parses free-text dates with a day-first preference, plus a
// fallback for digit-only strings: exactly 7 or 8 digits are read as
// day/month/year (7 digits are left-padded to 8). The second return
// value reports success.
func ParseDate(value string, dayfirst bool) (time.Time, bool) {
	text := strings.TrimSpace(value)
	if text == "" {
		return time.Time{}, false
	}

	if ts, ok := digitsOnlyToDate(text, dayfirst); ok {
		return ts, true
	}

	layouts := make([]string, 0, len(unambiguousLayouts)+len(dayFirstLayouts)+len(monthFirstLayouts))
	layouts = append(layouts, unambiguousLayouts...)
	if dayfirst {
		layouts = append(layouts, dayFirstLayouts...)
		layouts = append(layouts, monthFirstLayouts...)
	} else {
		layouts = append(layouts, monthFirstLayouts...)
		layouts = append(layouts, dayFirstLayouts...)
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// digitsOnlyToDate handles values like "31012024" (31 January 2024) and
// "1022024" (1 February 2024). Any non-digit characters disqualify the
// fast path only when the digit count is not 7 or 8.
func digitsOnlyToDate(value string, dayfirst bool) (time.Time, bool) {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if s == "" {
		return time.Time{}, false
	}
	if len(s) == 7 {
		s = "0" + s
	}
	if len(s) != 8 {
		return time.Time{}, false
	}

	var day, month int
	if dayfirst {
		day = atoi2(s[0:2])
		month = atoi2(s[2:4])
	} else {
		month = atoi2(s[0:2])
		day = atoi2(s[2:4])
	}
	year := atoi2(s[4:6])*100 + atoi2(s[6:8])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// reject rollovers such as 31 February
	if ts.Day() != day || int(ts.Month()) != month {
		return time.Time{}, false
	}
	return ts, true
}

func atoi2(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// FormatDate renders a parsed timestamp in the second-resolution ISO
// form used throughout responses and exports.
func FormatDate(ts time.Time) string {
	return ts.Format("2006-01-02T15:04:05")
}
