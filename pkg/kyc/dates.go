package kyc

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	numericDateRE  = regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`)
	isoDateRE      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	alphaDateRE    = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})\s*,?\s*(\d{4})\b`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November,
	"dec": time.December,
}

// ParseDate parses noisy OCR date strings tolerantly. The confidence reflects
// how ambiguous the format was: alphabetic months and ISO dates are
// unambiguous; two small numerics could be either order and cap at 0.5.
func ParseDate(s string) (time.Time, float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, 0, false
	}

	// Alphabetic month is explicit: month-first.
	if m := alphaDateRE.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[1])[:3]]
		if strings.EqualFold(m[1], "sept") {
			month, ok = time.September, true
		}
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if ok && validYMD(year, int(month), day) {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), 0.95, true
		}
	}

	if m := isoDateRE.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if validYMD(year, month, day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), 0.95, true
		}
	}

	if m := numericDateRE.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 1900 {
			return time.Time{}, 0, false
		}
		switch {
		case a > 12 && b <= 12 && validYMD(year, b, a): // day must come first
			return time.Date(year, time.Month(b), a, 0, 0, 0, 0, time.UTC), 0.9, true
		case b > 12 && a <= 12 && validYMD(year, a, b): // month-first
			return time.Date(year, time.Month(a), b, 0, 0, 0, 0, time.UTC), 0.9, true
		case validYMD(year, b, a):
			// Genuinely ambiguous; take day-first (local convention) at
			// capped confidence.
			return time.Date(year, time.Month(b), a, 0, 0, 0, 0, time.UTC), 0.5, true
		}
	}
	return time.Time{}, 0, false
}

func validYMD(year, month, day int) bool {
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day && int(t.Month()) == month
}
