package stock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ISO WEEK - Canonical time bucket for purchases, allocations and demand
// =============================================================================

// DateLayout is the calendar date format used at the boundaries.
const DateLayout = "2006-01-02"

var weekPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Week is an ISO 8601 week, Monday-start, rendered as YYYY-Www.
type Week struct {
	Year int
	Num  int
}

// WeeksInYear returns 52 or 53. December 28th always sits in the last ISO
// week of its year.
func WeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// ParseWeek parses YYYY-Www. Week 53 is only accepted for long ISO years.
func ParseWeek(s string) (Week, error) {
	m := weekPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Week{}, Invalid("semana", fmt.Sprintf("%q is not YYYY-Www", s))
	}
	year, _ := strconv.Atoi(m[1])
	num, _ := strconv.Atoi(m[2])
	if num < 1 || num > WeeksInYear(year) {
		return Week{}, Invalid("semana", fmt.Sprintf("week %d out of range for %d", num, year))
	}
	return Week{Year: year, Num: num}, nil
}

// MustParseWeek is ParseWeek for literals in tests and scenarios.
func MustParseWeek(s string) Week {
	w, err := ParseWeek(s)
	if err != nil {
		panic(err)
	}
	return w
}

// WeekOf returns the ISO week containing the calendar date of t.
func WeekOf(t time.Time) Week {
	y, w := t.ISOWeek()
	return Week{Year: y, Num: w}
}

// MondayOf returns the Monday (UTC midnight) of the week containing the
// calendar date of t.
func MondayOf(t time.Time) time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// Monday returns the first day of the week at UTC midnight.
func (w Week) Monday() time.Time {
	// January 4th is always in week 1.
	return MondayOf(time.Date(w.Year, time.January, 4, 0, 0, 0, 0, time.UTC)).AddDate(0, 0, 7*(w.Num-1))
}

// MondayDate is Monday formatted as YYYY-MM-DD.
func (w Week) MondayDate() string { return w.Monday().Format(DateLayout) }

func (w Week) String() string {
	if w.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-W%02d", w.Year, w.Num)
}

func (w Week) IsZero() bool { return w.Year == 0 && w.Num == 0 }
func (w Week) Before(o Week) bool { return w.Year < o.Year || (w.Year == o.Year && w.Num < o.Num) }
func (w Week) After(o Week) bool { return o.Before(w) }
func (w Week) AddWeeks(n int) Week { return WeekOf(w.Monday().AddDate(0, 0, 7*n)) }
func (w Week) Contains(t time.Time) bool { return WeekOf(t) == w }

func (w Week) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *Week) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*w = Week{}
		return nil
	}
	parsed, err := ParseWeek(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// ParseDate parses a strict YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, Invalid("fecha", fmt.Sprintf("%q is not YYYY-MM-DD", s))
	}
	return t, nil
}

// ResolveWeek picks the week from either representation. An explicit week
// wins; a legacy calendar date is converted to the week containing it.
func ResolveWeek(week, date string) (Week, error) {
	week, date = strings.TrimSpace(week), strings.TrimSpace(date)
	switch {
	case week != "":
		return ParseWeek(week)
	case date != "":
		t, err := ParseDate(date)
		if err != nil {
			return Week{}, err
		}
		return WeekOf(t), nil
	default:
		return Week{}, Invalid("semana", "required (YYYY-Www)")
	}
}
