// Package dates normalizes the calendar-date formats accepted at the API
// boundary. Downstream code works on Date values only; raw strings are parsed
// exactly once, on the way in.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a calendar date with no time component.
type Date struct {
	Year  int
	Month int
	Day   int
}

var daysPerMonth = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear follows the Gregorian rule: divisible by 4, except centuries
// unless divisible by 400.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInMonth returns the day count for month (1-12) in year, or 0 for an
// out-of-range month.
func DaysInMonth(month, year int) int {
	if month < 1 || month > 12 {
		return 0
	}
	if month == 2 && IsLeapYear(year) {
		return 29
	}
	return daysPerMonth[month]
}

// Valid reports whether day/month/year name a real calendar date.
func Valid(day, month, year int) bool {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return false
	}
	return day <= DaysInMonth(month, year)
}

// Parse accepts three shapes: RFC3339-style timestamps (the date part is
// kept, the time discarded), YYYY-MM-DD, and DD-MM-YYYY. Anything else is an
// error; callers must not guess.
func Parse(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, fmt.Errorf("empty date")
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
		}
		s = s[:i]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("unrecognized date %q", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("unrecognized date %q", s)
		}
		nums[i] = n
	}
	var d Date
	if len(parts[0]) == 4 {
		d = Date{Year: nums[0], Month: nums[1], Day: nums[2]}
	} else {
		d = Date{Year: nums[2], Month: nums[1], Day: nums[0]}
	}
	if !Valid(d.Day, d.Month, d.Year) {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// FromTime truncates t to its calendar date.
func FromTime(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// String returns the canonical YYYY-MM-DD form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Display returns the DD-MM-YYYY form used in human-facing output.
func (d Date) Display() string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day, d.Month, d.Year)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Compare returns -1, 0 or 1 ordering d against other.
func (d Date) Compare(other Date) int {
	a := d.Year*10000 + d.Month*100 + d.Day
	b := other.Year*10000 + other.Month*100 + other.Day
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.Compare(other) > 0 }

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.Compare(other) < 0 }
