package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateKey identifies a calendar day as "{year}-{month}-{day}" with a
// 1-based month and no zero padding, e.g. "2024-3-5".
type DateKey string

// Date is a (year, month, day) triple. Month is 0-based.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()) - 1, Day: t.Day()}
}

// Key returns the lookup key for d.
func (d Date) Key() DateKey {
	return KeyFor(d.Year, d.Month, d.Day)
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month+1), d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month+1, d.Day)
}

// KeyFor builds the key for a 0-based month.
func KeyFor(year, month, day int) DateKey {
	return DateKey(fmt.Sprintf("%d-%d-%d", year, month+1, day))
}

// ParseISODate converts a "YYYY-MM-DD" date (as returned by remote APIs)
// into a DateKey. Anything after the date part, such as a time, is ignored.
func ParseISODate(s string) (DateKey, error) {
	d, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return d.Key(), nil
}

// ParseDate parses a "YYYY-MM-DD" date, ignoring any trailing time part.
func ParseDate(s string) (Date, error) {
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Period is a displayed (month, year) pair. Month is 0-based.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()) - 1, Year: t.Year()}
}

// ParsePeriod parses "YYYY-MM" (1-based month).
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("invalid period %q: expected YYYY-MM", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("invalid period year %q: %w", parts[0], err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("invalid period month %q: %w", parts[1], err)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("invalid period month %d: must be 1-12", month)
	}
	return Period{Month: month - 1, Year: year}, nil
}

// Advance moves the period by direction months, carrying into the year.
func (p Period) Advance(direction int) Period {
	p.Month += direction
	return p.Normalize()
}

// Normalize folds Month into [0,11], adjusting Year.
func (p Period) Normalize() Period {
	for p.Month < 0 {
		p.Month += 12
		p.Year--
	}
	for p.Month > 11 {
		p.Month -= 12
		p.Year++
	}
	return p
}

// Start is midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month+1), 1, 0, 0, 0, 0, time.UTC)
}

// End is midnight UTC on the first day of the following period.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Label returns the English month name and year, e.g. "March 2024".
func (p Period) Label() string {
	return fmt.Sprintf("%s %d", time.Month(p.Month+1).String(), p.Year)
}

// QueryDate formats the period the way the astronomy API expects it:
// "{year}-{month}" with a 1-based, unpadded month.
func (p Period) QueryDate() string {
	return fmt.Sprintf("%d-%d", p.Year, p.Month+1)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month+1)
}

// IsLeapYear applies the Gregorian leap-year rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// DaysInMonth returns the number of days in a 0-based month, using day 0
// of the following month.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

// FirstWeekday returns the weekday of day 1 (0=Sunday..6=Saturday).
func FirstWeekday(year, month int) int {
	return int(time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC).Weekday())
}
