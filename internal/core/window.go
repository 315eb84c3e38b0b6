package core

import (
	"strings"
	"time"
)

// Range selects the statistics window.
type Range string

const (
	RangeWeek   Range = "week"
	RangeMonth  Range = "month"
	RangeYear   Range = "year"
	RangeCustom Range = "custom"
)

// FilterType selects which side of the ledger statistics group.
type FilterType string

const (
	FilterIncome  FilterType = "income"
	FilterExpense FilterType = "expense"
	FilterAll     FilterType = "all"
)

// Window is an inclusive time interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// MonthWindow returns the calendar month containing ref.
func MonthWindow(ref time.Time) Window {
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return Window{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// WeekWindow returns the ISO week containing ref, Monday through Sunday.
func WeekWindow(ref time.Time) Window {
	offset := (int(ref.Weekday()) + 6) % 7
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7).Add(-time.Nanosecond)}
}

// YearWindow returns January 1st through December 31st of ref's year.
func YearWindow(ref time.Time) Window {
	start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, ref.Location())
	return Window{Start: start, End: start.AddDate(1, 0, 0).Add(-time.Nanosecond)}
}

// StatsWindow resolves a range around ref. Custom has no bounds of its own
// and falls back to the calendar month, as does any unknown range.
func StatsWindow(r Range, ref time.Time) Window {
	switch r {
	case RangeWeek:
		return WeekWindow(ref)
	case RangeYear:
		return YearWindow(ref)
	default:
		return MonthWindow(ref)
	}
}

// ParseRange normalises a range string, defaulting to month.
func ParseRange(s string) (Range, error) {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RangeMonth, nil
	case RangeWeek, RangeMonth, RangeYear, RangeCustom:
		return r, nil
	default:
		return "", NewValidationError("range", "must be week, month, year or custom")
	}
}

// ParseFilterType normalises a statistics type, defaulting to expense.
func ParseFilterType(s string) (FilterType, error) {
	switch t := FilterType(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return FilterExpense, nil
	case FilterIncome, FilterExpense, FilterAll:
		return t, nil
	default:
		return "", NewValidationError("type", "must be income, expense or all")
	}
}

// EffectiveType is the side actually grouped. "all" is grouped as expense;
// a combined breakdown is not computed.
func (t FilterType) EffectiveType() EntryType {
	if t == FilterIncome {
		return Income
	}
	return Expense
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
}

// ParseDate parses the date formats accepted from clients. Values without
// a zone are interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}
