package utils

import "time"

// YearBoundary is the first day of a tax year. The boundary is injected
// configuration, not a constant: calendar years use January 1, other
// jurisdictions start mid-year (e.g. April 6).
type YearBoundary struct {
	Month time.Month
	Day   int
}

// CalendarYear is the January 1 boundary.
var CalendarYear = YearBoundary{Month: time.January, Day: 1}

// TaxYearOf returns the tax year containing t. A tax year is labelled by the
// calendar year in which it starts.
func (b YearBoundary) TaxYearOf(t time.Time) int {
	t = t.UTC()
	start := time.Date(t.Year(), b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	if t.Before(start) {
		return t.Year() - 1
	}
	return t.Year()
}

// Period returns the [start, end) range of the given tax year.
func (b YearBoundary) Period(year int) (time.Time, time.Time) {
	start := time.Date(year, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, b.Month, b.Day, 0, 0, 0, 0, time.UTC)
	return start, end
}

// Window is one fetch window of a date-limited remote endpoint.
type Window struct {
	Start time.Time
	End   time.Time
}

// SplitWindows splits [start, end) into consecutive windows of at most span.
// The last window is truncated to end. An empty or inverted range yields nil.
func SplitWindows(start, end time.Time, span time.Duration) []Window {
	if !start.Before(end) || span <= 0 {
		return nil
	}
	var windows []Window
	for cur := start; cur.Before(end); {
		next := cur.Add(span)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}
	return windows
}
