package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// Window is an inclusive range of UTC calendar days processed by one run.
type Window struct {
	Start civil.Date `json:"start_date"`
	End   civil.Date `json:"end_date"`
}

// NewWindow validates that start is not after end.
func NewWindow(start, end civil.Date) (Window, error) {
	if !start.IsValid() || !end.IsValid() {
		return Window{}, fmt.Errorf("NewWindow: invalid date in %s..%s", start, end)
	}
	if end.Before(start) {
		return Window{}, fmt.Errorf("NewWindow: end %s before start %s", end, start)
	}
	return Window{Start: start, End: end}, nil
}

// ParseWindow parses YYYY-MM-DD start and end dates. An empty end means
// a single-day window.
func ParseWindow(start, end string) (Window, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return Window{}, fmt.Errorf("ParseWindow: start: %w", err)
	}
	e := s
	if end != "" {
		if e, err = civil.ParseDate(end); err != nil {
			return Window{}, fmt.Errorf("ParseWindow: end: %w", err)
		}
	}
	return NewWindow(s, e)
}

// DayBefore returns the single-day window for the day preceding the
// execution time (in UTC).
func DayBefore(execution time.Time) Window {
	d := civil.DateOf(execution.UTC()).AddDays(-1)
	return Window{Start: d, End: d}
}

// Dates lists every day in the window.
func (w Window) Dates() []civil.Date {
	var out []civil.Date
	for d := w.Start; !d.After(w.End); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d civil.Date) bool {
	return !d.Before(w.Start) && !d.After(w.End)
}

// Key identifies the window, e.g. "2025-07-30_to_2025-07-30".
func (w Window) Key() string {
	return fmt.Sprintf("%s_to_%s", w.Start, w.End)
}

func (w Window) String() string {
	return w.Key()
}
