package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - Half-open time window used for queries and reports
// =============================================================================

// Period is the half-open window [Start, End).
//
// Examples:
//   - Month of March 2025: [Mar 1 00:00, Apr 1 00:00)
//   - Availability query for one week: [Mon 00:00, next Mon 00:00)
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the calendar month in loc.
func MonthPeriod(year int, month time.Month, loc *time.Location) (Period, error) {
	if month < time.January || month > time.December {
		return Period{}, NewValidationError("month", "range", "month must be between 1 and 12")
	}
	if loc == nil {
		loc = time.UTC
	}
	start := StartOfMonth(year, month, loc)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}, nil
}

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// IsEmpty reports a window that holds no instant.
func (p Period) IsEmpty() bool {
	return !p.Start.Before(p.End)
}

// Days returns local midnight of every calendar day the period touches.
func (p Period) Days() []time.Time {
	var days []time.Time
	for d := StartOfDay(p.Start); d.Before(p.End); d = AddDays(d, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}
