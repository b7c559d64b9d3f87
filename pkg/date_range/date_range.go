package date_range

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidDateRange = errors.New("invalid date range")

const dateLayout = "2006-01-02"

// DateRange is an inclusive pair of calendar dates. Both ends are normalized to midnight UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// New creates a DateRange, truncating both dates to their calendar day.
// Zero dates or an end before the start return ErrInvalidDateRange.
func New(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidDateRange, r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return r, nil
}

// MustNew is New for literals known to be valid. It panics otherwise.
func MustNew(start, end time.Time) DateRange {
	r, err := New(start, end)
	if err != nil {
		panic(err)
	}
	return r
}

// Parse builds a DateRange from two YYYY-MM-DD strings.
func Parse(start, end string) (DateRange, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: invalid start date %q", ErrInvalidDateRange, start)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: invalid end date %q", ErrInvalidDateRange, end)
	}
	return New(s, e)
}

// Day returns the calendar day of t as midnight UTC, keeping the wall-clock date of t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Validate reports whether the range satisfies start <= end with both dates set.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidDateRange, r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return nil
}

// Days returns the number of calendar days in the range, both ends included.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// Weeks returns ceil(days/7).
func (r DateRange) Weeks() int {
	return ceilDiv(r.Days(), 7)
}

// Biweeks returns ceil(days/14).
func (r DateRange) Biweeks() int {
	return ceilDiv(r.Days(), 14)
}

// Months returns the number of calendar months touched by the range.
func (r DateRange) Months() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return (r.End.Year()-r.Start.Year())*12 + int(r.End.Month()) - int(r.Start.Month()) + 1
}

// Contains reports whether the calendar day of date lies within the range.
func (r DateRange) Contains(date time.Time) bool {
	d := Day(date)
	return !d.Before(r.Start) && !d.After(r.End)
}

// ContainsRange reports whether other lies entirely within r.
func (r DateRange) ContainsRange(other DateRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Overlaps reports whether the two ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.End.Before(other.Start) && !other.End.Before(r.Start)
}

// WithinSingleMonth reports whether start and end fall in the same calendar month.
func (r DateRange) WithinSingleMonth() bool {
	return r.Start.Year() == r.End.Year() && r.Start.Month() == r.End.Month()
}

// ContainsMonth reports whether any day of the given month lies within the range.
func (r DateRange) ContainsMonth(year int, month time.Month) bool {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return r.Overlaps(DateRange{Start: first, End: last})
}

func (r DateRange) Equal(other DateRange) bool {
	return r.Start.Equal(other.Start) && r.End.Equal(other.End)
}

func (r DateRange) String() string {
	return r.Start.Format(dateLayout) + ".." + r.End.Format(dateLayout)
}

// SplitByDays cuts the range into consecutive chunks of n days starting at Start.
// The last chunk holds whatever is left (1..n days).
func (r DateRange) SplitByDays(n int) []DateRange {
	if n <= 0 || r.End.Before(r.Start) {
		return nil
	}
	chunks := make([]DateRange, 0, ceilDiv(r.Days(), n))
	for start := r.Start; !start.After(r.End); start = start.AddDate(0, 0, n) {
		end := start.AddDate(0, 0, n-1)
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, DateRange{Start: start, End: end})
	}
	return chunks
}

// SplitByMonths cuts the range on calendar-month boundaries.
func (r DateRange) SplitByMonths() []DateRange {
	if r.End.Before(r.Start) {
		return nil
	}
	chunks := make([]DateRange, 0, r.Months())
	start := r.Start
	for !start.After(r.End) {
		monthEnd := time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		end := monthEnd
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, DateRange{Start: start, End: end})
		start = monthEnd.AddDate(0, 0, 1)
	}
	return chunks
}

// NominalMonthFrom returns the one-month range starting at start: [start, start + 1 month - 1 day].
func NominalMonthFrom(start time.Time) DateRange {
	s := Day(start)
	return DateRange{Start: s, End: s.AddDate(0, 1, -1)}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
