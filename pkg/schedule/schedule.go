package schedule

import (
	"errors"
	"fmt"

	"github.com/klokku/budgetly/pkg/budget_category"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/period"
)

var ErrDateRange = errors.New("invalid schedule date range")
var ErrScheduleNotFound = errors.New("schedule not found")
var ErrScheduleExists = errors.New("sub-budget already has a schedule")
var ErrScheduleClosed = errors.New("schedule is closed")
var ErrScheduleNotActive = errors.New("schedule is not active")
var ErrVersionConflict = errors.New("schedule was modified concurrently")
var ErrInvalidTransaction = errors.New("invalid transaction")

type Status string

const (
	Uninitialized Status = "UNINITIALIZED"
	Active        Status = "ACTIVE"
	Closed        Status = "CLOSED"
)

// BudgetSchedule is the set of sub-periods of one sub-budget. SubPeriods are always recomputed as a whole.
type BudgetSchedule struct {
	Id          string
	SubBudgetId string
	Cadence     period.Cadence
	Span        date_range.DateRange
	SubPeriods  []date_range.DateRange
	Status      Status
	Version     int
}

// Caps limits the number of sub-periods per cadence. Zero or missing means no limit.
type Caps map[period.Cadence]int

func DefaultCaps() Caps {
	return Caps{period.Biweekly: 3}
}

// plan decomposes span and enforces the cap of the cadence. The returned span is the union of the periods,
// which differs from span only when a single day was expanded to a nominal month.
func (c Caps) plan(span date_range.DateRange, cadence period.Cadence) (date_range.DateRange, []date_range.DateRange, error) {
	decomposer, err := period.NewDecomposer(cadence)
	if err != nil {
		return date_range.DateRange{}, nil, fmt.Errorf("%w: %w", ErrDateRange, err)
	}
	periods, err := decomposer.Decompose(span)
	if err != nil {
		return date_range.DateRange{}, nil, fmt.Errorf("%w: %w", ErrDateRange, err)
	}
	if limit := c[cadence]; limit > 0 && len(periods) > limit {
		return date_range.DateRange{}, nil, fmt.Errorf("%w: %s yields %d %s periods, at most %d allowed; use a shorter span or another cadence",
			ErrDateRange, span, len(periods), cadence, limit)
	}
	effective := date_range.DateRange{Start: periods[0].Start, End: periods[len(periods)-1].End}
	return effective, periods, nil
}

// Skipped is a category left out of a ledger build and why.
type Skipped struct {
	Category string
	Reason   string
}

type BuildResult struct {
	Schedule   BudgetSchedule
	Categories []budget_category.BudgetCategory
	Skipped    []Skipped
	// Unmatched lists ids of in-span transactions that carry neither a label nor a category id.
	Unmatched []string
}

type Position string

const (
	Past    Position = "PAST"
	Current Position = "CURRENT"
	Future  Position = "FUTURE"
)

// TimelineEntry summarizes the ledger of one sub-period.
type TimelineEntry struct {
	Period     date_range.DateRange
	Position   Position
	Categories []budget_category.BudgetCategory
}

type Timeline struct {
	Schedule BudgetSchedule
	Entries  []TimelineEntry
}
