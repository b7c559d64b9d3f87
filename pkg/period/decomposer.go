package period

import (
	"fmt"

	"github.com/klokku/budgetly/pkg/date_range"
)

// strategy splits a valid span into ordered sub-periods.
type strategy func(span date_range.DateRange) []date_range.DateRange

// strategies is the closed set of decomposition rules, one per cadence.
var strategies = map[Cadence]strategy{
	Daily:    daily,
	Weekly:   fixedLength(7),
	Biweekly: fixedLength(14),
	Monthly:  monthly,
}

// Decomposer resolves the decomposition rule for a cadence once and applies it to spans.
type Decomposer struct {
	cadence Cadence
	split   strategy
}

// NewDecomposer returns the decomposer for the given cadence.
func NewDecomposer(cadence Cadence) (Decomposer, error) {
	s, ok := strategies[cadence]
	if !ok {
		return Decomposer{}, fmt.Errorf("%w: %q", ErrUnknownCadence, cadence)
	}
	return Decomposer{cadence: cadence, split: s}, nil
}

func (d Decomposer) Cadence() Cadence {
	return d.cadence
}

// Decompose returns the contiguous, non-overlapping sub-periods covering span.
// The output depends only on span and the cadence.
func (d Decomposer) Decompose(span date_range.DateRange) ([]date_range.DateRange, error) {
	if d.split == nil {
		return nil, fmt.Errorf("%w: decomposer not initialized", ErrUnknownCadence)
	}
	if err := span.Validate(); err != nil {
		return nil, err
	}
	return d.split(span), nil
}

// Decompose is a shortcut for NewDecomposer(cadence) followed by Decompose(span).
func Decompose(span date_range.DateRange, cadence Cadence) ([]date_range.DateRange, error) {
	d, err := NewDecomposer(cadence)
	if err != nil {
		return nil, err
	}
	return d.Decompose(span)
}

func daily(span date_range.DateRange) []date_range.DateRange {
	return span.SplitByDays(1)
}

// fixedLength splits span into chunks of n days from span.Start; the last chunk keeps the remainder.
// A single-day span stands for the nominal month starting on that day.
func fixedLength(n int) strategy {
	return func(span date_range.DateRange) []date_range.DateRange {
		if span.Days() == 1 {
			span = date_range.NominalMonthFrom(span.Start)
		}
		return span.SplitByDays(n)
	}
}

func monthly(span date_range.DateRange) []date_range.DateRange {
	if span.WithinSingleMonth() {
		return []date_range.DateRange{span}
	}
	return span.SplitByMonths()
}
