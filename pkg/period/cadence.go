package period

import (
	"errors"
	"fmt"
	"strings"
)

// Cadence is the granularity used to subdivide a budget span.
type Cadence string

const (
	Daily    Cadence = "DAILY"
	Weekly   Cadence = "WEEKLY"
	Biweekly Cadence = "BIWEEKLY"
	Monthly  Cadence = "MONTHLY"
)

var ErrUnknownCadence = errors.New("unknown cadence")

// Cadences lists all supported cadences, shortest first.
var Cadences = []Cadence{Daily, Weekly, Biweekly, Monthly}

// ParseCadence converts a case-insensitive name to a Cadence.
func ParseCadence(s string) (Cadence, error) {
	c := Cadence(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := strategies[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCadence, s)
	}
	return c, nil
}

func (c Cadence) String() string {
	return string(c)
}
