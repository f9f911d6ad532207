// Package availability decides whether a site can take a stay, using
// half-open [start, end) date intervals so a departure and an arrival on
// the same day never conflict.
package availability

import (
	"math"
	"time"
)

// DateRange is the half-open interval [Start, End) of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange builds a stay from arrival and departure dates.
func NewDateRange(arrival, departure time.Time) DateRange {
	return DateRange{Start: arrival, End: departure}
}

// FromInclusive converts an inclusive [first, last] block into a half-open range.
func FromInclusive(first, last time.Time) DateRange {
	return DateRange{Start: first, End: last.AddDate(0, 0, 1)}
}

// Valid reports whether the range covers at least one night.
func (r DateRange) Valid() bool {
	return r.Start.Before(r.End)
}

// Nights is the number of whole days between Start and End.
func (r DateRange) Nights() int {
	return int(math.Round(r.End.Sub(r.Start).Hours() / 24))
}

// Overlaps implements a1 < d2 AND a2 < d1.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// IsAvailable returns false if any occupied range overlaps the candidate.
func IsAvailable(occupied []DateRange, candidate DateRange) bool {
	for _, o := range occupied {
		if o.Overlaps(candidate) {
			return false
		}
	}
	return true
}

// Conflicts returns the occupied ranges that overlap the candidate.
func Conflicts(occupied []DateRange, candidate DateRange) []DateRange {
	var out []DateRange
	for _, o := range occupied {
		if o.Overlaps(candidate) {
			out = append(out, o)
		}
	}
	return out
}
