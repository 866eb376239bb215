// Package season does NFL season calendar bookkeeping.
package season

import "time"

// rolloverDay is the last day of February that still belongs to the previous
// season; the Super Bowl is always played on or before it.
const rolloverDay = 20

// Current returns the season in progress at now. January, and February up to
// the 20th, belong to the season that started the previous calendar year.
func Current(now time.Time) int {
	year := now.Year()
	switch {
	case now.Month() == time.January:
		return year - 1
	case now.Month() == time.February && now.Day() <= rolloverDay:
		return year - 1
	default:
		return year
	}
}

// Range returns every season from first to last inclusive. It is empty when
// first is after last.
func Range(first, last int) []int {
	if first > last {
		return nil
	}
	out := make([]int, 0, last-first+1)
	for s := first; s <= last; s++ {
		out = append(out, s)
	}
	return out
}
