package models

import (
	"sort"
	"time"
)

// Coverage records, per source, the seasons already ingested into the map.
// Sources that are not partitioned by season are recorded with an empty list.
type Coverage map[string][]int

// Has reports whether the season of source has been ingested.
func (c Coverage) Has(source string, season int) bool {
	for _, s := range c[source] {
		if s == season {
			return true
		}
	}
	return false
}

// HasSource reports whether anything from source has been ingested.
func (c Coverage) HasSource(source string) bool {
	_, ok := c[source]
	return ok
}

// Mark records seasons of source as ingested. Seasons are kept sorted and unique.
func (c Coverage) Mark(source string, seasons ...int) {
	merged := append(append([]int{}, c[source]...), seasons...)
	sort.Ints(merged)

	out := merged[:0]
	for i, s := range merged {
		if i > 0 && merged[i-1] == s {
			continue
		}
		out = append(out, s)
	}
	c[source] = out
}

// Clone returns a deep copy.
func (c Coverage) Clone() Coverage {
	out := make(Coverage, len(c))
	for source, seasons := range c {
		out[source] = append([]int{}, seasons...)
	}
	return out
}

// Snapshot is the unit of persistence: history, entity map and coverage are
// always written and read together.
type Snapshot struct {
	History  Table     `json:"history"`
	Entities Table     `json:"entities"`
	Coverage Coverage  `json:"coverage"`
	SavedAt  time.Time `json:"saved_at"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		History:  NewTable(),
		Entities: NewTable(),
		Coverage: Coverage{},
	}
}
