package merging

import "github.com/Ramsey-B/clover/pkg/models"

// FieldConflict lists the distinct values a merge group carries for one field.
type FieldConflict struct {
	Field  string   `json:"field"`
	Values []string `json:"values"`
}

// MergeConflict is a group of records that share a key value but disagree on
// at least one other field. Conflicting groups are never fused.
type MergeConflict struct {
	Key     string          `json:"key"`
	Value   string          `json:"value"`
	Fields  []FieldConflict `json:"fields"`
	Records []models.Record `json:"records"`
}

// PassReport describes one resolution pass over a single key field.
type PassReport struct {
	Key        string          `json:"key"`
	Groups     int             `json:"groups"`
	Fused      int             `json:"fused"`
	Conflicts  []MergeConflict `json:"conflicts,omitempty"`
	RowsBefore int             `json:"rows_before"`
	RowsAfter  int             `json:"rows_after"`
}

// Report is the outcome of resolving an entity table over an ordered key list.
type Report struct {
	Passes []PassReport `json:"passes"`
}

// Fused returns the number of groups fused across all passes.
func (r *Report) Fused() int {
	total := 0
	for _, p := range r.Passes {
		total += p.Fused
	}
	return total
}

// Conflicts returns every conflict found, in pass order.
func (r *Report) Conflicts() []MergeConflict {
	var out []MergeConflict
	for _, p := range r.Passes {
		out = append(out, p.Conflicts...)
	}
	return out
}

// RowsBefore returns the table size before the first pass.
func (r *Report) RowsBefore() int {
	if len(r.Passes) == 0 {
		return 0
	}
	return r.Passes[0].RowsBefore
}

// RowsAfter returns the table size after the last pass.
func (r *Report) RowsAfter() int {
	if len(r.Passes) == 0 {
		return 0
	}
	return r.Passes[len(r.Passes)-1].RowsAfter
}
