package merging

import (
	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/models"
)

// FieldMerger fuses the records of a key group field by field.
type FieldMerger struct{}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger() *FieldMerger {
	return &FieldMerger{}
}

// MergeGroup fuses members that share value on key. The fused record carries,
// for every field, the single non-null value contributed by any member.
//
// If any field has two or more distinct non-null values the group is not
// fused at all and the conflict is returned instead.
func (m *FieldMerger) MergeGroup(key, value string, members []models.Record) (models.Record, *MergeConflict) {
	candidates, order := m.collectValues(members)

	var conflicts []FieldConflict
	fused := make(models.Record, len(order))
	for _, field := range order {
		values := candidates[field]
		if len(values) > 1 {
			conflicts = append(conflicts, FieldConflict{Field: field, Values: values})
			continue
		}
		fused[field] = values[0]
	}

	if len(conflicts) > 0 {
		records := make([]models.Record, len(members))
		for i, r := range members {
			records[i] = r.Clone()
		}
		return nil, &MergeConflict{
			Key:     key,
			Value:   value,
			Fields:  conflicts,
			Records: records,
		}
	}

	return fused, nil
}

// collectValues returns the distinct non-null values per field in order of
// first appearance, and the fields in order of first appearance.
func (m *FieldMerger) collectValues(members []models.Record) (map[string][]string, []string) {
	candidates := make(map[string][]string)
	var order []string

	for _, r := range members {
		for _, field := range r.Fields() {
			v := r[field]
			values, seen := candidates[field]
			if !seen {
				order = append(order, field)
			}
			if !ectolinq.Contains(values, v) {
				candidates[field] = append(values, v)
			}
		}
	}
	return candidates, order
}
