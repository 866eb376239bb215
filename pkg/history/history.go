// Package history tracks every raw record ever ingested so repeated batches
// contribute nothing new to the entity map.
package history

import (
	"github.com/Ramsey-B/clover/pkg/models"
)

// History is the de-duplicated union of every record ever ingested.
// It only grows.
type History struct {
	table models.Table
	seen  map[string]struct{}
}

// New creates an empty history.
func New() *History {
	return &History{
		table: models.NewTable(),
		seen:  make(map[string]struct{}),
	}
}

// FromTable restores a history from a persisted table. Duplicate rows in the
// table are collapsed.
func FromTable(table models.Table) *History {
	h := &History{
		table: table.Dedupe(),
		seen:  make(map[string]struct{}, table.Len()),
	}
	h.table.Each(func(_ int, r models.Record) {
		h.seen[r.Fingerprint()] = struct{}{}
	})
	return h
}

// Ingest absorbs batch and returns its novel records: the non-empty records
// that occur exactly once in batch and had never been ingested before this
// call, in batch order. A record repeated inside batch is not novel, but it is
// still recorded so later batches treat it as seen.
func (h *History) Ingest(batch models.Table) models.Table {
	counts := make(map[string]int, batch.Len())
	batch.Each(func(_ int, r models.Record) {
		if r.IsEmpty() {
			return
		}
		counts[r.Fingerprint()]++
	})

	added := make([]models.Record, 0, len(counts))
	novel := make([]models.Record, 0, len(counts))
	batch.Each(func(_ int, r models.Record) {
		if r.IsEmpty() {
			return
		}
		fp := r.Fingerprint()
		if _, ok := h.seen[fp]; ok {
			return
		}
		h.seen[fp] = struct{}{}
		added = append(added, r.Clone())
		if counts[fp] == 1 {
			novel = append(novel, r.Clone())
		}
	})

	if len(added) > 0 {
		h.table = h.table.Append(added...)
	}
	return models.NewTableWithColumns(batch.Columns(), novel...)
}

// Contains reports whether the record has been ingested.
func (h *History) Contains(r models.Record) bool {
	_, ok := h.seen[r.Fingerprint()]
	return ok
}

// Len returns the number of distinct records ingested.
func (h *History) Len() int {
	return h.table.Len()
}

// Table returns the ingested records in ingestion order.
func (h *History) Table() models.Table {
	return h.table
}
