package entitymap

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Stats summarizes a loaded snapshot.
type Stats struct {
	EntityRows  int             `json:"entity_rows"`
	HistoryRows int             `json:"history_rows"`
	Columns     []string        `json:"columns"`
	FieldCounts map[string]int  `json:"field_counts"`
	Coverage    models.Coverage `json:"coverage"`
	SavedAt     time.Time       `json:"saved_at"`
	LoadedAt    time.Time       `json:"loaded_at"`
}

// View serves read-only lookups over the last committed snapshot. Reload
// swaps in a newer snapshot; readers never see a partially loaded one.
type View struct {
	store  Store
	logger ectologger.Logger

	mu       sync.RWMutex
	snap     *models.Snapshot
	index    map[string]map[string][]int
	loadedAt time.Time
}

// NewView creates an empty view over store. Call Reload to load it.
func NewView(store Store, logger ectologger.Logger) *View {
	return &View{
		store:  store,
		logger: logger,
		snap:   models.NewSnapshot(),
		index:  map[string]map[string][]int{},
	}
}

// Reload reads the store and replaces the served snapshot. A missing
// snapshot serves an empty map.
func (v *View) Reload(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "entitymap.View.Reload")
	defer span.End()

	snap, err := v.store.Load(ctx)
	if err != nil {
		if httperror.GetStatusCode(err) != http.StatusNotFound {
			return err
		}
		snap = models.NewSnapshot()
	}

	index := map[string]map[string][]int{}
	snap.Entities.Each(func(i int, r models.Record) {
		for field, value := range r {
			byValue, ok := index[field]
			if !ok {
				byValue = map[string][]int{}
				index[field] = byValue
			}
			byValue[value] = append(byValue[value], i)
		}
	})

	v.mu.Lock()
	v.snap = snap
	v.index = index
	v.loadedAt = time.Now().UTC()
	v.mu.Unlock()

	v.logger.WithContext(ctx).WithField("entity_rows", snap.Entities.Len()).Info("Loaded entity map view")
	return nil
}

// Lookup returns every entity row whose field equals value.
func (v *View) Lookup(field, value string) []models.Record {
	v.mu.RLock()
	defer v.mu.RUnlock()

	positions := v.index[field][value]
	out := make([]models.Record, len(positions))
	for i, pos := range positions {
		out[i] = v.snap.Entities.At(pos)
	}
	return out
}

// List returns a page of entity rows and the total row count.
func (v *View) List(offset, limit int) ([]models.Record, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	total := v.snap.Entities.Len()
	if offset < 0 {
		offset = 0
	}
	if offset >= total || limit <= 0 {
		return []models.Record{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	out := make([]models.Record, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, v.snap.Entities.At(i))
	}
	return out, total
}

// Stats summarizes the served snapshot.
func (v *View) Stats() Stats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	counts := make(map[string]int, len(v.index))
	for field, byValue := range v.index {
		n := 0
		for _, positions := range byValue {
			n += len(positions)
		}
		counts[field] = n
	}

	columns := v.snap.Entities.Columns()
	sort.Strings(columns)

	return Stats{
		EntityRows:  v.snap.Entities.Len(),
		HistoryRows: v.snap.History.Len(),
		Columns:     columns,
		FieldCounts: counts,
		Coverage:    v.snap.Coverage.Clone(),
		SavedAt:     v.snap.SavedAt,
		LoadedAt:    v.loadedAt,
	}
}
