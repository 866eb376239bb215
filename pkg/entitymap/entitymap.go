// Package entitymap holds the resolved entity table together with the
// ingestion history that feeds it.
package entitymap

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/history"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Store persists snapshots.
type Store interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
}

// AppendResult describes one ingested batch.
type AppendResult struct {
	Received int `json:"received"`
	Novel    int `json:"novel"`
	Rows     int `json:"rows"`
}

// EntityMap is the working entity table W and its history H. It is not safe
// for concurrent use; a single run owns it.
type EntityMap struct {
	logger   ectologger.Logger
	engine   *merging.Engine
	history  *history.History
	table    models.Table
	coverage models.Coverage
}

// New creates an empty entity map.
func New(logger ectologger.Logger, engine *merging.Engine) *EntityMap {
	return &EntityMap{
		logger:   logger,
		engine:   engine,
		history:  history.New(),
		table:    models.NewTable(),
		coverage: models.Coverage{},
	}
}

// Append normalizes batch, drops every record already ingested in an earlier
// call, and adds the novel records to the entity table.
func (m *EntityMap) Append(ctx context.Context, batch models.Table) (AppendResult, error) {
	ctx, span := tracing.StartSpan(ctx, "entitymap.EntityMap.Append")
	defer span.End()

	novel := m.history.Ingest(batch.Normalize())
	if novel.Len() > 0 {
		m.table = m.table.Append(novel.Records()...)
	}

	result := AppendResult{Received: batch.Len(), Novel: novel.Len(), Rows: m.table.Len()}
	span.SetAttributes(
		attribute.Int("clover.received", result.Received),
		attribute.Int("clover.novel", result.Novel),
	)

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"received": result.Received,
		"novel":    result.Novel,
		"rows":     result.Rows,
		"history":  m.history.Len(),
	}).Debug("Appended batch")

	return result, nil
}

// Maptize resolves the entity table over keys, in order. On error the table is unchanged.
func (m *EntityMap) Maptize(ctx context.Context, keys []string) (*merging.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "entitymap.EntityMap.Maptize")
	defer span.End()

	resolved, report, err := m.engine.Maptize(ctx, m.table, keys)
	if err != nil {
		return nil, err
	}
	m.table = resolved
	return report, nil
}

// Load replaces the map's state with the stored snapshot.
func (m *EntityMap) Load(ctx context.Context, store Store) error {
	ctx, span := tracing.StartSpan(ctx, "entitymap.EntityMap.Load")
	defer span.End()

	if store == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "snapshot store is required")
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}

	m.history = history.FromTable(snap.History)
	m.table = snap.Entities
	m.coverage = snap.Coverage
	if m.coverage == nil {
		m.coverage = models.Coverage{}
	}

	m.logger.WithContext(ctx).WithFields(map[string]any{
		"history_rows": m.history.Len(),
		"entity_rows":  m.table.Len(),
	}).Info("Loaded entity map")
	return nil
}

// Dump writes history, entities and coverage to store as one unit.
func (m *EntityMap) Dump(ctx context.Context, store Store) error {
	ctx, span := tracing.StartSpan(ctx, "entitymap.EntityMap.Dump")
	defer span.End()

	if store == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "snapshot store is required")
	}
	return store.Save(ctx, m.Snapshot())
}

// Snapshot returns the current state as a snapshot.
func (m *EntityMap) Snapshot() *models.Snapshot {
	return &models.Snapshot{
		History:  m.history.Table(),
		Entities: m.table,
		Coverage: m.coverage.Clone(),
		SavedAt:  time.Now().UTC(),
	}
}

// Table returns the current entity table.
func (m *EntityMap) Table() models.Table {
	return m.table
}

// History returns every record ever ingested.
func (m *EntityMap) History() models.Table {
	return m.history.Table()
}

// Coverage returns a copy of the ingested seasons per source.
func (m *EntityMap) Coverage() models.Coverage {
	return m.coverage.Clone()
}

// MarkCovered records seasons of source as ingested. Call with no seasons for
// sources that are not split by season.
func (m *EntityMap) MarkCovered(source string, seasons ...int) {
	m.coverage.Mark(source, seasons...)
}
