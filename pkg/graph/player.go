package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultLabel     = "Player"
	DefaultBatchSize = 1000
)

// Writer executes statements atomically.
type Writer interface {
	WriteBatch(ctx context.Context, statements []Statement) error
}

// Syncer replaces the graph's player nodes with the committed entity map.
// Each row becomes one node keyed by its fingerprint; nodes whose
// fingerprint is no longer in the map are detached and deleted.
type Syncer struct {
	writer    Writer
	logger    ectologger.Logger
	label     string
	batchSize int
}

// NewSyncer creates a graph syncer.
func NewSyncer(writer Writer, logger ectologger.Logger) *Syncer {
	return &Syncer{
		writer:    writer,
		logger:    logger,
		label:     DefaultLabel,
		batchSize: DefaultBatchSize,
	}
}

func (s *Syncer) Name() string { return "graph" }

// Publish syncs the run's entity table.
func (s *Syncer) Publish(ctx context.Context, result *processor.RunResult) error {
	return s.Sync(ctx, result.RunID, result.Entities)
}

// Sync writes entities to the graph in one transaction.
func (s *Syncer) Sync(ctx context.Context, runID string, entities models.Table) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Syncer.Sync")
	defer span.End()

	statements := s.Statements(runID, entities)
	if err := s.writer.WriteBatch(ctx, statements); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"nodes":  entities.Len(),
	}).Info("Synced entity map to graph")
	return nil
}

// Statements builds the upsert batches followed by the stale node cleanup.
func (s *Syncer) Statements(runID string, entities models.Table) []Statement {
	label := sanitizeLabel(s.label)
	upsert := fmt.Sprintf(`
		UNWIND $batch AS row
		MERGE (p:%s {fingerprint: row.fingerprint})
		SET p = row.props, p.fingerprint = row.fingerprint, p.run_id = $run_id
	`, label)

	fingerprints := make([]string, 0, entities.Len())
	var statements []Statement
	batch := make([]map[string]any, 0, s.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		statements = append(statements, Statement{
			Cypher: upsert,
			Params: map[string]any{"batch": batch, "run_id": runID},
		})
		batch = make([]map[string]any, 0, s.batchSize)
	}

	entities.Each(func(_ int, r models.Record) {
		fp := r.Fingerprint()
		fingerprints = append(fingerprints, fp)

		props := make(map[string]any, len(r))
		for k, v := range r {
			props[k] = v
		}
		batch = append(batch, map[string]any{"fingerprint": fp, "props": props})
		if len(batch) >= s.batchSize {
			flush()
		}
	})
	flush()

	statements = append(statements, Statement{
		Cypher: fmt.Sprintf(`
		MATCH (p:%s)
		WHERE NOT p.fingerprint IN $fingerprints
		DETACH DELETE p
	`, label),
		Params: map[string]any{"fingerprints": fingerprints},
	})
	return statements
}

// sanitizeLabel ensures the label is safe for Cypher
func sanitizeLabel(label string) string {
	result := make([]rune, 0, len(label))
	for _, c := range label {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		}
	}
	if len(result) == 0 {
		return DefaultLabel
	}
	return string(result)
}
