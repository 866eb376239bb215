// Package merging implements key-field entity resolution over an entity table.
package merging

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Engine fuses records that share a value on a key field, one key at a time.
type Engine struct {
	logger      ectologger.Logger
	fieldMerger *FieldMerger
}

// NewEngine creates a new resolution engine
func NewEngine(logger ectologger.Logger) *Engine {
	return &Engine{
		logger:      logger,
		fieldMerger: NewFieldMerger(),
	}
}

// ValidateKeys checks an ordered key field list.
func ValidateKeys(keys []string) error {
	if len(keys) == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "at least one key field is required")
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "key fields must not be blank")
		}
		if _, dup := seen[k]; dup {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "key field %q is listed more than once", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Maptize resolves table over keys, in order. Each pass reads the result of
// the previous one, so a fusion on an earlier key can make records groupable
// on a later key. The input table is not modified.
//
// Behavior per key:
//   - rows whose key value is shared with at least one other row are grouped by that value
//   - a consistent group is replaced, member by member, with its fused record
//   - an inconsistent group is left untouched and reported as a conflict
//   - the rebuilt table is collapsed so fused members appear once
func (e *Engine) Maptize(ctx context.Context, table models.Table, keys []string) (models.Table, *Report, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Maptize")
	defer span.End()

	if err := ValidateKeys(keys); err != nil {
		return models.Table{}, nil, err
	}

	span.SetAttributes(
		attribute.StringSlice("clover.keys", keys),
		attribute.Int("clover.rows", table.Len()),
	)

	report := &Report{Passes: make([]PassReport, 0, len(keys))}
	current := table
	for _, key := range keys {
		var pass PassReport
		current, pass = e.resolveKey(ctx, current, key)
		report.Passes = append(report.Passes, pass)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"keys":        keys,
		"rows_before": report.RowsBefore(),
		"rows_after":  report.RowsAfter(),
		"fused":       report.Fused(),
		"conflicts":   len(report.Conflicts()),
	}).Info("Resolved entity map")

	return current, report, nil
}

// resolveKey runs a single pass over key.
func (e *Engine) resolveKey(ctx context.Context, table models.Table, key string) (models.Table, PassReport) {
	log := e.logger.WithContext(ctx).WithField("key", key)

	pass := PassReport{Key: key, RowsBefore: table.Len()}

	// Group row positions by key value, in order of first appearance.
	positions := make(map[string][]int)
	var values []string
	table.Each(func(i int, r models.Record) {
		v, ok := r.Get(key)
		if !ok {
			return
		}
		if _, seen := positions[v]; !seen {
			values = append(values, v)
		}
		positions[v] = append(positions[v], i)
	})

	replacements := make(map[int]models.Record)
	for _, v := range values {
		rows := positions[v]
		if len(rows) < 2 {
			continue
		}
		pass.Groups++

		members := make([]models.Record, len(rows))
		for i, row := range rows {
			members[i] = table.At(row)
		}

		fused, conflict := e.fieldMerger.MergeGroup(key, v, members)
		if conflict != nil {
			pass.Conflicts = append(pass.Conflicts, *conflict)
			log.WithFields(map[string]any{
				"value":   v,
				"members": len(rows),
				"fields":  conflictFieldNames(conflict),
			}).Warn("Skipping merge group with conflicting values")
			continue
		}

		pass.Fused++
		for _, row := range rows {
			replacements[row] = fused
		}
	}

	if len(replacements) == 0 {
		next := table.Dedupe()
		pass.RowsAfter = next.Len()
		return next, pass
	}

	rebuilt := make([]models.Record, table.Len())
	table.Each(func(i int, r models.Record) {
		if fused, ok := replacements[i]; ok {
			rebuilt[i] = fused.Clone()
			return
		}
		rebuilt[i] = r.Clone()
	})

	next := models.NewTableWithColumns(table.Columns(), rebuilt...).Dedupe()
	pass.RowsAfter = next.Len()

	log.WithFields(map[string]any{
		"groups":      pass.Groups,
		"fused":       pass.Fused,
		"conflicts":   len(pass.Conflicts),
		"rows_before": pass.RowsBefore,
		"rows_after":  pass.RowsAfter,
	}).Debug("Resolved key")

	return next, pass
}

func conflictFieldNames(c *MergeConflict) []string {
	return ectolinq.Map(c.Fields, func(f FieldConflict) string {
		return f.Field
	})
}
