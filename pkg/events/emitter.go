// Package events handles event emission for entity map changes
package events

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EntityCreated = "entity.created"
	EntityDeleted = "entity.deleted"
	MergeConflict = "merge.conflict"
)

// Publisher sends event batches.
type Publisher interface {
	PublishEntityEvents(ctx context.Context, events []*kafka.EntityEvent) error
	PublishConflictEvents(ctx context.Context, events []*kafka.ConflictEvent) error
}

// Emitter turns a committed run into entity and conflict events.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

func (e *Emitter) Name() string { return "events" }

// Publish emits entity.created for rows new to the map, entity.deleted for
// rows no longer in it, and merge.conflict for every unresolved group.
func (e *Emitter) Publish(ctx context.Context, result *processor.RunResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.Publish")
	defer span.End()

	created, deleted := Diff(result.Previous, result.Entities)

	entityEvents := make([]*kafka.EntityEvent, 0, len(created)+len(deleted))
	for _, r := range created {
		entityEvents = append(entityEvents, e.entityEvent(EntityCreated, result.RunID, r, true))
	}
	for _, r := range deleted {
		entityEvents = append(entityEvents, e.entityEvent(EntityDeleted, result.RunID, r, false))
	}
	if err := e.publisher.PublishEntityEvents(ctx, entityEvents); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity events")
		return err
	}

	var conflicts []merging.MergeConflict
	if result.Report != nil {
		conflicts = result.Report.Conflicts()
	}
	conflictEvents := make([]*kafka.ConflictEvent, 0, len(conflicts))
	for _, c := range conflicts {
		conflictEvents = append(conflictEvents, conflictEvent(result.RunID, c))
	}
	if err := e.publisher.PublishConflictEvents(ctx, conflictEvents); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit conflict events")
		return err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":    result.RunID,
		"created":   len(created),
		"deleted":   len(deleted),
		"conflicts": len(conflictEvents),
	}).Info("Emitted events")
	return nil
}

func (e *Emitter) entityEvent(eventType, runID string, r models.Record, withData bool) *kafka.EntityEvent {
	event := &kafka.EntityEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		RunID:     runID,
		EntityID:  r.Fingerprint(),
	}
	if withData {
		event.Data = r.Clone()
	}
	return event
}

func conflictEvent(runID string, c merging.MergeConflict) *kafka.ConflictEvent {
	fields := make([]kafka.ConflictField, len(c.Fields))
	for i, f := range c.Fields {
		fields[i] = kafka.ConflictField{Field: f.Field, Values: append([]string{}, f.Values...)}
	}
	return &kafka.ConflictEvent{
		EventID:     uuid.NewString(),
		EventType:   MergeConflict,
		RunID:       runID,
		Key:         c.Key,
		Value:       c.Value,
		Fields:      fields,
		RecordCount: len(c.Records),
	}
}

// Diff compares two entity tables by row fingerprint. created lists rows of
// after missing from before; deleted lists rows of before missing from after.
func Diff(before, after models.Table) (created, deleted []models.Record) {
	beforeSet := fingerprints(before)
	afterSet := fingerprints(after)

	after.Each(func(_ int, r models.Record) {
		if _, ok := beforeSet[r.Fingerprint()]; !ok {
			created = append(created, r)
		}
	})
	before.Each(func(_ int, r models.Record) {
		if _, ok := afterSet[r.Fingerprint()]; !ok {
			deleted = append(deleted, r)
		}
	})
	return created, deleted
}

func fingerprints(t models.Table) map[string]struct{} {
	out := make(map[string]struct{}, t.Len())
	t.Each(func(_ int, r models.Record) {
		out[r.Fingerprint()] = struct{}{}
	})
	return out
}
