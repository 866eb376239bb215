// Package processor drives update runs: it pulls source batches into the
// entity map, resolves it, commits the snapshot and notifies sinks.
package processor

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/clover/pkg/catalog"
	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/datasource"
	"github.com/Ramsey-B/clover/pkg/entitymap"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/season"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	KindUpdate  = "update"
	KindResolve = "resolve"
	KindImport  = "import"
)

// Sink is notified after a run has been committed. Sink failures never undo
// the commit.
type Sink interface {
	Name() string
	Publish(ctx context.Context, result *RunResult) error
}

// Config controls which sources are pulled and how the map is resolved.
type Config struct {
	Sources     []string
	KeyFields   []string
	FirstSeason int
	// RefreshExisting re-requests seasons that are already covered.
	RefreshExisting bool
}

// SourceResult describes one source's contribution to a run.
type SourceResult struct {
	Source   string `json:"source"`
	Seasons  []int  `json:"seasons,omitempty"`
	Received int    `json:"received"`
	Novel    int    `json:"novel"`
}

// RunResult is the outcome of a committed run.
type RunResult struct {
	RunID      string            `json:"run_id"`
	Kind       string            `json:"kind"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Sources    []SourceResult    `json:"sources,omitempty"`
	Report     *merging.Report   `json:"report"`
	HistoryLen int               `json:"history_rows"`
	SinkErrors map[string]string `json:"sink_errors,omitempty"`

	// Previous is the entity table as last committed, Entities the new one.
	Previous models.Table `json:"-"`
	Entities models.Table `json:"-"`
}

// Updater runs update cycles against a snapshot store.
type Updater struct {
	cfg     Config
	logger  ectologger.Logger
	catalog *catalog.Catalog
	source  datasource.DataSource
	store   entitymap.Store
	engine  *merging.Engine
	sinks   []Sink
	now     func() time.Time
}

// NewUpdater creates an updater.
func NewUpdater(
	cfg Config,
	logger ectologger.Logger,
	cat *catalog.Catalog,
	source datasource.DataSource,
	store entitymap.Store,
	engine *merging.Engine,
	sinks ...Sink,
) *Updater {
	return &Updater{
		cfg:     cfg,
		logger:  logger,
		catalog: cat,
		source:  source,
		store:   store,
		engine:  engine,
		sinks:   sinks,
		now:     time.Now,
	}
}

// Run pulls every configured source, resolves the map over the configured key
// fields and commits the result. Nothing is persisted when any step before the
// commit fails.
func (u *Updater) Run(ctx context.Context) (*RunResult, error) {
	return u.run(ctx, KindUpdate, u.cfg.KeyFields, func(ctx context.Context, m *entitymap.EntityMap, result *RunResult) error {
		current := season.Current(u.now())
		for _, name := range u.cfg.Sources {
			adapter, err := u.catalog.Get(name)
			if err != nil {
				return err
			}
			sr, err := u.pullSource(ctx, m, adapter, current)
			if err != nil {
				return err
			}
			result.Sources = append(result.Sources, sr)
		}
		return nil
	})
}

// Resolve re-runs resolution over the stored map with keys and commits it.
// No source is pulled.
func (u *Updater) Resolve(ctx context.Context, keys []string) (*RunResult, error) {
	if len(keys) == 0 {
		keys = u.cfg.KeyFields
	}
	return u.run(ctx, KindResolve, keys, func(context.Context, *entitymap.EntityMap, *RunResult) error {
		return nil
	})
}

// Ingest appends an externally supplied table of source records, then
// resolves and commits. The table must carry the source's published columns.
func (u *Updater) Ingest(ctx context.Context, source string, table models.Table) (*RunResult, error) {
	adapter, err := u.catalog.Get(source)
	if err != nil {
		return nil, err
	}
	return u.run(ctx, KindImport, u.cfg.KeyFields, func(ctx context.Context, m *entitymap.EntityMap, result *RunResult) error {
		sr, err := u.appendBatch(ctx, m, adapter, table, nil)
		if err != nil {
			return err
		}
		result.Sources = append(result.Sources, sr)
		return nil
	})
}

type pullFunc func(ctx context.Context, m *entitymap.EntityMap, result *RunResult) error

func (u *Updater) run(ctx context.Context, kind string, keys []string, pull pullFunc) (*RunResult, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.Updater."+kind)
	defer span.End()

	result := &RunResult{
		RunID:     uuid.NewString(),
		Kind:      kind,
		StartedAt: u.now().UTC(),
	}
	ctx = clovercontext.SetRunID(ctx, result.RunID)
	span.SetAttributes(attribute.String("clover.run_id", result.RunID))

	log := u.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": result.RunID,
		"kind":   kind,
	})

	if err := merging.ValidateKeys(keys); err != nil {
		return nil, err
	}

	fail := func(step string, err error) (*RunResult, error) {
		tracing.RecordError(ctx, err)
		log.WithError(err).Errorf("Run failed during %s; nothing was committed", step)
		metrics.RecordRun(kind, "failed", u.now().Sub(result.StartedAt).Seconds())
		return nil, err
	}

	m := entitymap.New(u.logger, u.engine)
	if err := m.Load(ctx, u.store); err != nil {
		if httperror.GetStatusCode(err) != http.StatusNotFound {
			return fail("load", err)
		}
		log.Info("No snapshot found, starting from an empty map")
	}
	result.Previous = m.Table()

	if err := pull(ctx, m, result); err != nil {
		return fail("ingest", err)
	}

	report, err := m.Maptize(ctx, keys)
	if err != nil {
		return fail("resolve", err)
	}
	result.Report = report
	for _, pass := range report.Passes {
		metrics.RecordResolution(pass.Key, pass.Fused, len(pass.Conflicts))
	}

	if err := m.Dump(ctx, u.store); err != nil {
		return fail("commit", err)
	}

	result.Entities = m.Table()
	result.HistoryLen = m.History().Len()
	metrics.RecordCommit(result.HistoryLen, result.Entities.Len())

	log.WithFields(map[string]any{
		"history_rows": result.HistoryLen,
		"entity_rows":  result.Entities.Len(),
		"fused":        report.Fused(),
		"conflicts":    len(report.Conflicts()),
	}).Info("Committed entity map")

	u.publish(ctx, result)

	result.FinishedAt = u.now().UTC()
	metrics.RecordRun(kind, "committed", result.FinishedAt.Sub(result.StartedAt).Seconds())
	return result, nil
}

// pullSource fetches the periods of a source that the map still needs.
// Year-partitioned sources request every uncovered season plus the current
// one; other sources are always refreshed in full.
func (u *Updater) pullSource(ctx context.Context, m *entitymap.EntityMap, adapter *catalog.Source, current int) (SourceResult, error) {
	req := datasource.FetchRequest{Source: adapter.Name(), Refresh: true}
	if adapter.Partitioned() {
		req.Seasons = u.seasonsToFetch(m.Coverage(), adapter, current)
	}

	raw, err := u.source.Fetch(ctx, req)
	if err != nil {
		return SourceResult{}, err
	}
	return u.appendBatch(ctx, m, adapter, raw, req.Seasons)
}

func (u *Updater) seasonsToFetch(coverage models.Coverage, adapter *catalog.Source, current int) []int {
	first := adapter.FirstSeason()
	if u.cfg.FirstSeason > first {
		first = u.cfg.FirstSeason
	}

	var seasons []int
	for _, s := range season.Range(first, current) {
		if s == current || u.cfg.RefreshExisting || !coverage.Has(adapter.Name(), s) {
			seasons = append(seasons, s)
		}
	}
	return seasons
}

func (u *Updater) appendBatch(ctx context.Context, m *entitymap.EntityMap, adapter *catalog.Source, raw models.Table, seasons []int) (SourceResult, error) {
	batch, err := adapter.Prepare(raw)
	if err != nil {
		return SourceResult{}, err
	}

	appended, err := m.Append(ctx, batch)
	if err != nil {
		return SourceResult{}, err
	}
	m.MarkCovered(adapter.Name(), seasons...)
	metrics.RecordIngest(adapter.Name(), appended.Received, appended.Novel)

	u.logger.WithContext(ctx).WithFields(map[string]any{
		"source":   adapter.Name(),
		"seasons":  len(seasons),
		"received": appended.Received,
		"novel":    appended.Novel,
	}).Info("Ingested source")

	return SourceResult{
		Source:   adapter.Name(),
		Seasons:  seasons,
		Received: appended.Received,
		Novel:    appended.Novel,
	}, nil
}

func (u *Updater) publish(ctx context.Context, result *RunResult) {
	for _, sink := range u.sinks {
		if err := sink.Publish(ctx, result); err != nil {
			u.logger.WithContext(ctx).WithError(err).WithField("sink", sink.Name()).Error("Sink failed after commit")
			if result.SinkErrors == nil {
				result.SinkErrors = map[string]string{}
			}
			result.SinkErrors[sink.Name()] = err.Error()
			metrics.RecordSink(sink.Name(), "failed")
			continue
		}
		metrics.RecordSink(sink.Name(), "ok")
	}
}
