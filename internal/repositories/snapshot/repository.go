package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	snapshotID = "current"

	// A source that is not split by season is covered as a whole.
	wholeSourceSeason = 0

	defaultBatchSize = 500
)

type snapshotRow struct {
	ID             string                   `db:"id"`
	HistoryColumns database.JSONB[[]string] `db:"history_columns"`
	EntityColumns  database.JSONB[[]string] `db:"entity_columns"`
	SavedAt        string                   `db:"saved_at"`
}

type recordRow struct {
	Position    int                           `db:"position"`
	Fingerprint string                        `db:"fingerprint"`
	Data        database.JSONB[models.Record] `db:"data"`
}

type coverageRow struct {
	Source string `db:"source"`
	Season int    `db:"season"`
}

// Repository persists snapshots in a SQL database. History, entities and
// coverage are written in a single transaction.
type Repository struct {
	db        database.DB
	logger    ectologger.Logger
	flavor    sqlbuilder.Flavor
	batchSize int
}

// NewRepository creates a new snapshot repository
func NewRepository(db database.DB, logger ectologger.Logger, batchSize int) *Repository {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Repository{
		db:        db,
		logger:    logger,
		flavor:    database.Flavor(db.DriverName()),
		batchSize: batchSize,
	}
}

// Load reads the stored snapshot. It returns a 404 error when nothing has been saved yet.
func (r *Repository) Load(ctx context.Context) (*models.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Load")
	defer span.End()

	sb := r.flavor.NewSelectBuilder()
	sb.Select("id", "history_columns", "entity_columns", "saved_at")
	sb.From("snapshots")
	sb.Where(sb.Equal("id", snapshotID))
	query, args := sb.Build()

	var row snapshotRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "snapshot not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load snapshot")
	}

	history, err := r.loadRecords(ctx, "history_records", row.HistoryColumns.GetValue())
	if err != nil {
		return nil, err
	}
	entities, err := r.loadRecords(ctx, "entity_records", row.EntityColumns.GetValue())
	if err != nil {
		return nil, err
	}
	coverage, err := r.loadCoverage(ctx)
	if err != nil {
		return nil, err
	}

	savedAt, err := time.Parse(time.RFC3339Nano, row.SavedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("saved_at", row.SavedAt).Warn("Snapshot has an unreadable saved_at")
	}

	return &models.Snapshot{
		History:  history,
		Entities: entities,
		Coverage: coverage,
		SavedAt:  savedAt,
	}, nil
}

func (r *Repository) loadRecords(ctx context.Context, table string, columns []string) (models.Table, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select("position", "fingerprint", "data")
	sb.From(table)
	sb.OrderBy("position")
	query, args := sb.Build()

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("table", table).Error("Failed to load records")
		return models.Table{}, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to load %s", table)
	}

	records := make([]models.Record, len(rows))
	for i, row := range rows {
		records[i] = row.Data.GetValue()
	}
	return models.NewTableWithColumns(columns, records...), nil
}

func (r *Repository) loadCoverage(ctx context.Context) (models.Coverage, error) {
	sb := r.flavor.NewSelectBuilder()
	sb.Select("source", "season")
	sb.From("source_coverage")
	sb.OrderBy("source", "season")
	query, args := sb.Build()

	var rows []coverageRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load coverage")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load coverage")
	}

	coverage := models.Coverage{}
	for _, row := range rows {
		if row.Season == wholeSourceSeason {
			coverage.Mark(row.Source)
			continue
		}
		coverage.Mark(row.Source, row.Season)
	}
	return coverage, nil
}

// Save replaces the stored snapshot.
func (r *Repository) Save(ctx context.Context, snap *models.Snapshot) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Save")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"history_rows": snap.History.Len(),
		"entity_rows":  snap.Entities.Len(),
	})

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	if err := r.replaceHeader(ctx, tx, snap); err != nil {
		log.WithError(err).Error("Failed to write snapshot header")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write snapshot")
	}

	// History only grows, so existing rows are kept and new ones appended.
	if err := r.insertRecords(ctx, tx, "history_records", snap.History, true); err != nil {
		log.WithError(err).Error("Failed to write history")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write history")
	}

	if err := r.deleteAll(ctx, tx, "entity_records"); err != nil {
		log.WithError(err).Error("Failed to clear entities")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write entities")
	}
	if err := r.insertRecords(ctx, tx, "entity_records", snap.Entities, false); err != nil {
		log.WithError(err).Error("Failed to write entities")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write entities")
	}

	if err := r.replaceCoverage(ctx, tx, snap.Coverage); err != nil {
		log.WithError(err).Error("Failed to write coverage")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to write coverage")
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Error("Failed to commit snapshot")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit snapshot")
	}

	log.Info("Saved snapshot")
	return nil
}

func (r *Repository) replaceHeader(ctx context.Context, tx database.Tx, snap *models.Snapshot) error {
	if err := r.deleteAll(ctx, tx, "snapshots"); err != nil {
		return err
	}

	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder(r.flavor).
		InsertInto("snapshots").
		Cols("id", "history_columns", "entity_columns", "saved_at").
		Values(
			snapshotID,
			database.NewJSONB(snap.History.Columns()),
			database.NewJSONB(snap.Entities.Columns()),
			savedAt.UTC().Format(time.RFC3339Nano),
		)
	query, args := ib.Build()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) insertRecords(ctx context.Context, tx database.Tx, table string, records models.Table, skipExisting bool) error {
	rows := records.Records()
	for i := 0; i < len(rows); i += r.batchSize {
		end := i + r.batchSize
		if end > len(rows) {
			end = len(rows)
		}

		ib := database.NewInsertBuilder(r.flavor).InsertInto(table).Cols("position", "fingerprint", "data")
		for j, record := range rows[i:end] {
			ib.Values(i+j, record.Fingerprint(), database.NewJSONB(record))
		}
		if skipExisting {
			ib.OnConflictDoNothing()
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) replaceCoverage(ctx context.Context, tx database.Tx, coverage models.Coverage) error {
	if err := r.deleteAll(ctx, tx, "source_coverage"); err != nil {
		return err
	}
	if len(coverage) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder(r.flavor).InsertInto("source_coverage").Cols("source", "season")
	for source, seasons := range coverage {
		if len(seasons) == 0 {
			ib.Values(source, wholeSourceSeason)
			continue
		}
		for _, season := range seasons {
			ib.Values(source, season)
		}
	}

	query, args := ib.Build()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) deleteAll(ctx context.Context, tx database.Tx, table string) error {
	db := database.NewDeleteBuilder(r.flavor)
	db.DeleteFrom(table)
	query, args := db.Build()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
