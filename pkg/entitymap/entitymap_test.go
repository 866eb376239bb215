package entitymap

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
)

type memoryStore struct {
	snap    *models.Snapshot
	loadErr error
	saveErr error
}

func (s *memoryStore) Load(_ context.Context) (*models.Snapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.snap == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "snapshot not found")
	}
	return s.snap, nil
}

func (s *memoryStore) Save(_ context.Context, snap *models.Snapshot) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snap = snap
	return nil
}

func newTestMap() *EntityMap {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return New(logger, merging.NewEngine(logger))
}

func TestAppend_Scenario(t *testing.T) {
	m := newTestMap()
	ctx := context.Background()

	_, err := m.Append(ctx, models.NewTable(models.Record{"A": "1", "B": "1"}))
	require.NoError(t, err)
	result, err := m.Append(ctx, models.NewTable(
		models.Record{"A": "1", "B": "1"},
		models.Record{"A": "2", "B": "2"},
	))
	require.NoError(t, err)

	assert.Equal(t, AppendResult{Received: 2, Novel: 1, Rows: 2}, result)
	want := []models.Record{{"A": "1", "B": "1"}, {"A": "2", "B": "2"}}
	assert.Equal(t, want, m.Table().Records())
	assert.Equal(t, want, m.History().Records())
}

func TestAppend_Idempotent(t *testing.T) {
	m := newTestMap()
	ctx := context.Background()
	batch := models.NewTable(
		models.Record{"gsis_id": "G1"},
		models.Record{"gsis_id": "G1", "pfr_id": "P1"},
	)

	_, err := m.Append(ctx, batch)
	require.NoError(t, err)
	once := m.Table().Records()

	_, err = m.Append(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, once, m.Table().Records())
}

func TestAppend_RepeatedWithinBatch(t *testing.T) {
	m := newTestMap()
	ctx := context.Background()

	result, err := m.Append(ctx, models.NewTable(
		models.Record{"gsis_id": "G1"},
		models.Record{"gsis_id": "G1"},
		models.Record{"gsis_id": "G2"},
	))
	require.NoError(t, err)

	assert.Equal(t, AppendResult{Received: 3, Novel: 1, Rows: 1}, result)
	assert.Equal(t, []models.Record{{"gsis_id": "G2"}}, m.Table().Records())
	assert.Equal(t, []models.Record{{"gsis_id": "G1"}, {"gsis_id": "G2"}}, m.History().Records())
}

func TestAppend_NormalizesValues(t *testing.T) {
	m := newTestMap()
	ctx := context.Background()

	_, err := m.Append(ctx, models.NewTable(models.Record{"draft_id": "12.0", "espn_id": "NA"}))
	require.NoError(t, err)
	_, err = m.Append(ctx, models.NewTable(models.Record{"draft_id": "12"}))
	require.NoError(t, err)

	assert.Equal(t, []models.Record{{"draft_id": "12"}}, m.Table().Records())
}

func TestAppend_ResolvedRecordIsNotReintroduced(t *testing.T) {
	m := newTestMap()
	ctx := context.Background()
	batch := models.NewTable(
		models.Record{"gsis_id": "G1", "name": "Tom"},
		models.Record{"gsis_id": "G1", "pfr_id": "P1"},
	)

	_, err := m.Append(ctx, batch)
	require.NoError(t, err)
	_, err = m.Maptize(ctx, []string{"gsis_id"})
	require.NoError(t, err)

	_, err = m.Append(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{"gsis_id": "G1", "name": "Tom", "pfr_id": "P1"}}, m.Table().Records())
}

func TestMaptize_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("fuses", func(t *testing.T) {
		m := newTestMap()
		_, err := m.Append(ctx, models.NewTable(
			models.Record{"id_a": "X", "name": "Alice"},
			models.Record{"id_a": "X", "id_b": "Y"},
		))
		require.NoError(t, err)

		report, err := m.Maptize(ctx, []string{"id_a"})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Fused())
		assert.Equal(t, []models.Record{{"id_a": "X", "id_b": "Y", "name": "Alice"}}, m.Table().Records())
	})

	t.Run("conflict", func(t *testing.T) {
		m := newTestMap()
		_, err := m.Append(ctx, models.NewTable(
			models.Record{"id_a": "X", "name": "Alice"},
			models.Record{"id_a": "X", "name": "Bob"},
		))
		require.NoError(t, err)

		report, err := m.Maptize(ctx, []string{"id_a"})
		require.NoError(t, err)
		assert.Len(t, report.Conflicts(), 1)
		assert.Equal(t, 2, m.Table().Len())
	})

	t.Run("invalid keys leave table unchanged", func(t *testing.T) {
		m := newTestMap()
		_, err := m.Append(ctx, models.NewTable(
			models.Record{"id_a": "X", "name": "Alice"},
			models.Record{"id_a": "X", "id_b": "Y"},
		))
		require.NoError(t, err)

		_, err = m.Maptize(ctx, nil)
		require.Error(t, err)
		assert.Equal(t, 2, m.Table().Len())
	})
}

func TestLoadDump(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{}

	m := newTestMap()
	require.Equal(t, 404, httperror.GetStatusCode(m.Load(ctx, store)))

	_, err := m.Append(ctx, models.NewTable(
		models.Record{"gsis_id": "G1", "name": "Tom"},
		models.Record{"gsis_id": "G1", "pfr_id": "P1"},
	))
	require.NoError(t, err)
	_, err = m.Maptize(ctx, []string{"gsis_id"})
	require.NoError(t, err)
	m.MarkCovered("roster", 2020)
	require.NoError(t, m.Dump(ctx, store))

	restored := newTestMap()
	require.NoError(t, restored.Load(ctx, store))
	assert.Equal(t, m.Table().Records(), restored.Table().Records())
	assert.Equal(t, m.History().Records(), restored.History().Records())
	assert.True(t, restored.Coverage().Has("roster", 2020))

	// History survives the round trip, so the same batch is still a no-op.
	result, err := restored.Append(ctx, models.NewTable(models.Record{"gsis_id": "G1", "name": "Tom"}))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Novel)
}

func TestLoadDump_NilStore(t *testing.T) {
	m := newTestMap()
	assert.Equal(t, 400, httperror.GetStatusCode(m.Load(context.Background(), nil)))
	assert.Equal(t, 400, httperror.GetStatusCode(m.Dump(context.Background(), nil)))
}

func TestCoverageIsCopied(t *testing.T) {
	m := newTestMap()
	m.MarkCovered("draft", 2002)

	c := m.Coverage()
	c.Mark("draft", 2003)
	assert.False(t, m.Coverage().Has("draft", 2003))
}
