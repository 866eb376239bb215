package merging

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newTestEngine() *Engine {
	return NewEngine(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func fingerprints(table models.Table) []string {
	out := make([]string, 0, table.Len())
	table.Each(func(_ int, r models.Record) {
		out = append(out, r.Fingerprint())
	})
	sort.Strings(out)
	return out
}

func TestMaptize_FusesConsistentGroup(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"id_a": "X", "name": "Alice"},
		models.Record{"id_a": "X", "id_b": "Y"},
	)

	result, report, err := e.Maptize(context.Background(), table, []string{"id_a"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Len())
	assert.Equal(t, models.Record{"id_a": "X", "id_b": "Y", "name": "Alice"}, result.At(0))
	require.Len(t, report.Passes, 1)
	assert.Equal(t, PassReport{Key: "id_a", Groups: 1, Fused: 1, RowsBefore: 2, RowsAfter: 1}, report.Passes[0])
}

func TestMaptize_ConflictLeavesGroupUntouched(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"id_a": "X", "name": "Alice"},
		models.Record{"id_a": "X", "name": "Bob"},
	)

	result, report, err := e.Maptize(context.Background(), table, []string{"id_a"})
	require.NoError(t, err)

	assert.Equal(t, table.Records(), result.Records())

	conflicts := report.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, "id_a", conflicts[0].Key)
	assert.Equal(t, "X", conflicts[0].Value)
	assert.Equal(t, []FieldConflict{{Field: "name", Values: []string{"Alice", "Bob"}}}, conflicts[0].Fields)
	assert.Len(t, conflicts[0].Records, 2)
	assert.Equal(t, 0, report.Fused())
}

func TestConflictFieldNames(t *testing.T) {
	c := &MergeConflict{Fields: []FieldConflict{
		{Field: "name", Values: []string{"Alice", "Bob"}},
		{Field: "college", Values: []string{"Iowa", "Ohio"}},
	}}
	assert.Equal(t, []string{"name", "college"}, conflictFieldNames(c))
}

func TestMaptize_ConflictBlocksAgreeingFields(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"gsis_id": "G1", "pfr_id": "P1", "esb_id": "E1"},
		models.Record{"gsis_id": "G1", "pfr_id": "P2"},
		models.Record{"gsis_id": "G1", "draft_id": "D1"},
	)

	result, _, err := e.Maptize(context.Background(), table, []string{"gsis_id"})
	require.NoError(t, err)

	// No member receives draft_id even though nobody disagrees on it.
	assert.Equal(t, table.Records(), result.Records())
}

func TestMaptize_FusionCompleteness(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"k": "1", "a": "A"},
		models.Record{"k": "1", "b": "B"},
		models.Record{"k": "1", "a": "A", "c": "C"},
		models.Record{"k": "2", "a": "other"},
	)

	result, _, err := e.Maptize(context.Background(), table, []string{"k"})
	require.NoError(t, err)

	require.Equal(t, 2, result.Len())
	assert.Equal(t, models.Record{"k": "1", "a": "A", "b": "B", "c": "C"}, result.At(0))
	assert.Equal(t, models.Record{"k": "2", "a": "other"}, result.At(1))
}

func TestMaptize_Idempotent(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"gsis_id": "G1", "pfr_id": "P1"},
		models.Record{"pfr_id": "P1", "esb_id": "E1"},
		models.Record{"gsis_id": "G2", "esb_id": "E2"},
		models.Record{"gsis_id": "G2", "esb_id": "E3"},
		models.Record{"esb_id": "E1", "draft_id": "D1"},
	)
	keys := []string{"esb_id", "gsis_id", "pfr_id", "draft_id"}

	first, _, err := e.Maptize(context.Background(), table, keys)
	require.NoError(t, err)
	second, report, err := e.Maptize(context.Background(), first, keys)
	require.NoError(t, err)

	assert.Equal(t, first.Records(), second.Records())
	assert.Equal(t, 0, report.Fused())
}

func TestMaptize_ChainsAcrossKeys(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"gsis_id": "G1", "pfr_id": "P1"},
		models.Record{"gsis_id": "G1", "esb_id": "E1"},
		models.Record{"esb_id": "E1", "draft_id": "D1"},
	)

	result, report, err := e.Maptize(context.Background(), table, []string{"gsis_id", "esb_id"})
	require.NoError(t, err)

	require.Equal(t, 1, result.Len())
	assert.Equal(t, models.Record{"gsis_id": "G1", "pfr_id": "P1", "esb_id": "E1", "draft_id": "D1"}, result.At(0))
	assert.Equal(t, 3, report.RowsBefore())
	assert.Equal(t, 1, report.RowsAfter())
}

func TestMaptize_OrderSensitive(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"a": "1", "b": "X"},
		models.Record{"a": "1", "c": "Z"},
		models.Record{"b": "X", "c": "W"},
	)

	ab, _, err := e.Maptize(context.Background(), table, []string{"a", "b"})
	require.NoError(t, err)
	ba, _, err := e.Maptize(context.Background(), table, []string{"b", "a"})
	require.NoError(t, err)

	assert.Contains(t, ab.Records(), models.Record{"a": "1", "b": "X", "c": "Z"})
	assert.Contains(t, ba.Records(), models.Record{"a": "1", "b": "X", "c": "W"})
	assert.NotEqual(t, fingerprints(ab), fingerprints(ba))
}

func TestMaptize_UnknownKeyIsNoop(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(models.Record{"a": "1"}, models.Record{"a": "2"})

	result, report, err := e.Maptize(context.Background(), table, []string{"missing"})
	require.NoError(t, err)
	assert.Equal(t, table.Records(), result.Records())
	assert.Equal(t, 0, report.Passes[0].Groups)
}

func TestMaptize_DoesNotModifyInput(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(
		models.Record{"k": "1", "a": "A"},
		models.Record{"k": "1", "b": "B"},
	)
	before := table.Records()

	_, _, err := e.Maptize(context.Background(), table, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, before, table.Records())
}

func TestMaptize_InvalidKeys(t *testing.T) {
	e := newTestEngine()
	table := models.NewTable(models.Record{"a": "1"})

	tests := []struct {
		name string
		keys []string
	}{
		{name: "empty", keys: nil},
		{name: "blank", keys: []string{"a", " "}},
		{name: "duplicate", keys: []string{"a", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Maptize(context.Background(), table, tt.keys)
			require.Error(t, err)
			assert.Equal(t, 400, httperror.GetStatusCode(err))
		})
	}
}

// TestMaptize_RecoversFragmentedEntities splits fully-identified entities into
// overlapping interval fragments over many key fields and checks that one
// ordered run reassembles every entity.
func TestMaptize_RecoversFragmentedEntities(t *testing.T) {
	const (
		entities = 40
		fields   = 8
	)
	rng := rand.New(rand.NewSource(7))
	e := newTestEngine()

	keys := make([]string, fields)
	for k := range keys {
		keys[k] = fmt.Sprintf("id%d", k)
	}

	var fragments []models.Record
	var expected []models.Record
	for i := 0; i < entities; i++ {
		full := models.Record{}
		for k := 0; k < fields; k++ {
			full[keys[k]] = fmt.Sprintf("e%d-%d", i, k)
		}
		expected = append(expected, full)

		// Strictly increasing cut points from 0 to fields-1; fragment j covers
		// [cuts[j], cuts[j+1]] so neighbours share the boundary field.
		cuts := []int{0}
		for k := 1; k < fields-1; k++ {
			if rng.Intn(2) == 0 {
				cuts = append(cuts, k)
			}
		}
		cuts = append(cuts, fields-1)

		for j := 0; j+1 < len(cuts); j++ {
			frag := models.Record{}
			for k := cuts[j]; k <= cuts[j+1]; k++ {
				frag[keys[k]] = full[keys[k]]
			}
			fragments = append(fragments, frag)
		}
	}
	rng.Shuffle(len(fragments), func(i, j int) { fragments[i], fragments[j] = fragments[j], fragments[i] })

	result, report, err := e.Maptize(context.Background(), models.NewTable(fragments...), keys)
	require.NoError(t, err)

	assert.Empty(t, report.Conflicts())
	assert.Equal(t, fingerprints(models.NewTable(expected...)), fingerprints(result))
}

func TestReport_EmptyTotals(t *testing.T) {
	r := &Report{}
	assert.Equal(t, 0, r.RowsBefore())
	assert.Equal(t, 0, r.RowsAfter())
	assert.Equal(t, 0, r.Fused())
	assert.Empty(t, r.Conflicts())
}
