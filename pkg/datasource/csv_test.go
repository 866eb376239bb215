package datasource

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestReadCSV(t *testing.T) {
	input := "\xEF\xBB\xBFgsis_id,espn_id,name\n00-1,4035.0,\"Brady, Tom\"\n00-2,NA\n"

	table, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"gsis_id", "espn_id", "name"}, table.Columns())
	require.Equal(t, 2, table.Len())
	assert.Equal(t, models.Record{"gsis_id": "00-1", "espn_id": "4035", "name": "Brady, Tom"}, table.At(0))
	assert.Equal(t, models.Record{"gsis_id": "00-2"}, table.At(1))
}

func TestReadCSV_Empty(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
}

func TestReadCSV_TooManyFields(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	require.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	table := models.NewTableWithColumns([]string{"gsis_id", "pfr_id"},
		models.Record{"gsis_id": "00-1"},
		models.Record{"pfr_id": "BradTo00", "gsis_id": "00-2"},
	)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, table))
	assert.Equal(t, "gsis_id,pfr_id\n00-1,\n00-2,BradTo00\n", buf.String())

	read, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, table.Records(), read.Records())
}
