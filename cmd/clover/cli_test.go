package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mapColumns = []string{
	"fleaflicker_id", "espn_id", "fantasy_data_id", "yahoo_id", "rotowire_id",
	"pff_id", "sleeper_id", "stats_global_id", "rotoworld_id", "mfl_id",
	"gsis_id", "ktc_id", "fantasypros_id", "nfl_id", "cbs_id",
	"pfr_id", "swish_id", "sportradar_id", "stats_id", "cfbref_id",
}

func setupCLITestEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CLOVER_STORE_DRIVER", "file")
	t.Setenv("CLOVER_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("CLOVER_LOG_LEVEL", "error")
	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeMapCSV(t *testing.T, path string, rows ...map[string]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(mapColumns, ",") + "\n")
	for _, row := range rows {
		values := make([]string, len(mapColumns))
		for i, c := range mapColumns {
			values[i] = row[c]
		}
		b.WriteString(strings.Join(values, ",") + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func TestConfigInitAndValidate(t *testing.T) {
	dir := setupCLITestEnv(t)
	target := filepath.Join(dir, "clover.yaml")

	out, err := runCLI(t, "config", "init", "--path", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration")

	_, err = runCLI(t, "config", "init", "--path", target)
	require.Error(t, err)

	out, err = runCLI(t, "--config", target, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "store: file")
}

func TestImportExportStats(t *testing.T) {
	dir := setupCLITestEnv(t)
	csvPath := filepath.Join(dir, "ids.csv")
	writeMapCSV(t, csvPath,
		map[string]string{"gsis_id": "00-1", "pfr_id": "BradTo00"},
		map[string]string{"gsis_id": "00-1", "espn_id": "2330"},
		map[string]string{"pfr_id": "BreeDr00"},
	)

	out, err := runCLI(t, "import", "map", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "import run")
	assert.Contains(t, out, "entities: 2  history: 3")

	out, err = runCLI(t, "export", "--format", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	fused := false
	for _, line := range lines[1:] {
		if strings.Contains(line, "BradTo00") && strings.Contains(line, "2330") {
			fused = true
		}
	}
	assert.True(t, fused, "expected the two gsis 00-1 rows to be fused: %s", out)

	out, err = runCLI(t, "export", "--history", "--format", "csv")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)

	out, err = runCLI(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "entities: 2  history: 3")
	assert.Contains(t, out, "map")
}

func TestImportUnknownSource(t *testing.T) {
	dir := setupCLITestEnv(t)
	csvPath := filepath.Join(dir, "ids.csv")
	writeMapCSV(t, csvPath, map[string]string{"gsis_id": "00-1"})

	_, err := runCLI(t, "import", "pbp", csvPath)
	require.Error(t, err)
}

func TestStatsEmptyStore(t *testing.T) {
	setupCLITestEnv(t)

	out, err := runCLI(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "no snapshot has been committed")
}
