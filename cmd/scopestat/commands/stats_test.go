package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/scopestat/pkg/model"
	"github.com/Sumatoshi-tech/scopestat/pkg/persist"
	"github.com/Sumatoshi-tech/scopestat/pkg/stats"
)

func savedBatch(t *testing.T, codec persist.Codec, records ...*model.SourceFileRecord) string {
	t.Helper()

	batch := model.NewBatchResult(len(records) + 1)
	for _, r := range records {
		batch.Append(r)
	}

	batch.Fail("c.ts", "exit status 2")

	path, err := persist.SaveState(t.TempDir(), "analysis-results", codec, batch)
	require.NoError(t, err)

	return path
}

func sampleRecords() []*model.SourceFileRecord {
	return []*model.SourceFileRecord{
		{Path: "a.ts", LOC: 10, Complexity: ptr(0.1), Symbols: []model.SymbolRecord{}, Outgoing: []model.OutgoingRelation{}},
		{Path: "b.ts", LOC: 20, Complexity: ptr(0.9), Symbols: []model.SymbolRecord{}, Outgoing: []model.OutgoingRelation{}},
	}
}

func executeStats(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewStatsCommand()

	var stdout bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--config", writeConfig(t, "{}\n")))

	err := cmd.Execute()

	return stdout.String(), err
}

func TestStatsCommand_JSON(t *testing.T) {
	t.Parallel()

	path := savedBatch(t, persist.NewJSONCodec(), sampleRecords()...)

	stdout, err := executeStats(t, path, "--format", "json")
	require.NoError(t, err)

	var st stats.Statistics

	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.Equal(t, stats.VariantComplexity, st.Variant)
	assert.Equal(t, 2, st.Files)
	assert.InDelta(t, 15.0, st.AvgLOC, 1e-9)
}

func TestStatsCommand_CompressedInput(t *testing.T) {
	t.Parallel()

	path := savedBatch(t, persist.NewZstdCodec(persist.NewJSONCodec()), sampleRecords()...)
	require.Equal(t, ".zst", filepath.Ext(path))

	stdout, err := executeStats(t, path, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "complexity")
}

func TestStatsCommand_Console(t *testing.T) {
	t.Parallel()

	path := savedBatch(t, persist.NewJSONCodec(), sampleRecords()...)

	stdout, err := executeStats(t, path, "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "SCOPESTAT SUMMARY")
	assert.Contains(t, stdout, "complexity | 3 files")
	assert.Contains(t, stdout, "Analyzed: 2   Failed: 1")
}

func TestStatsCommand_EmptyBatch(t *testing.T) {
	t.Parallel()

	path := savedBatch(t, persist.NewJSONCodec())

	stdout, err := executeStats(t, path, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No files analyzed.")

	_, err = executeStats(t, path, "--format", "json")
	require.ErrorIs(t, err, stats.ErrNoData)
}

func TestStatsCommand_Errors(t *testing.T) {
	t.Parallel()

	path := savedBatch(t, persist.NewJSONCodec(), sampleRecords()...)

	_, err := executeStats(t, path, "--format", "xml")
	require.ErrorIs(t, err, ErrUnknownStatsFormat)

	_, err = executeStats(t, path, "--variant", "style")
	require.ErrorIs(t, err, stats.ErrUnknownVariant)

	_, err = executeStats(t, filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
