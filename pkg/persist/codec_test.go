package persist

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a struct for round-trip codec testing.
type testState struct {
	Name   string         `json:"name"   yaml:"name"`
	Count  int            `json:"count"  yaml:"count"`
	Values map[string]int `json:"values" yaml:"values"`
}

var errWrite = errors.New("write failed")

type failingCodec struct{}

func (failingCodec) Encode(io.Writer, any) error { return errWrite }
func (failingCodec) Decode(io.Reader, any) error { return errWrite }
func (failingCodec) Extension() string           { return ".fail" }

func roundTrip(t *testing.T, codec Codec) {
	t.Helper()

	original := testState{
		Name:   "test",
		Count:  42,
		Values: map[string]int{"a": 1, "b": 2},
	}

	var buf bytes.Buffer

	require.NoError(t, codec.Encode(&buf, original))

	var decoded testState

	require.NoError(t, codec.Decode(&buf, &decoded))
	assert.Equal(t, original, decoded)
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		codec Codec
		ext   string
	}{
		{NewJSONCodec(), ".json"},
		{&JSONCodec{}, ".json"},
		{NewYAMLCodec(), ".yaml"},
		{NewZstdCodec(NewJSONCodec()), ".json.zst"},
		{NewZstdCodec(NewYAMLCodec()), ".yaml.zst"},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()

			roundTrip(t, tt.codec)
			assert.Equal(t, tt.ext, tt.codec.Extension())
		})
	}
}

func TestJSONCodec_CompactNoIndent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, (&JSONCodec{}).Encode(&buf, testState{Name: "compact", Count: 1}))

	// Compact JSON has at most one trailing newline (from json.Encoder).
	assert.LessOrEqual(t, strings.Count(buf.String(), "\n"), 1)
}

func TestJSONCodec_PrettyPrint(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, NewJSONCodec().Encode(&buf, testState{Name: "pretty", Count: 1}))
	assert.Contains(t, buf.String(), "\n  \"name\": \"pretty\"")
}

func TestYAMLCodec_Layout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, NewYAMLCodec().Encode(&buf, testState{Name: "report", Values: map[string]int{"k": 1}}))
	assert.Equal(t, "name: report\ncount: 0\nvalues:\n  k: 1\n", buf.String())
}

func TestCodecs_DecodeError(t *testing.T) {
	t.Parallel()

	var state testState

	require.Error(t, NewJSONCodec().Decode(strings.NewReader("{not json"), &state))
	require.Error(t, NewYAMLCodec().Decode(strings.NewReader("name: [unclosed"), &state))
	require.Error(t, NewZstdCodec(NewJSONCodec()).Decode(strings.NewReader("not zstd"), &state))
}

func TestJSONCodec_EncodeError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := NewJSONCodec().Encode(&buf, make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json encode")
}

func TestZstdCodec_InnerEncodeError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.ErrorIs(t, NewZstdCodec(failingCodec{}).Encode(&buf, 1), errWrite)
}

func TestSaveLoadState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	original := testState{Name: "saved", Count: 7}

	path, err := SaveState(dir, "state", NewJSONCodec(), original)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state.json"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePerm), info.Mode().Perm())

	var loaded testState

	require.NoError(t, LoadState(dir, "state", NewJSONCodec(), &loaded))
	assert.Equal(t, original, loaded)
}

func TestSaveState_Overwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := SaveState(dir, "state", NewJSONCodec(), testState{Name: strings.Repeat("long", 100)})
	require.NoError(t, err)

	_, err = SaveState(dir, "state", NewJSONCodec(), testState{Name: "short"})
	require.NoError(t, err)

	var loaded testState

	require.NoError(t, LoadState(dir, "state", NewJSONCodec(), &loaded))
	assert.Equal(t, "short", loaded.Name)
}

func TestSaveState_EncodeErrorKeepsPrevious(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.fail")

	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o600))

	_, err := SaveState(dir, "state", failingCodec{}, testState{})
	require.ErrorIs(t, err, errWrite)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file is removed")
}

func TestSaveState_InvalidDirectory(t *testing.T) {
	t.Parallel()

	_, err := SaveState(filepath.Join(t.TempDir(), "missing"), "state", NewJSONCodec(), testState{})
	require.Error(t, err)
}

func TestLoadState_FileNotFound(t *testing.T) {
	t.Parallel()

	var state testState

	err := LoadState(t.TempDir(), "absent", NewJSONCodec(), &state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open state file")
}
