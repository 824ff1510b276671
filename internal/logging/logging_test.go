package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "bogus", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestSetupWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docufind.log")
	logger, cleanup, err := Setup(Config{Level: "info", FilePath: path, MaxSizeMB: 1, MaxFiles: 2})
	require.NoError(t, err)

	logger.Info("collection_indexed", slog.String("root", "/data/docs"), slog.Int("indexed", 42))
	logger.Debug("not_emitted_at_info")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "collection_indexed", entry["msg"])
	assert.Equal(t, "/data/docs", entry["root"])
	assert.Equal(t, float64(42), entry["indexed"])
}

func TestSetupWithoutFile(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "debug"})
	require.NoError(t, err)
	defer cleanup()
	logger.Info("goes nowhere, must not panic")
}

func TestRotatingWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docufind.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer w.Close()

	// Each write is half a megabyte; the third and fifth writes trigger
	// rotation.
	chunk := []byte(strings.Repeat("x", 512*1024))
	for i := 0; i < 6; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}

	matches, err := filepath.Glob(path + "*")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(matches), 3, "current file plus at most two rotations")

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "most recent rotation exists")
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err), "rotations beyond the limit are pruned")
}

func TestFindLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explicit.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	found, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}
