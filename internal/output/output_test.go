package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusWithAndWithoutIcon(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("🔍", "searching")
	w.Status("", "indented detail")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, "🔍 searching", lines[0])
	assert.Equal(t, "   indented detail", lines[1])
}

func TestSuccessWarningError(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Successf("indexed %d files", 3)
	w.Warning("store missing")
	w.Error("bad flag")

	out := buf.String()
	assert.Contains(t, out, "✅ indexed 3 files")
	assert.Contains(t, out, "store missing")
	assert.Contains(t, out, "❌ bad flag")
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Progress(15, 30, "halfway")
	assert.Contains(t, buf.String(), "50%")
	assert.Contains(t, buf.String(), "halfway")

	buf.Reset()
	w.Progress(30, 30, "done")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"), "completion adds a newline")

	buf.Reset()
	w.Progress(1, 0, "ignored")
	assert.Empty(t, buf.String())
}

func TestRenderProgressBarBounds(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderProgressBar(5, 0, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderProgressBar(20, 10, 10))
}
