package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySupports(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "pdf", path: "report.pdf", want: true},
		{name: "pdf uppercase", path: "REPORT.PDF", want: true},
		{name: "docx", path: "letter.docx", want: true},
		{name: "xlsx", path: "sheet.xlsx", want: true},
		{name: "csv", path: "data.csv", want: true},
		{name: "txt", path: "notes.txt", want: true},
		{name: "markdown", path: "README.md", want: true},
		{name: "legacy doc", path: "old.doc", want: false},
		{name: "image", path: "scan.png", want: false},
		{name: "no extension", path: "LICENSE", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Supports(tt.path))
		})
	}
}

func TestRegistryKindFor(t *testing.T) {
	r := NewRegistry()

	kind, ok := r.KindFor("a/b/c.pdf")
	require.True(t, ok)
	assert.Equal(t, "PDF Document", kind)

	kind, ok = r.KindFor("data.csv")
	require.True(t, ok)
	assert.Equal(t, "CSV File", kind)

	_, ok = r.KindFor("photo.jpg")
	assert.False(t, ok)
}

func TestTextExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\nsecond line"), 0o644))

	r := NewRegistry()
	text, err := r.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", text)
}

func TestTextExtractorInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x41}, 0o644))

	r := NewRegistry()
	_, err := r.Extract(context.Background(), path)
	require.Error(t, err)

	var xerr *Error
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, FailureEncoding, xerr.Kind)
}

func TestCSVExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,qty\nwidget,3\nbolt,7\n"), 0o644))

	r := NewRegistry()
	text, err := r.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "name | qty\nwidget | 3\nbolt | 7\n", text)
}

func TestCSVExtractorRaggedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragged.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\nd\ne,f\n"), 0o644))

	r := NewRegistry()
	text, err := r.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Contains(t, text, "a | b | c")
	assert.Contains(t, text, "e | f")
}

func TestExtractMissingFile(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	require.Error(t, err)

	var xerr *Error
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, FailureOpen, xerr.Kind)
}

func TestExtractUnsupportedExtension(t *testing.T) {
	r := NewRegistry()
	_, err := r.Extract(context.Background(), "whatever.xyz")
	require.Error(t, err)

	var xerr *Error
	assert.False(t, errors.As(err, &xerr), "unsupported extension is not a typed extraction failure")
}
