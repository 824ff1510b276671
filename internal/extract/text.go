package extract

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"unicode/utf8"
)

// CSVExtractor flattens CSV rows into searchable lines.
type CSVExtractor struct{}

func (c *CSVExtractor) Extensions() []string { return []string{".csv"} }

func (c *CSVExtractor) Kind() string { return "CSV File" }

func (c *CSVExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", newError(path, FailureOpen, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are common in real exports
	r.LazyQuotes = true

	var b strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		record, err := r.Read()
		if err != nil {
			// io.EOF ends the file; anything else means the remainder is
			// unparseable. Keep what was read so far rather than dropping
			// the whole document.
			break
		}
		line := strings.TrimSpace(strings.Join(record, " | "))
		if line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	return b.String(), nil
}

// TextExtractor reads plain text and markdown files verbatim.
type TextExtractor struct{}

func (t *TextExtractor) Extensions() []string { return []string{".txt", ".md"} }

func (t *TextExtractor) Kind() string { return "Text File" }

func (t *TextExtractor) Extract(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", newError(path, FailureOpen, err)
	}
	if !utf8.Valid(data) {
		return "", newError(path, FailureEncoding, errInvalidUTF8)
	}
	return string(data), nil
}

var errInvalidUTF8 = &encodingError{}

type encodingError struct{}

func (*encodingError) Error() string { return "content is not valid UTF-8" }
