package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// DocxExtractor extracts paragraph text from Word documents.
type DocxExtractor struct{}

func (d *DocxExtractor) Extensions() []string { return []string{".docx"} }

func (d *DocxExtractor) Kind() string { return "Word Document" }

// xmlTag matches WordprocessingML markup left in the raw document content.
var xmlTag = regexp.MustCompile(`<[^>]+>`)

func (d *DocxExtractor) Extract(ctx context.Context, path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", newError(path, FailureParse, err)
	}
	defer doc.Close()

	// GetContent returns the raw document.xml body; paragraph close tags
	// become newlines before the remaining markup is stripped.
	raw := doc.Editable().GetContent()
	raw = strings.ReplaceAll(raw, "</w:p>", "\n")
	text := xmlTag.ReplaceAllString(raw, "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// XlsxExtractor extracts cell text from Excel workbooks sheet by sheet.
type XlsxExtractor struct{}

func (x *XlsxExtractor) Extensions() []string { return []string{".xlsx"} }

func (x *XlsxExtractor) Kind() string { return "Excel Spreadsheet" }

func (x *XlsxExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", newError(path, FailureParse, err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", newError(path, FailureParse, fmt.Errorf("sheet %s: %w", sheet, err))
		}

		b.WriteString("Sheet: ")
		b.WriteString(sheet)
		b.WriteByte('\n')
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
		}
	}

	return b.String(), nil
}
