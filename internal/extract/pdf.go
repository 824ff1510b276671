package extract

import (
	"context"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor extracts text from PDF files page by page.
type PDFExtractor struct{}

func (p *PDFExtractor) Extensions() []string { return []string{".pdf"} }

func (p *PDFExtractor) Kind() string { return "PDF Document" }

func (p *PDFExtractor) Extract(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", newError(path, FailureOpen, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", newError(path, FailureOpen, err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", newError(path, FailureParse, err)
	}

	var pages []string
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not fail the document.
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return strings.Join(pages, "\n"), nil
}
