// Package extract turns uploaded document bytes into per-page text. It is the
// only place that knows about document formats; everything downstream works
// on pages.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction means the document was malformed or unreadable. Ingestion
// aborts and reports it to the caller; there is no fallback for a document we
// cannot read at all.
var ErrExtraction = errors.New("unable to extract document text")

// Page is one page's worth of extracted text, 1-based.
type Page struct {
	Number int
	Text   string
}

// PDF extracts page-wise text. Pages that yield no text are skipped; if no
// page yields anything, the whole document is extracted as a single page 1 so
// PDFs with odd internal structure still ingest.
func PDF(r io.ReaderAt, size int64) ([]Page, error) {
	rdr, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var pages []Page
	for i := 1; i <= rdr.NumPage(); i++ {
		p := rdr.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			slog.Warn("skipping unreadable page", "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return wholeDocumentFallback(rdr)
	}
	return pages, nil
}

func wholeDocumentFallback(rdr *pdf.Reader) ([]Page, error) {
	body, err := rdr.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	text := strings.TrimSpace(buf.String())
	if text == "" {
		return nil, fmt.Errorf("%w: document contains no extractable text", ErrExtraction)
	}
	return []Page{{Number: 1, Text: text}}, nil
}

// PlainText wraps a text/markdown upload as a single page. Page boundaries
// are not tracked for plain text, hence page 1.
func PlainText(r io.Reader) ([]Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("%w: document contains no extractable text", ErrExtraction)
	}
	return []Page{{Number: 1, Text: text}}, nil
}
