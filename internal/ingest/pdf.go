package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// FromPDF extracts plain text page by page. Pages that fail to extract are
// skipped.
func (l *Loader) FromPDF(_ context.Context, path string) (*Document, error) {
	if err := l.validateFile(path); err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read PDF %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("could not extract text from PDF %s, it may be image-based", path)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Document{
		Text:     text + "\n",
		Title:    titleFromText(text, 80),
		Filename: base + ".md",
		Source:   path,
		Type:     SourcePDF,
	}, nil
}
