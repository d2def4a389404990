package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
)

// FromFile reads a markdown file. Other extensions are rejected the same
// way the upload endpoint rejects them.
func (l *Loader) FromFile(_ context.Context, path string) (*Document, error) {
	if !jobs.IsMarkdownFile(path) {
		return nil, &jobs.InputError{Field: "file", Reason: "Only markdown files are supported"}
	}
	if err := l.validateFile(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, &jobs.InputError{Field: "file", Reason: "document is empty"}
	}
	return &Document{
		Text:     text,
		Title:    titleFromText(text, 80),
		Filename: filepath.Base(path),
		Source:   path,
		Type:     SourceMarkdown,
	}, nil
}
