// Package ingest loads newsletter documents from markdown files, web pages,
// and PDFs, and presents them all as markdown text.
package ingest

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
)

type SourceType string

const (
	SourceURL      SourceType = "url"
	SourcePDF      SourceType = "pdf"
	SourceMarkdown SourceType = "markdown"

	// DefaultMaxBytes bounds a single input (25 MB).
	DefaultMaxBytes = 25 * 1024 * 1024
)

func (s SourceType) String() string {
	return string(s)
}

// Document is loaded input ready for submission. Filename always carries a
// markdown extension so it passes the submission check.
type Document struct {
	Text     string
	Title    string
	Filename string
	Source   string
	Type     SourceType
}

// Loader fetches and converts documents.
type Loader struct {
	MaxBytes int64
	Timeout  time.Duration
}

func NewLoader() *Loader {
	return &Loader{MaxBytes: DefaultMaxBytes, Timeout: 30 * time.Second}
}

func DetectSource(input string) SourceType {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return SourceURL
	}
	if strings.HasSuffix(strings.ToLower(input), ".pdf") {
		return SourcePDF
	}
	return SourceMarkdown
}

// Load reads source according to its detected type.
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	switch DetectSource(source) {
	case SourceURL:
		return l.FromURL(ctx, source)
	case SourcePDF:
		return l.FromPDF(ctx, source)
	default:
		return l.FromFile(ctx, source)
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// markdownName derives a .md filename from a title.
func markdownName(title string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	if slug == "" {
		slug = "document"
	}
	return slug + ".md"
}

func titleFromText(text string, maxLen int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
	if r := []rune(line); len(r) > maxLen {
		line = string(r[:maxLen]) + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func (l *Loader) validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return &jobs.InputError{Field: "file", Reason: path + " is a directory"}
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return &jobs.InputError{Field: "file", Reason: fmt.Sprintf("%s is too large (%d MB, max %d MB)",
			path, info.Size()/(1024*1024), l.MaxBytes/(1024*1024))}
	}
	return nil
}
