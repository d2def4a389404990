package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// FromURL fetches a web page and keeps its readable article text, with the
// title as the document's top heading.
func (l *Loader) FromURL(ctx context.Context, source string) (*Document, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", source, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", source, err)
	}
	client := &http.Client{Timeout: l.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not fetch URL %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("could not fetch URL %s: HTTP %d", source, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if l.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, l.MaxBytes)
	}
	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return nil, fmt.Errorf("could not extract article from %s: %w", source, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("no readable content extracted from %s", source)
	}
	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = titleFromText(text, 80)
	}

	return &Document{
		Text:     "# " + title + "\n\n" + text + "\n",
		Title:    title,
		Filename: markdownName(title),
		Source:   source,
		Type:     SourceURL,
	}, nil
}
