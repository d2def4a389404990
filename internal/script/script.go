// Package script turns newsletter chunks into two-speaker dialogue scripts.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/newsletter-podcaster/internal/segment"
)

// ErrEmptyScript is returned when the model produced no text.
var ErrEmptyScript = errors.New("model returned an empty script")

// TextRequest is one request to a text-generation model.
type TextRequest struct {
	Model       string
	System      string
	Parts       []string
	Temperature float64
}

// TextGenerator is a request/response text-generation backend.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// Class selects which framing instructions a chunk's prompt carries.
type Class int

const (
	Continuation Class = iota
	Opening
	Closing
)

func (c Class) String() string {
	switch c {
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	default:
		return "continuation"
	}
}

// ClassOf maps a chunk label to its prompt class. START only opens the show
// when more chunks follow it.
func ClassOf(label segment.Label, total int) Class {
	switch {
	case label == segment.LabelStart && total >= 2:
		return Opening
	case label == segment.LabelEnd:
		return Closing
	default:
		return Continuation
	}
}

// Writer generates one script per chunk.
type Writer struct {
	gen         TextGenerator
	model       string
	temperature float64
	show        Show
	logger      *slog.Logger
}

func NewWriter(gen TextGenerator, model string, temperature float64, show Show, logger *slog.Logger) *Writer {
	return &Writer{gen: gen, model: model, temperature: temperature, show: show, logger: logger}
}

// Generate writes the script for chunk, the total-th member of its sequence.
// Generator failures are returned as is; retries belong to the generator.
func (w *Writer) Generate(ctx context.Context, chunk segment.Chunk, total int) (string, error) {
	class := ClassOf(chunk.Index, total)
	start := time.Now()
	text, err := w.gen.GenerateText(ctx, TextRequest{
		Model:       w.model,
		System:      buildSystemPrompt(w.show),
		Parts:       []string{buildChunkPrompt(w.show, chunk, class)},
		Temperature: w.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate script for chunk %s: %w", chunk.Index, err)
	}
	text = stripMarkdownFences(text)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("chunk %s: %w", chunk.Index, ErrEmptyScript)
	}
	w.logger.InfoContext(ctx, "script generated",
		"chunk", string(chunk.Index),
		"class", class.String(),
		"chars", len([]rune(text)),
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// SaveScript writes text to dir/name, creating dir as needed.
func SaveScript(dir, name, text string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create script dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write script to %s: %w", path, err)
	}
	return nil
}
