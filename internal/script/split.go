package script

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/apresai/newsletter-podcaster/internal/segment"
)

// DefaultMaxPartChars is the speech model's comfortable input size.
const DefaultMaxPartChars = 3000

// Part is a slice of one chunk's script small enough for one speech call.
type Part struct {
	Chunk  int // position of the source chunk
	Number int // 1-based within the chunk
	Label  segment.Label
	Text   string
}

// Key identifies the part as "<chunk>_<number>".
func (p Part) Key() string { return fmt.Sprintf("%d_%d", p.Chunk, p.Number) }

// Less orders parts by chunk position, then part number.
func (p Part) Less(o Part) bool {
	if p.Chunk != o.Chunk {
		return p.Chunk < o.Chunk
	}
	return p.Number < o.Number
}

// SplitScript breaks script into parts of at most maxChars characters,
// cutting only between lines. A single line longer than maxChars becomes its
// own part. Lengths count Unicode code points.
func SplitScript(script string, maxChars int) []string {
	if strings.TrimSpace(script) == "" {
		return nil
	}
	if utf8.RuneCountInString(script) <= maxChars {
		return []string{strings.TrimRightFunc(script, unicode.IsSpace)}
	}

	var (
		parts  []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if p := strings.TrimRightFunc(cur.String(), unicode.IsSpace); p != "" {
			parts = append(parts, p)
		}
		cur.Reset()
		curLen = 0
	}
	for _, line := range strings.Split(script, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen > 0 && curLen+n+1 > maxChars {
			flush()
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		curLen += n + 1
	}
	flush()
	return parts
}

// SplitParts splits the script of the chunk at position chunk into Parts.
func SplitParts(chunk int, label segment.Label, script string, maxChars int) []Part {
	texts := SplitScript(script, maxChars)
	parts := make([]Part, len(texts))
	for i, t := range texts {
		parts[i] = Part{Chunk: chunk, Number: i + 1, Label: label, Text: t}
	}
	return parts
}
