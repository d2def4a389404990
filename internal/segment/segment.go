// Package segment splits a newsletter document into ordered, labeled chunks.
package segment

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Label identifies a chunk's position in the episode.
type Label string

const (
	LabelStart Label = "START"
	LabelEnd   Label = "END"
)

// Ordinal returns the label of the n-th interior chunk.
func Ordinal(n int) Label { return Label(strconv.Itoa(n)) }

// ArticleLabel returns the provisional label of the n-th curated article.
func ArticleLabel(n int) Label { return Label("ARTICLE_" + strconv.Itoa(n)) }

// Chunk is one contiguous slice of the source document.
type Chunk struct {
	Index   Label  `json:"index"`
	Content string `json:"content"`
}

// Default section markers of the weekly newsletter.
const (
	DefaultFreeTalkMarker = "# 今週のざっくばらん"
	DefaultLinksMarker    = "# 私の目に止まった記事"
)

var (
	headingRe  = regexp.MustCompile(`(?m)^## .*$`)
	linkLineRe = regexp.MustCompile(`^\s*\[.*?\]\(.*?\)\s*$`)
)

// Splitter picks between the structured and generic algorithms.
type Splitter struct {
	FreeTalkMarker string
	LinksMarker    string
	Logger         *slog.Logger
}

// NewSplitter returns a Splitter using the default newsletter markers.
func NewSplitter(logger *slog.Logger) *Splitter {
	return &Splitter{
		FreeTalkMarker: DefaultFreeTalkMarker,
		LinksMarker:    DefaultLinksMarker,
		Logger:         logger,
	}
}

// Split segments doc. The structured algorithm is used when both section
// markers are present in order; otherwise the document is split by h2.
func (s *Splitter) Split(doc string) []Chunk {
	freeTalk := markerOffset(doc, s.FreeTalkMarker)
	links := markerOffset(doc, s.LinksMarker)
	// Links before free talk would leave an empty free-talk slice and drop
	// the document head, so that shape is split by h2 instead.
	if freeTalk < 0 || links < 0 || links < freeTalk {
		chunks := SplitByHeading(doc)
		s.log("generic split", "chunks", len(chunks))
		return chunks
	}

	all := SplitByHeading(doc[freeTalk:links])
	all = append(all, splitArticles(doc[links:])...)
	chunks := Relabel(all)
	s.log("structured split", "chunks", len(chunks))
	return chunks
}

func (s *Splitter) log(msg string, args ...any) {
	if s.Logger != nil {
		s.Logger.Info(msg, args...)
	}
}

// SplitByHeading splits doc at level-2 headings. The START chunk runs up to
// the second heading, so it carries the first heading's body as well.
func SplitByHeading(doc string) []Chunk {
	locs := headingRe.FindAllStringIndex(doc, -1)
	switch len(locs) {
	case 0:
		return []Chunk{{Index: LabelStart, Content: doc}}
	case 1:
		var chunks []Chunk
		if head := doc[:locs[0][0]]; strings.TrimSpace(head) != "" {
			chunks = append(chunks, Chunk{Index: LabelStart, Content: head})
		}
		return append(chunks, Chunk{Index: LabelEnd, Content: doc[locs[0][0]:]})
	}

	chunks := make([]Chunk, 0, len(locs))
	chunks = append(chunks, Chunk{Index: LabelStart, Content: doc[:locs[1][0]]})
	for i := 1; i < len(locs)-1; i++ {
		chunks = append(chunks, Chunk{Index: Ordinal(i), Content: doc[locs[i][0]:locs[i+1][0]]})
	}
	last := locs[len(locs)-1][0]
	return append(chunks, Chunk{Index: LabelEnd, Content: doc[last:]})
}

// splitArticles turns each markdown-link-only line and the comment lines
// under it into one chunk. Lines before the first link are dropped.
func splitArticles(section string) []Chunk {
	lines := strings.SplitAfter(section, "\n")
	var chunks []Chunk
	for i := 0; i < len(lines); {
		if !linkLineRe.MatchString(lines[i]) {
			i++
			continue
		}
		var b strings.Builder
		b.WriteString(lines[i])
		j := i + 1
		for j < len(lines) && !linkLineRe.MatchString(lines[j]) && !strings.HasPrefix(lines[j], "# ") {
			b.WriteString(lines[j])
			j++
		}
		chunks = append(chunks, Chunk{Index: ArticleLabel(len(chunks)), Content: b.String()})
		i = j
	}
	if len(chunks) == 0 {
		chunks = append(chunks, Chunk{Index: ArticleLabel(0), Content: section})
	}
	return chunks
}

// Relabel assigns positional labels: START, then ordinals 1..N-2, then END.
func Relabel(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		switch {
		case i == 0:
			c.Index = LabelStart
		case i == len(chunks)-1:
			c.Index = LabelEnd
		default:
			c.Index = Ordinal(i)
		}
		out[i] = c
	}
	return out
}

// markerOffset returns the byte offset of the first line starting with
// marker, or -1.
func markerOffset(doc, marker string) int {
	if marker == "" {
		return -1
	}
	re := regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(marker) + `.*$`)
	loc := re.FindStringIndex(doc)
	if loc == nil {
		return -1
	}
	return loc[0]
}
