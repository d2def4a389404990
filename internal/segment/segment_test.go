package segment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func joinContents(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content)
	}
	return b.String()
}

func labels(chunks []Chunk) []Label {
	out := make([]Label, len(chunks))
	for i, c := range chunks {
		out[i] = c.Index
	}
	return out
}

func equalLabels(a, b []Label) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSplitByHeadingNoHeadings(t *testing.T) {
	for _, doc := range []string{"", "plain text", "# Title\n\nbody\n", "###  not h2\n##no space"} {
		chunks := SplitByHeading(doc)
		if len(chunks) != 1 {
			t.Fatalf("SplitByHeading(%q) returned %d chunks, want 1", doc, len(chunks))
		}
		if chunks[0].Index != LabelStart || chunks[0].Content != doc {
			t.Errorf("SplitByHeading(%q) = %+v, want START with whole document", doc, chunks[0])
		}
	}
}

func TestSplitByHeadingOneHeading(t *testing.T) {
	doc := "Intro text\n\n## Header\n\nContent after header."
	chunks := SplitByHeading(doc)
	want := []Chunk{
		{Index: LabelStart, Content: "Intro text\n\n"},
		{Index: LabelEnd, Content: "## Header\n\nContent after header."},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, chunks[i], want[i])
		}
	}
	if joinContents(chunks) != doc {
		t.Error("chunks do not reassemble the document")
	}
}

func TestSplitByHeadingOneHeadingBlankPrefix(t *testing.T) {
	doc := "  \n## Only\nbody"
	chunks := SplitByHeading(doc)
	if len(chunks) != 1 || chunks[0].Index != LabelEnd {
		t.Fatalf("got %+v, want a single END chunk", chunks)
	}
	if chunks[0].Content != "## Only\nbody" {
		t.Errorf("END content = %q", chunks[0].Content)
	}
}

func TestSplitByHeadingMany(t *testing.T) {
	doc := "Intro text\n\n## Header 1\n\nContent 1\n\n## Header 2\n\nContent 2\n\n## Header 3\n\nContent 3"
	chunks := SplitByHeading(doc)
	want := []Chunk{
		{Index: LabelStart, Content: "Intro text\n\n## Header 1\n\nContent 1\n\n"},
		{Index: "1", Content: "## Header 2\n\nContent 2\n\n"},
		{Index: LabelEnd, Content: "## Header 3\n\nContent 3"},
	}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %+v, want %+v", i, chunks[i], want[i])
		}
	}
}

func TestSplitByHeadingLabelsAndReassembly(t *testing.T) {
	for n := 2; n <= 7; n++ {
		var b strings.Builder
		b.WriteString("preamble\n")
		for i := 0; i < n; i++ {
			b.WriteString("## section\nline\n\n")
		}
		doc := b.String()
		chunks := SplitByHeading(doc)
		if len(chunks) != n {
			t.Fatalf("n=%d: got %d chunks", n, len(chunks))
		}
		want := []Label{LabelStart}
		for i := 1; i <= n-2; i++ {
			want = append(want, Ordinal(i))
		}
		want = append(want, LabelEnd)
		if got := labels(chunks); !equalLabels(got, want) {
			t.Errorf("n=%d: labels = %v, want %v", n, got, want)
		}
		if joinContents(chunks) != doc {
			t.Errorf("n=%d: chunks do not reassemble the document", n)
		}
	}
}

func TestSplitByHeadingNoIntro(t *testing.T) {
	doc := "## Header 1\n\nContent 1\n\n## Header 2\n\nContent 2"
	chunks := SplitByHeading(doc)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Content != "## Header 1\n\nContent 1\n\n" || chunks[1].Content != "## Header 2\n\nContent 2" {
		t.Errorf("unexpected chunks %+v", chunks)
	}
}

const newsletter = "# 今週のざっくばらん\n" +
	"\n" +
	"## トピック1\n" +
	"内容1\n" +
	"\n" +
	"## トピック2\n" +
	"内容2\n" +
	"\n" +
	"# 私の目に止まった記事\n" +
	"[リンク1](https://example.com/1)\n" +
	"コメント1\n" +
	"[リンク2](https://example.com/2)\n" +
	"コメント2\n"

func TestSplitStructured(t *testing.T) {
	chunks := NewSplitter(nil).Split(newsletter)
	want := []Label{LabelStart, "1", "2", LabelEnd}
	if got := labels(chunks); !equalLabels(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if !strings.Contains(chunks[0].Content, "トピック1") {
		t.Errorf("START missing first topic: %q", chunks[0].Content)
	}
	if !strings.Contains(chunks[1].Content, "トピック2") {
		t.Errorf("chunk 1 missing second topic: %q", chunks[1].Content)
	}
	if chunks[2].Content != "[リンク1](https://example.com/1)\nコメント1\n" {
		t.Errorf("first article = %q", chunks[2].Content)
	}
	if chunks[3].Content != "[リンク2](https://example.com/2)\nコメント2\n" {
		t.Errorf("second article = %q", chunks[3].Content)
	}
}

func TestSplitStructuredStopsAtTopLevelHeading(t *testing.T) {
	doc := "# 今週のざっくばらん\nfree talk\n# 私の目に止まった記事\n[a](https://a)\nnote a\n# Footer\nbye\n"
	chunks := NewSplitter(nil).Split(doc)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if chunks[1].Content != "[a](https://a)\nnote a\n" {
		t.Errorf("article = %q", chunks[1].Content)
	}
}

func TestSplitStructuredNoLinks(t *testing.T) {
	doc := "# 今週のざっくばらん\nfree talk\n# 私の目に止まった記事\nnothing linked this week\n"
	chunks := NewSplitter(nil).Split(doc)
	if got := labels(chunks); !equalLabels(got, []Label{LabelStart, LabelEnd}) {
		t.Fatalf("labels = %v", got)
	}
	if chunks[1].Content != "# 私の目に止まった記事\nnothing linked this week\n" {
		t.Errorf("article section = %q", chunks[1].Content)
	}
}

func TestSplitFallsBackToGeneric(t *testing.T) {
	cases := map[string]string{
		"no markers":        "# タイトル\n\n本文だけでh2も記事セクションもないよ",
		"free talk only":    "# 今週のざっくばらん\n## a\nx\n## b\ny\n",
		"markers reversed":  "# 私の目に止まった記事\n[a](b)\n# 今週のざっくばらん\nhello\n",
		"marker not at bol": "see # 今週のざっくばらん and # 私の目に止まった記事\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			got := NewSplitter(nil).Split(doc)
			want := SplitByHeading(doc)
			if len(got) != len(want) {
				t.Fatalf("got %d chunks, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("chunk %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestSplitEmptyDocument(t *testing.T) {
	chunks := NewSplitter(nil).Split("")
	if len(chunks) != 1 || chunks[0].Index != LabelStart || chunks[0].Content != "" {
		t.Fatalf("Split(\"\") = %+v, want one empty START chunk", chunks)
	}
}

func TestRelabel(t *testing.T) {
	mk := func(n int) []Chunk {
		out := make([]Chunk, n)
		for i := range out {
			out[i] = Chunk{Index: ArticleLabel(i), Content: strings.Repeat("x", i)}
		}
		return out
	}
	tests := []struct {
		n    int
		want []Label
	}{
		{1, []Label{LabelStart}},
		{2, []Label{LabelStart, LabelEnd}},
		{3, []Label{LabelStart, "1", LabelEnd}},
		{5, []Label{LabelStart, "1", "2", "3", LabelEnd}},
	}
	for _, tt := range tests {
		in := mk(tt.n)
		out := Relabel(in)
		if got := labels(out); !equalLabels(got, tt.want) {
			t.Errorf("Relabel(%d) = %v, want %v", tt.n, got, tt.want)
		}
		for i := range out {
			if out[i].Content != in[i].Content {
				t.Errorf("Relabel(%d) changed content of chunk %d", tt.n, i)
			}
		}
		if in[0].Index != ArticleLabel(0) {
			t.Errorf("Relabel mutated its input")
		}
	}
}

func TestSaveChunks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chunks")
	chunks := []Chunk{{Index: LabelStart, Content: "hello"}, {Index: LabelEnd, Content: "bye"}}
	if err := SaveChunks(dir, chunks); err != nil {
		t.Fatalf("SaveChunks: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "chunk_1.txt"))
	if err != nil {
		t.Fatalf("read chunk: %v", err)
	}
	if string(data) != "[index: END]\nbye" {
		t.Errorf("chunk_1.txt = %q", data)
	}
}
