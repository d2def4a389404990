package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/apresai/newsletter-podcaster/internal/gemini"
	"github.com/apresai/newsletter-podcaster/internal/segment"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingGenerator struct {
	reqs  []TextRequest
	reply string
	err   error
}

func (r *recordingGenerator) GenerateText(_ context.Context, req TextRequest) (string, error) {
	r.reqs = append(r.reqs, req)
	return r.reply, r.err
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		label segment.Label
		total int
		want  Class
	}{
		{segment.LabelStart, 1, Continuation},
		{segment.LabelStart, 2, Opening},
		{segment.LabelStart, 5, Opening},
		{"1", 5, Continuation},
		{segment.LabelEnd, 2, Closing},
		{segment.LabelEnd, 5, Closing},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.label, tt.total); got != tt.want {
			t.Errorf("ClassOf(%s, %d) = %s, want %s", tt.label, tt.total, got, tt.want)
		}
	}
}

func TestWriterGenerate(t *testing.T) {
	gen := &recordingGenerator{reply: "```\nMinami: こんにちは [pause 0.6sec]\n```"}
	w := NewWriter(gen, "gemini-2.5-flash", 0.5, DefaultShow(), discardLogger())

	got, err := w.Generate(context.Background(), segment.Chunk{Index: segment.LabelEnd, Content: "記事の本文"}, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Minami: こんにちは [pause 0.6sec]" {
		t.Errorf("script = %q", got)
	}
	if len(gen.reqs) != 1 {
		t.Fatalf("generator called %d times", len(gen.reqs))
	}
	req := gen.reqs[0]
	if req.Model != "gemini-2.5-flash" || req.Temperature != 0.5 {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(req.System, "Minami and Nakajima") || !strings.Contains(req.System, "Japanese") {
		t.Errorf("system prompt missing speakers or language:\n%s", req.System)
	}
	if len(req.Parts) != 1 || !strings.Contains(req.Parts[0], "SEGMENT INDEX: END") ||
		!strings.Contains(req.Parts[0], "FINAL segment") || !strings.Contains(req.Parts[0], "記事の本文") {
		t.Errorf("chunk prompt = %q", req.Parts)
	}
}

func TestWriterGenerateDirectives(t *testing.T) {
	gen := &recordingGenerator{reply: "Minami: ok"}
	w := NewWriter(gen, "m", 1, DefaultShow(), discardLogger())
	ctx := context.Background()
	if _, err := w.Generate(ctx, segment.Chunk{Index: segment.LabelStart}, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Generate(ctx, segment.Chunk{Index: "1"}, 3); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gen.reqs[0].Parts[0], "OPENING segment") {
		t.Errorf("START prompt lacks opening directive")
	}
	if !strings.Contains(gen.reqs[1].Parts[0], "MIDDLE segment") {
		t.Errorf("interior prompt lacks continuation directive")
	}
}

func TestWriterGenerateErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewWriter(&recordingGenerator{err: boom}, "m", 1, DefaultShow(), discardLogger())
	if _, err := w.Generate(context.Background(), segment.Chunk{Index: "1"}, 3); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped generator error", err)
	}
	w = NewWriter(&recordingGenerator{reply: "  \n"}, "m", 1, DefaultShow(), discardLogger())
	if _, err := w.Generate(context.Background(), segment.Chunk{Index: "1"}, 3); !errors.Is(err, ErrEmptyScript) {
		t.Errorf("err = %v, want ErrEmptyScript", err)
	}
}

func TestWithSpeakerNames(t *testing.T) {
	show := DefaultShow().WithSpeakerNames("Aoi", "Ken")
	if got := strings.Join(show.SpeakerNames(), ","); got != "Aoi,Ken" {
		t.Fatalf("names = %s", got)
	}
	if show.Speakers[0].Role != "announcer" {
		t.Errorf("role lost on rename: %+v", show.Speakers[0])
	}
}

func TestGeminiGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-pro:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Nakajima: はい"}]}}]}`)
	}))
	defer srv.Close()

	client, err := gemini.New(gemini.Options{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewGeminiGenerator(client).GenerateText(context.Background(), TextRequest{Model: "gemini-pro", System: "s", Parts: []string{"p"}})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "Nakajima: はい" {
		t.Errorf("text = %q", got)
	}
}

type fakeConverser struct {
	in  *bedrockruntime.ConverseInput
	out string
}

func (f *fakeConverser) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = in
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: f.out}},
		}},
	}, nil
}

func TestNovaGenerator(t *testing.T) {
	fc := &fakeConverser{out: "Minami: どうも"}
	got, err := NewNovaGenerator(fc).GenerateText(context.Background(), TextRequest{System: "sys", Parts: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "Minami: どうも" {
		t.Errorf("text = %q", got)
	}
	if *fc.in.ModelId != novaModels["nova-lite"] || len(fc.in.System) != 1 || len(fc.in.Messages[0].Content) != 2 {
		t.Errorf("converse input = %+v", fc.in)
	}
}

func TestSaveScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scripts")
	if err := SaveScript(dir, "script_0_1.txt", "Minami: hi"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "script_0_1.txt"))
	if err != nil || string(data) != "Minami: hi" {
		t.Fatalf("read back %q, %v", data, err)
	}
}
