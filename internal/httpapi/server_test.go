package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/queue"
)

type fakeQueue struct {
	tasks []queue.Task
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, t queue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, t)
	return nil
}

type fixture struct {
	store *jobs.MemoryStore
	queue *fakeQueue
	srv   http.Handler
}

func newFixture(t *testing.T, hasKey bool, maxUpload int64) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{store: jobs.NewMemoryStore(), queue: &fakeQueue{}}
	svc := jobs.NewService(jobs.ServiceOptions{
		Store:         f.store,
		Queue:         f.queue,
		HasDefaultKey: hasKey,
		AllowBYOKey:   true,
		Logger:        logger,
	})
	f.srv = New(Options{
		Service:        svc,
		MaxUploadBytes: maxUpload,
		Metrics:        http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { io.WriteString(w, "podcast_jobs_total 0\n") }),
		MCP:            http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) }),
		Logger:         logger,
	}).Handler()
	return f
}

func upload(t *testing.T, h http.Handler, filename, content string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/generate-podcast", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestGeneratePodcast(t *testing.T) {
	f := newFixture(t, true, 0)
	rec := upload(t, f.srv, "issue.md", "## A\nbody\n", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var job jobs.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(job.ID, "job_") || job.Status != jobs.StatusQueued || job.Progress != 0 {
		t.Errorf("job = %+v", job)
	}
	if len(f.queue.tasks) != 1 || f.queue.tasks[0].Document != "## A\nbody\n" {
		t.Errorf("tasks = %+v", f.queue.tasks)
	}
}

func TestGeneratePodcastRejections(t *testing.T) {
	tests := []struct {
		name     string
		hasKey   bool
		filename string
		content  string
		header   map[string]string
		queueErr error
		code     int
		detail   string
	}{
		{name: "not markdown", hasKey: true, filename: "issue.txt", content: "x", code: 400, detail: "Only markdown files are supported"},
		{name: "no file", hasKey: true, code: 400, detail: `multipart field "file" is required`},
		{name: "empty", hasKey: true, filename: "issue.md", content: " \n", code: 400, detail: "document is empty"},
		{name: "not utf8", hasKey: true, filename: "issue.md", content: "\xff\xfe", code: 400, detail: "file must be UTF-8 text"},
		{name: "no key", filename: "issue.md", content: "## A\n", code: 500, detail: "GEMINI_API_KEY environment variable not set"},
		{name: "queue full", hasKey: true, filename: "issue.md", content: "## A\n", queueErr: queue.ErrQueueFull, code: 503, detail: "server is busy, try again later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.hasKey, 0)
			f.queue.err = tt.queueErr
			rec := upload(t, f.srv, tt.filename, tt.content, tt.header)
			if rec.Code != tt.code || detailOf(t, rec) != tt.detail {
				t.Errorf("got %d %s, want %d %q", rec.Code, rec.Body, tt.code, tt.detail)
			}
		})
	}
}

func TestGeneratePodcastWithOwnKey(t *testing.T) {
	f := newFixture(t, false, 0)
	rec := upload(t, f.srv, "issue.markdown", "## A\n", map[string]string{KeyHeader: "user-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if f.queue.tasks[0].APIKey != "user-key" {
		t.Errorf("task key = %q", f.queue.tasks[0].APIKey)
	}
}

func TestUploadTooLarge(t *testing.T) {
	f := newFixture(t, true, 512)
	rec := upload(t, f.srv, "issue.md", strings.Repeat("a", 4096), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, true, 0)
	now := time.Now().UTC()
	f.store.Put(context.Background(), &jobs.Job{ID: "job_a", Status: jobs.StatusProcessing, Progress: 0.55, ChunkCount: 3, ScriptDone: 3, TTSDone: 1, CreatedAt: now, UpdatedAt: now})

	rec := get(f.srv, "/api/podcast-status/job_a")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var raw map[string]any
	json.Unmarshal(rec.Body.Bytes(), &raw)
	if raw["job_id"] != "job_a" || raw["status"] != "processing" || raw["progress"] != 0.55 || raw["tts_done"] != 1.0 {
		t.Errorf("body = %s", rec.Body)
	}

	rec = get(f.srv, "/api/podcast-status/job_missing")
	if rec.Code != http.StatusNotFound || detailOf(t, rec) != "Job job_missing not found" {
		t.Errorf("missing: %d %s", rec.Code, rec.Body)
	}
}

func TestDownload(t *testing.T) {
	f := newFixture(t, true, 0)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "final_podcast.wav")
	os.WriteFile(path, []byte("RIFF....WAVE"), 0o644)
	f.store.Put(ctx, &jobs.Job{ID: "job_done", Status: jobs.StatusCompleted, Progress: 1, ResultFile: path})
	f.store.Put(ctx, &jobs.Job{ID: "job_gone", Status: jobs.StatusCompleted, Progress: 1, ResultFile: path + ".missing"})
	f.store.Put(ctx, &jobs.Job{ID: "job_busy", Status: jobs.StatusProcessing, Progress: 0.2})

	rec := get(f.srv, "/api/download-podcast/job_done")
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFF....WAVE" {
		t.Fatalf("download: %d %q", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, "podcast_job_done.wav") {
		t.Errorf("disposition = %q", cd)
	}

	tests := []struct {
		id     string
		code   int
		detail string
	}{
		{"job_busy", 400, "Podcast generation not completed. Current status: processing"},
		{"job_gone", 404, "Podcast file not found"},
		{"job_missing", 404, "Job job_missing not found"},
	}
	for _, tt := range tests {
		rec := get(f.srv, "/api/download-podcast/"+tt.id)
		if rec.Code != tt.code || detailOf(t, rec) != tt.detail {
			t.Errorf("%s: got %d %s", tt.id, rec.Code, rec.Body)
		}
	}
}

func TestAuxiliaryRoutes(t *testing.T) {
	f := newFixture(t, true, 0)
	if rec := get(f.srv, "/health"); rec.Code != 200 || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", rec.Code, rec.Body)
	}
	if rec := get(f.srv, "/metrics"); rec.Code != 200 || !strings.Contains(rec.Body.String(), "podcast_jobs_total") {
		t.Errorf("metrics: %d %s", rec.Code, rec.Body)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	if rec.Code != http.StatusAccepted {
		t.Errorf("mcp: %d", rec.Code)
	}
}

func TestAddr(t *testing.T) {
	if got := Addr("0.0.0.0", 8000); got != "0.0.0.0:8000" {
		t.Errorf("Addr = %q", got)
	}
}
