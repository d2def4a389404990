package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/queue"
)

type fakeQueue struct {
	tasks []queue.Task
	err   error
}

func (f *fakeQueue) Enqueue(_ context.Context, t queue.Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}

func newTestService(q Dispatcher, hasKey bool) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	return NewService(ServiceOptions{
		Store:         store,
		Queue:         q,
		HasDefaultKey: hasKey,
		AllowBYOKey:   true,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}), store
}

func TestSubmitQueuesJob(t *testing.T) {
	q := &fakeQueue{}
	svc, store := newTestService(q, true)
	job, err := svc.Submit(context.Background(), SubmitRequest{Filename: "issue.md", Document: "# hello"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !strings.HasPrefix(job.ID, "job_") || job.Status != StatusQueued || job.Progress != 0 {
		t.Errorf("job = %+v", job)
	}
	if len(q.tasks) != 1 || q.tasks[0].JobID != job.ID || q.tasks[0].Document != "# hello" {
		t.Errorf("tasks = %+v", q.tasks)
	}
	stored, err := store.Get(context.Background(), job.ID)
	if err != nil || stored.Status != StatusQueued {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestSubmitRejectsInput(t *testing.T) {
	svc, _ := newTestService(&fakeQueue{}, true)
	tests := []SubmitRequest{
		{Filename: "issue.txt", Document: "# hi"},
		{Filename: "issue", Document: "# hi"},
		{Filename: "issue.MD", Document: "  \n"},
	}
	for _, req := range tests {
		var ie *InputError
		if _, err := svc.Submit(context.Background(), req); !errors.As(err, &ie) {
			t.Errorf("Submit(%q) = %v, want InputError", req.Filename, err)
		}
	}
}

func TestSubmitCredentials(t *testing.T) {
	q := &fakeQueue{}
	svc, _ := newTestService(q, false)
	_, err := svc.Submit(context.Background(), SubmitRequest{Filename: "a.md", Document: "x"})
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("Submit without key = %v, want ErrMissingCredential", err)
	}
	if _, err := svc.Submit(context.Background(), SubmitRequest{Filename: "a.markdown", Document: "x", APIKey: "mine"}); err != nil {
		t.Fatalf("Submit with BYOK: %v", err)
	}
	if q.tasks[0].APIKey != "mine" {
		t.Errorf("task key = %q", q.tasks[0].APIKey)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	svc, store := newTestService(&fakeQueue{err: queue.ErrQueueFull}, true)
	_, err := svc.Submit(context.Background(), SubmitRequest{Filename: "a.md", Document: "x"})
	if !errors.Is(err, queue.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	for _, j := range store.jobs {
		if j.Status != StatusFailed {
			t.Errorf("orphaned job left in %s", j.Status)
		}
	}
}

func TestDownload(t *testing.T) {
	svc, store := newTestService(&fakeQueue{}, true)
	ctx := context.Background()

	if _, _, err := svc.Download(ctx, "job_unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown = %v, want ErrNotFound", err)
	}

	for _, st := range []Status{StatusQueued, StatusProcessing, StatusFailed} {
		store.Put(ctx, &Job{ID: "job_" + string(st), Status: st})
		var se *StateError
		if _, _, err := svc.Download(ctx, "job_"+string(st)); !errors.As(err, &se) || se.Status != st {
			t.Errorf("%s = %v, want StateError", st, err)
		}
	}

	file := filepath.Join(t.TempDir(), "final_podcast.wav")
	os.WriteFile(file, []byte("RIFF"), 0o644)
	store.Put(ctx, &Job{ID: "job_done", Status: StatusCompleted, ResultFile: file})
	if _, path, err := svc.Download(ctx, "job_done"); err != nil || path != file {
		t.Errorf("Download = %q, %v", path, err)
	}

	os.Remove(file)
	if _, _, err := svc.Download(ctx, "job_done"); !errors.Is(err, ErrNotFound) {
		t.Errorf("removed file = %v, want ErrNotFound", err)
	}
}
