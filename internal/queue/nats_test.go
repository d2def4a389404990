package queue

import (
	"context"
	"testing"
	"time"

	"github.com/apresai/newsletter-podcaster/internal/config"
)

func newEmbeddedNATS(t *testing.T, workers int) *NATS {
	t.Helper()
	q, err := NewNATS(config.NATSConfig{
		Subject:    "podcast.jobs.test",
		Stream:     "PODCAST_JOBS_TEST",
		QueueGroup: "workers",
		StoreDir:   t.TempDir(),
		Embedded:   true,
	}, workers, testLogger())
	if err != nil {
		t.Fatalf("NewNATS: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

// startRun runs q until the returned stop function is called, forwarding
// handled tasks to the returned channel.
func startRun(t *testing.T, q *NATS) (<-chan Task, func()) {
	t.Helper()
	got := make(chan Task, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, func(_ context.Context, task Task) { got <- task })
	}()
	return got, func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return after cancel")
		}
	}
}

func waitTask(t *testing.T, got <-chan Task) Task {
	t.Helper()
	select {
	case task := <-got:
		return task
	case <-time.After(10 * time.Second):
		t.Fatal("task not delivered")
		return Task{}
	}
}

func TestNATSDeliversTaskPublishedBeforeRun(t *testing.T) {
	q := newEmbeddedNATS(t, 1)
	if err := q.Enqueue(context.Background(), Task{JobID: "job_1", Document: "# hi"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, stop := startRun(t, q)
	defer stop()
	task := waitTask(t, got)
	if task.JobID != "job_1" || task.Document != "# hi" {
		t.Errorf("task = %+v", task)
	}
}

func TestNATSKeepsTasksBetweenRuns(t *testing.T) {
	q := newEmbeddedNATS(t, 2)
	ctx := context.Background()

	got, stop := startRun(t, q)
	if err := q.Enqueue(ctx, Task{JobID: "job_1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if task := waitTask(t, got); task.JobID != "job_1" {
		t.Fatalf("first task = %+v", task)
	}
	stop()

	// No worker is running now.
	if err := q.Enqueue(ctx, Task{JobID: "job_2"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, stop = startRun(t, q)
	defer stop()
	if task := waitTask(t, got); task.JobID != "job_2" {
		t.Fatalf("task after restart = %+v, want job_2 (job_1 was acknowledged)", task)
	}
	select {
	case extra := <-got:
		t.Errorf("unexpected redelivery: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNATSEnqueueAfterClose(t *testing.T) {
	q := newEmbeddedNATS(t, 1)
	q.Close()
	if err := q.Enqueue(context.Background(), Task{JobID: "job_1"}); err == nil {
		t.Fatal("Enqueue after Close succeeded")
	}
}
