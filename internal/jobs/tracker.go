package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Tracker is the single writer for one job. Every mutation is applied to a
// copy, checked against the transition table, persisted, and then becomes
// the current record. Progress never decreases.
type Tracker struct {
	mu    sync.Mutex
	store Store
	job   *Job
}

func NewTracker(store Store, job *Job) *Tracker {
	return &Tracker{store: store, job: job.Clone()}
}

// Snapshot returns a copy of the last committed record.
func (t *Tracker) Snapshot() *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job.Clone()
}

// Start moves the job to processing with chunkCount set and counters zeroed.
func (t *Tracker) Start(ctx context.Context, chunkCount int) error {
	return t.commit(ctx, StatusProcessing, func(j *Job) {
		j.ChunkCount = chunkCount
		j.ScriptDone = 0
		j.TTSDone = 0
	})
}

// Update applies fn to a processing job.
func (t *Tracker) Update(ctx context.Context, fn func(*Job)) error {
	return t.commit(ctx, StatusProcessing, fn)
}

// Complete records the result and finishes the job.
func (t *Tracker) Complete(ctx context.Context, resultFile, resultURL string) error {
	return t.commit(ctx, StatusCompleted, func(j *Job) {
		j.Progress = 1.0
		j.ResultFile = resultFile
		j.ResultURL = resultURL
	})
}

// Fail finishes the job with cause as its error. Progress is left at the
// last committed value.
func (t *Tracker) Fail(ctx context.Context, cause error) error {
	return t.commit(ctx, StatusFailed, func(j *Job) {
		j.Error = cause.Error()
	})
}

func (t *Tracker) commit(ctx context.Context, to Status, fn func(*Job)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.job.Status
	if !isValidTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	next := t.job.Clone()
	fn(next)
	next.Status = to
	if next.Progress < t.job.Progress {
		next.Progress = t.job.Progress
	}
	next.UpdatedAt = time.Now().UTC()

	// The record advances even if persisting fails so a terminal state is
	// never entered twice.
	t.job = next
	if err := t.store.Put(ctx, next); err != nil {
		return fmt.Errorf("persist job %s: %w", next.ID, err)
	}
	return nil
}
