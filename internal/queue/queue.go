// Package queue hands queued jobs to background workers, in process or
// across a NATS queue group.
package queue

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned when a bounded queue cannot accept work.
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed is returned by Enqueue after the queue stopped.
	ErrClosed = errors.New("job queue is closed")
)

// Task is the work item for one job.
type Task struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename,omitempty"`
	Document string `json:"document"`
	APIKey   string `json:"api_key,omitempty"`
}

// Handler processes one task. The context is cancelled on shutdown.
type Handler func(ctx context.Context, task Task)

// Queue accepts tasks and runs them with a Handler until its context ends.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Run(ctx context.Context, h Handler) error
	Close() error
}
