package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/newsletter-podcaster/internal/config"
	"github.com/apresai/newsletter-podcaster/internal/queue"
)

// Dispatcher hands a queued job to the background runner.
type Dispatcher interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Store Store
	Queue Dispatcher
	// HasDefaultKey reports whether the server holds a generation key.
	HasDefaultKey bool
	// AllowBYOKey lets callers supply their own key per submission.
	AllowBYOKey bool
	Logger      *slog.Logger
}

// Service implements job submission, status, and download.
type Service struct {
	store         Store
	queue         Dispatcher
	hasDefaultKey bool
	allowBYOKey   bool
	logger        *slog.Logger
}

func NewService(opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		store:         opts.Store,
		queue:         opts.Queue,
		hasDefaultKey: opts.HasDefaultKey,
		allowBYOKey:   opts.AllowBYOKey,
		logger:        opts.Logger,
	}
}

// SubmitRequest is one uploaded document.
type SubmitRequest struct {
	Filename string
	Document string
	APIKey   string
}

// IsMarkdownFile reports whether name has a markdown extension.
func IsMarkdownFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// Submit validates the document, records a queued job, and enqueues it.
// It never waits for processing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if !IsMarkdownFile(req.Filename) {
		return nil, &InputError{Field: "file", Reason: "Only markdown files are supported"}
	}
	if strings.TrimSpace(req.Document) == "" {
		return nil, &InputError{Field: "file", Reason: "document is empty"}
	}
	key := ""
	if s.allowBYOKey {
		key = strings.TrimSpace(req.APIKey)
	}
	if key == "" && !s.hasDefaultKey {
		return nil, fmt.Errorf("%w: GEMINI_API_KEY", config.ErrMissingCredential)
	}

	id, err := NewJobID()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	job := &Job{ID: id, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	task := queue.Task{JobID: id, Filename: filepath.Base(req.Filename), Document: req.Document, APIKey: key}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		failed := job.Clone()
		failed.Status = StatusFailed
		failed.Error = fmt.Sprintf("enqueue: %v", err)
		failed.UpdatedAt = time.Now().UTC()
		if perr := s.store.Put(ctx, failed); perr != nil {
			s.logger.WarnContext(ctx, "record enqueue failure", "job_id", id, "error", perr)
		}
		return nil, fmt.Errorf("enqueue job %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "job queued",
		"job_id", id,
		"filename", task.Filename,
		"bytes", len(req.Document),
		"byok", key != "")
	return job, nil
}

// Status returns the latest committed record.
func (s *Service) Status(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

// Download returns the record and the local path of a completed job's
// audio. It returns a StateError before completion and ErrNotFound when
// the file has been removed.
func (s *Service) Download(ctx context.Context, id string) (*Job, string, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if job.Status != StatusCompleted {
		return job, "", &StateError{Status: job.Status}
	}
	if job.ResultFile == "" {
		return job, "", fmt.Errorf("%w: podcast file not found", ErrNotFound)
	}
	if _, err := os.Stat(job.ResultFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return job, "", fmt.Errorf("%w: podcast file not found", ErrNotFound)
		}
		return job, "", fmt.Errorf("stat result: %w", err)
	}
	return job, job.ResultFile, nil
}
