// Package storage places finished podcasts on local disk and optionally
// mirrors them to S3.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FinalName is the file name of every assembled podcast.
const FinalName = "final_podcast.wav"

// Mirror copies a finished file somewhere clients can fetch it.
type Mirror interface {
	Upload(ctx context.Context, jobID, path string) (key, url string, err error)
}

// Results owns the result directory layout <dir>/<job_id>/final_podcast.wav.
type Results struct {
	dir    string
	mirror Mirror
	log    *slog.Logger
}

// NewResults creates dir if needed. mirror may be nil.
func NewResults(dir string, mirror Mirror, logger *slog.Logger) (*Results, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve result dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}
	return &Results{dir: abs, mirror: mirror, log: logger}, nil
}

// Path returns where the job's final audio is written.
func (r *Results) Path(jobID string) string {
	return filepath.Join(r.dir, jobID, FinalName)
}

// Publish mirrors a finished file and returns its public URL, or "" when
// no mirror is configured. Mirror failures are logged and not fatal: the
// local file remains downloadable.
func (r *Results) Publish(ctx context.Context, jobID, path string) string {
	if r.mirror == nil {
		return ""
	}
	key, url, err := r.mirror.Upload(ctx, jobID, path)
	if err != nil {
		r.log.WarnContext(ctx, "mirror upload failed", "job_id", jobID, "error", err)
		return ""
	}
	r.log.InfoContext(ctx, "podcast mirrored", "job_id", jobID, "key", key, "url", url)
	return url
}
