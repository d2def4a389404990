// Package jobs holds the podcast job record, its lifecycle rules, the
// stores that persist it, and the submit/status/download service.
package jobs

import (
	"crypto/rand"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the persisted status record of one pipeline run.
type Job struct {
	ID         string    `json:"job_id" dynamodbav:"jobId"`
	Status     Status    `json:"status" dynamodbav:"status"`
	Progress   float64   `json:"progress" dynamodbav:"progress"`
	ChunkCount int       `json:"chunk_count,omitempty" dynamodbav:"chunkCount,omitempty"`
	ScriptDone int       `json:"script_done,omitempty" dynamodbav:"scriptDone,omitempty"`
	TTSDone    int       `json:"tts_done,omitempty" dynamodbav:"ttsDone,omitempty"`
	PartCount  int       `json:"part_count,omitempty" dynamodbav:"partCount,omitempty"`
	ResultFile string    `json:"result_file,omitempty" dynamodbav:"resultFile,omitempty"`
	ResultURL  string    `json:"result_url,omitempty" dynamodbav:"resultUrl,omitempty"`
	Error      string    `json:"error,omitempty" dynamodbav:"errorMessage,omitempty"`
	Warnings   []string  `json:"warnings,omitempty" dynamodbav:"warnings,omitempty"`
	CreatedAt  time.Time `json:"created_at" dynamodbav:"createdAt"`
	UpdatedAt  time.Time `json:"updated_at" dynamodbav:"updatedAt"`
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	c := *j
	c.Warnings = slices.Clone(j.Warnings)
	return &c
}

// NewJobID returns a sortable id of the form job_<ulid>.
func NewJobID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return "job_" + id.String(), nil
}

// isValidTransition enforces the job state machine edges. Processing may
// repeat to publish progress.
func isValidTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}
