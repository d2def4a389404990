// Package pipeline drives a job from document to podcast: segmentation,
// script generation, speech synthesis, and assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/observability"
	"github.com/apresai/newsletter-podcaster/internal/progress"
	"github.com/apresai/newsletter-podcaster/internal/queue"
	"github.com/apresai/newsletter-podcaster/internal/script"
	"github.com/apresai/newsletter-podcaster/internal/segment"
	"github.com/apresai/newsletter-podcaster/internal/tts"
)

// Mode selects how units are scheduled.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Segmenter splits a document into labeled chunks.
type Segmenter interface {
	Split(doc string) []segment.Chunk
}

// ScriptWriter turns one chunk into a dialogue script.
type ScriptWriter interface {
	Generate(ctx context.Context, chunk segment.Chunk, total int) (string, error)
}

// SpeechSynthesizer voices one script part. A nil artifact with a nil
// error means the stream carried no audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, key, text string) (*tts.Artifact, error)
}

// Assembler writes the ordered artifacts as one file.
type Assembler interface {
	ConcatenateFile(ctx context.Context, artifacts []tts.Artifact, path string) error
}

// Results decides where final audio lives and publishes it.
type Results interface {
	Path(jobID string) string
	Publish(ctx context.Context, jobID, path string) string
}

// Stages are the per-job remote collaborators.
type Stages struct {
	Writer ScriptWriter
	Speech SpeechSynthesizer
}

// StageFactory builds Stages for a job. apiKey is the caller's own key, or
// "" to use the server's.
type StageFactory func(ctx context.Context, apiKey string) (Stages, error)

// StaticStages returns a factory that always yields s.
func StaticStages(s Stages) StageFactory {
	return func(context.Context, string) (Stages, error) { return s, nil }
}

// Options tune scheduling and progress accounting.
type Options struct {
	Mode          Mode
	ScriptWorkers int
	SpeechWorkers int
	// ScriptShare is the progress span of the script phase after the
	// initial 0.1 for segmentation.
	ScriptShare  float64
	MaxPartChars int
	// WorkDir, when set, receives chunk and script files per job.
	WorkDir string
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Store      jobs.Store
	Stages     StageFactory
	Segmenter  Segmenter
	Assembler  Assembler
	Results    Results
	Metrics    *observability.Metrics
	OnProgress progress.Callback
	Logger     *slog.Logger
}

// Orchestrator runs jobs. It is the only writer of a job's record once the
// job has been queued.
type Orchestrator struct {
	Deps
	opts   Options
	tracer trace.Tracer
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.OnProgress == nil {
		deps.OnProgress = progress.NopCallback
	}
	if opts.Mode == "" {
		opts.Mode = ModeParallel
	}
	if opts.ScriptWorkers <= 0 {
		opts.ScriptWorkers = 4
	}
	if opts.SpeechWorkers <= 0 {
		opts.SpeechWorkers = 4
	}
	if opts.ScriptShare <= 0 || opts.ScriptShare >= audioEnd-progressStart {
		opts.ScriptShare = 0.3
	}
	if opts.MaxPartChars <= 0 {
		opts.MaxPartChars = script.DefaultMaxPartChars
	}
	return &Orchestrator{Deps: deps, opts: opts, tracer: otel.Tracer("github.com/apresai/newsletter-podcaster/pipeline")}
}

// Handle adapts Run to a queue.Handler.
func (o *Orchestrator) Handle(ctx context.Context, task queue.Task) {
	o.Run(ctx, task)
}

// run is the state of one job execution.
type run struct {
	id      string
	tracker *jobs.Tracker
	log     *slog.Logger
	start   time.Time
	workDir string
	// persist is used for record writes so they survive cancellation.
	persist context.Context
}

// Run executes the job described by task and returns its final record and,
// when it failed, the cause. Failures are recorded on the job, never
// propagated to the submitter.
func (o *Orchestrator) Run(ctx context.Context, task queue.Task) (final *jobs.Job, cause error) {
	ctx = observability.WithJobID(ctx, task.JobID)
	ctx, span := o.tracer.Start(ctx, "job.run", trace.WithAttributes(attribute.String("job_id", task.JobID)))
	defer span.End()

	job, err := o.Store.Get(ctx, task.JobID)
	if err != nil {
		o.Logger.ErrorContext(ctx, "load job", "job_id", task.JobID, "error", err)
		return nil, err
	}
	// Only a queued job may start; a redelivered task for a job another
	// worker already owns must not produce a second writer.
	if job.Status != jobs.StatusQueued {
		o.Logger.WarnContext(ctx, "job not queued, skipping", "job_id", task.JobID, "status", job.Status)
		return job, nil
	}

	r := &run{
		id:      task.JobID,
		tracker: jobs.NewTracker(o.Store, job),
		log:     o.Logger.With("job_id", task.JobID),
		start:   time.Now(),
		persist: context.WithoutCancel(ctx),
	}
	if o.opts.WorkDir != "" {
		r.workDir = filepath.Join(o.opts.WorkDir, task.JobID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			cause = fmt.Errorf("panic: %v", rec)
			r.log.ErrorContext(ctx, "job panicked", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			o.fail(ctx, r, cause)
		}
		final = r.tracker.Snapshot()
		if cause != nil {
			span.RecordError(cause)
			span.SetStatus(codes.Error, "job failed")
		} else {
			span.SetStatus(codes.Ok, "completed")
		}
	}()

	if err := o.execute(ctx, r, task); err != nil {
		o.fail(ctx, r, err)
		return nil, err
	}
	return nil, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run, task queue.Task) error {
	stages, err := o.Stages(ctx, task.APIKey)
	if err != nil {
		return fmt.Errorf("prepare stages: %w", err)
	}

	chunks := o.segment(ctx, r, task.Document)
	if err := r.tracker.Start(r.persist, len(chunks)); err != nil {
		return err
	}
	if err := o.update(r, progress.StageSegment, "segmented", func(j *jobs.Job) { j.Progress = progressStart }); err != nil {
		return err
	}
	r.log.InfoContext(ctx, "job started", "chunks", len(chunks), "mode", string(o.opts.Mode))

	var artifacts []tts.Artifact
	switch o.opts.Mode {
	case ModeSequential:
		artifacts, err = o.runSequential(ctx, r, stages, chunks)
	default:
		artifacts, err = o.runParallel(ctx, r, stages, chunks)
	}
	if err != nil {
		return err
	}
	if err := cancelled(ctx); err != nil {
		return err
	}
	return o.assemble(ctx, r, artifacts)
}

func (o *Orchestrator) segment(ctx context.Context, r *run, doc string) []segment.Chunk {
	_, span := o.tracer.Start(ctx, "segment")
	defer span.End()

	chunks := o.Segmenter.Split(doc)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	if r.workDir != "" {
		if err := segment.SaveChunks(r.workDir, chunks); err != nil {
			r.log.WarnContext(ctx, "save chunks", "error", err)
		}
	}
	return chunks
}

func (o *Orchestrator) assemble(ctx context.Context, r *run, artifacts []tts.Artifact) error {
	ctx, span := o.tracer.Start(ctx, "assembly.concatenate", trace.WithAttributes(attribute.Int("artifacts", len(artifacts))))
	defer span.End()

	o.emit(r, progress.StageAssembly, "assembling audio")
	path := o.Results.Path(r.id)
	start := time.Now()
	err := o.Assembler.ConcatenateFile(ctx, artifacts, path)
	o.Metrics.UnitDone(ctx, string(progress.StageAssembly), err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly failed")
		return fmt.Errorf("assemble podcast: %w", err)
	}

	url := o.Results.Publish(ctx, r.id, path)
	if err := r.tracker.Complete(r.persist, path, url); err != nil {
		return err
	}
	o.Metrics.JobFinished(ctx, string(jobs.StatusCompleted))
	o.OnProgress(progress.Event{
		JobID:      r.id,
		Stage:      progress.StageComplete,
		Message:    "podcast ready",
		Percent:    1.0,
		Elapsed:    time.Since(r.start),
		OutputFile: path,
	})
	r.log.InfoContext(ctx, "job completed",
		"result_file", path,
		"artifacts", len(artifacts),
		"duration_ms", time.Since(r.start).Milliseconds())
	return nil
}

// fail records cause as the terminal error. A job already finished keeps its
// first terminal state.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) {
	var te *jobs.TransitionError
	if err := r.tracker.Fail(r.persist, cause); err != nil {
		if errors.As(err, &te) {
			return
		}
		r.log.ErrorContext(ctx, "persist failure", "error", err)
	}
	o.Metrics.JobFinished(ctx, string(jobs.StatusFailed))
	o.OnProgress(progress.Event{
		JobID:   r.id,
		Stage:   progress.StageFailed,
		Message: cause.Error(),
		Percent: r.tracker.Snapshot().Progress,
		Elapsed: time.Since(r.start),
		Error:   cause,
	})
	r.log.ErrorContext(ctx, "job failed", "error", cause, "duration_ms", time.Since(r.start).Milliseconds())
}

// update commits fn to the record and emits a progress event.
func (o *Orchestrator) update(r *run, stage progress.Stage, msg string, fn func(*jobs.Job)) error {
	if err := r.tracker.Update(r.persist, fn); err != nil {
		return err
	}
	o.emit(r, stage, msg)
	return nil
}

func (o *Orchestrator) emit(r *run, stage progress.Stage, msg string) {
	snap := r.tracker.Snapshot()
	done, total := snap.ScriptDone, snap.ChunkCount
	if stage == progress.StageTTS {
		done, total = snap.TTSDone, snap.PartCount
	}
	o.OnProgress(progress.Event{
		JobID:      r.id,
		Stage:      stage,
		Message:    msg,
		Percent:    snap.Progress,
		UnitsDone:  done,
		UnitsTotal: total,
		Elapsed:    time.Since(r.start),
	})
}

// cancelled converts a done context into the job's failure cause.
func cancelled(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("cancelled: %w", context.Cause(ctx))
}
