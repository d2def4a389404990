package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/newsletter-podcaster/internal/jobs"
	"github.com/apresai/newsletter-podcaster/internal/progress"
	"github.com/apresai/newsletter-podcaster/internal/script"
	"github.com/apresai/newsletter-podcaster/internal/segment"
	"github.com/apresai/newsletter-podcaster/internal/tts"
)

// voiced is one audio artifact with the part it came from.
type voiced struct {
	part     script.Part
	artifact tts.Artifact
}

// runSequential scripts and voices chunks one at a time, in order.
func (o *Orchestrator) runSequential(ctx context.Context, r *run, st Stages, chunks []segment.Chunk) ([]tts.Artifact, error) {
	var (
		artifacts []tts.Artifact
		scripted  int
		lastErr   error
	)
	for i, chunk := range chunks {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}
		parts, err := o.scriptUnit(ctx, r, st.Writer, i, chunk, len(chunks))
		if err != nil {
			lastErr = err
			continue
		}
		scripted++
		if err := o.update(r, progress.StageScript, "script generated", func(j *jobs.Job) {
			j.ScriptDone++
			j.PartCount += len(parts)
			j.Progress = o.scriptProgress(j.ScriptDone, j.ChunkCount)
		}); err != nil {
			return nil, err
		}

		for n, part := range parts {
			if err := cancelled(ctx); err != nil {
				return nil, err
			}
			art, err := o.audioUnit(ctx, r, st.Speech, part)
			if err != nil {
				lastErr = err
				continue
			}
			artifacts = append(artifacts, *art)
			frac := (float64(i) + float64(n+1)/float64(len(parts))) / float64(len(chunks))
			if err := o.update(r, progress.StageTTS, "audio generated", func(j *jobs.Job) {
				j.TTSDone++
				j.Progress = o.audioProgress(frac)
			}); err != nil {
				return nil, err
			}
		}
	}
	if scripted == 0 {
		return nil, noScripts(lastErr)
	}
	if len(artifacts) == 0 {
		return nil, noOutput(lastErr)
	}
	return artifacts, nil
}

// runParallel fans each stage out over a bounded pool and restores chunk
// and part order before moving on.
func (o *Orchestrator) runParallel(ctx context.Context, r *run, st Stages, chunks []segment.Chunk) ([]tts.Artifact, error) {
	type scripted struct {
		pos   int
		parts []script.Part
	}
	var (
		mu       sync.Mutex
		scripts  []scripted
		lastErr  error
		writeErr error
	)
	err := fanOut(ctx, o.opts.ScriptWorkers, len(chunks), func(i int) {
		parts, err := o.scriptUnit(ctx, r, st.Writer, i, chunks[i], len(chunks))
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			lastErr = err
			return
		}
		scripts = append(scripts, scripted{pos: i, parts: parts})
		if err := o.update(r, progress.StageScript, "script generated", func(j *jobs.Job) {
			j.ScriptDone++
			j.Progress = o.scriptProgress(j.ScriptDone, j.ChunkCount)
		}); err != nil && writeErr == nil {
			writeErr = err
		}
	})
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, writeErr
	}
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if len(scripts) == 0 {
		return nil, noScripts(lastErr)
	}

	slices.SortFunc(scripts, func(a, b scripted) int { return a.pos - b.pos })
	var parts []script.Part
	for _, s := range scripts {
		parts = append(parts, s.parts...)
	}
	if err := o.update(r, progress.StageTTS, "synthesizing audio", func(j *jobs.Job) {
		j.PartCount = len(parts)
	}); err != nil {
		return nil, err
	}

	var results []voiced
	err = fanOut(ctx, o.opts.SpeechWorkers, len(parts), func(i int) {
		art, err := o.audioUnit(ctx, r, st.Speech, parts[i])
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			lastErr = err
			return
		}
		results = append(results, voiced{part: parts[i], artifact: *art})
		done := len(results)
		if err := o.update(r, progress.StageTTS, "audio generated", func(j *jobs.Job) {
			j.TTSDone = done
			j.Progress = o.audioProgress(float64(done) / float64(len(parts)))
		}); err != nil && writeErr == nil {
			writeErr = err
		}
	})
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, writeErr
	}
	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, noOutput(lastErr)
	}

	// Completion order is arbitrary; the podcast follows document order.
	slices.SortFunc(results, func(a, b voiced) int {
		switch {
		case a.part.Less(b.part):
			return -1
		case b.part.Less(a.part):
			return 1
		}
		return 0
	})
	artifacts := make([]tts.Artifact, len(results))
	for i, v := range results {
		artifacts[i] = v.artifact
	}
	return artifacts, nil
}

// fanOut runs fn(0..n-1) on a pool of at most workers goroutines and waits.
func fanOut(ctx context.Context, workers, n int, fn func(i int)) error {
	if n == 0 {
		return nil
	}
	pool, err := ants.NewPool(min(workers, n))
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range n {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submit unit %d: %w", i, err)
		}
	}
	wg.Wait()
	return nil
}

// scriptUnit generates and splits the script for the chunk at position pos.
func (o *Orchestrator) scriptUnit(ctx context.Context, r *run, w ScriptWriter, pos int, chunk segment.Chunk, total int) (parts []script.Part, err error) {
	ctx, span := o.tracer.Start(ctx, "script.generate", trace.WithAttributes(
		attribute.String("chunk", string(chunk.Index)),
		attribute.Int("position", pos)))
	defer span.End()
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "script unit panicked", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			err = &StageError{Stage: progress.StageScript, Unit: string(chunk.Index), Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "script failed")
			r.log.WarnContext(ctx, "script unit failed", "chunk", string(chunk.Index), "error", err)
			o.warn(r, err)
		}
		o.Metrics.UnitDone(ctx, string(progress.StageScript), err, time.Since(start))
	}()

	text, err := w.Generate(ctx, chunk, total)
	if err != nil {
		return nil, err
	}
	parts = script.SplitParts(pos, chunk.Index, text, o.opts.MaxPartChars)
	if len(parts) == 0 {
		return nil, script.ErrEmptyScript
	}
	if r.workDir != "" {
		for _, p := range parts {
			if err := script.SaveScript(r.workDir, "script_"+p.Key()+".txt", p.Text); err != nil {
				r.log.WarnContext(ctx, "save script", "part", p.Key(), "error", err)
			}
		}
	}
	span.SetAttributes(attribute.Int("parts", len(parts)))
	return parts, nil
}

// audioUnit voices one script part.
func (o *Orchestrator) audioUnit(ctx context.Context, r *run, s SpeechSynthesizer, part script.Part) (art *tts.Artifact, err error) {
	key := part.Key()
	ctx, span := o.tracer.Start(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("part", key),
		attribute.String("chunk", string(part.Label))))
	defer span.End()
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorContext(ctx, "audio unit panicked", "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
		if err != nil {
			art = nil
			err = &StageError{Stage: progress.StageTTS, Unit: key, Err: err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "synthesis failed")
			r.log.WarnContext(ctx, "audio unit failed", "part", key, "error", err)
			o.warn(r, err)
		}
		o.Metrics.UnitDone(ctx, string(progress.StageTTS), err, time.Since(start))
	}()

	art, err = s.Synthesize(ctx, key, part.Text)
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, ErrNoAudio
	}
	span.SetAttributes(attribute.Int("bytes", len(art.Data)), attribute.String("media_type", art.MediaType))
	return art, nil
}

// warn records a unit failure on the job without changing its progress.
func (o *Orchestrator) warn(r *run, err error) {
	if perr := r.tracker.Update(r.persist, func(j *jobs.Job) {
		j.Warnings = append(j.Warnings, err.Error())
	}); perr != nil {
		r.log.Warn("record warning", "error", perr)
	}
}

func noScripts(last error) error {
	if last == nil {
		return ErrNoScripts
	}
	return fmt.Errorf("%w: %w", ErrNoScripts, last)
}

func noOutput(last error) error {
	if last == nil {
		return ErrNoOutput
	}
	return fmt.Errorf("%w: %w", ErrNoOutput, last)
}
