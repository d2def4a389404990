// Package progress carries job progress events to terminal renderers.
package progress

import "time"

// Stage is the phase a job is in when an event fires.
type Stage string

const (
	StageSegment  Stage = "segment"
	StageScript   Stage = "script"
	StageTTS      Stage = "tts"
	StageAssembly Stage = "assembly"
	StageComplete Stage = "complete"
	StageFailed   Stage = "failed"
)

// Event reports one change in a job's status record.
type Event struct {
	JobID   string
	Stage   Stage
	Message string
	Percent float64 // matches the job's stored progress, 0..1

	// UnitsDone and UnitsTotal count finished scripts (StageScript) or
	// audio parts (StageTTS).
	UnitsDone  int
	UnitsTotal int

	Elapsed    time.Duration
	Error      error
	OutputFile string // final WAV path, on StageComplete
}

// Callback receives events, possibly from several fan-out workers at once.
type Callback func(Event)

// NopCallback discards events.
func NopCallback(Event) {}
