package pipeline

import (
	"errors"
	"fmt"

	"github.com/apresai/newsletter-podcaster/internal/progress"
)

var (
	// ErrNoOutput means every stage ran but no audio artifact survived.
	ErrNoOutput = errors.New("no audio output produced")
	// ErrNoAudio means a speech stream ended without an audio payload.
	ErrNoAudio = errors.New("speech stream returned no audio")
	// ErrNoScripts means every chunk failed script generation.
	ErrNoScripts = errors.New("no scripts generated")
)

// StageError is a failure of one unit (chunk or script part) in one stage.
// It never aborts sibling units.
type StageError struct {
	Stage progress.Stage
	Unit  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Unit, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
