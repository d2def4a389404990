package pipeline

const (
	// progressStart is reached once the document is segmented.
	progressStart = 0.1
	// audioEnd is reached when every audio unit is done; assembly owns the
	// rest.
	audioEnd = 0.9
)

// scriptProgress is the fraction after done of total chunks are scripted.
func (o *Orchestrator) scriptProgress(done, total int) float64 {
	if total == 0 {
		return progressStart
	}
	return progressStart + o.opts.ScriptShare*float64(done)/float64(total)
}

// audioProgress maps the completed fraction of the audio phase to overall
// progress.
func (o *Orchestrator) audioProgress(frac float64) float64 {
	start := progressStart + o.opts.ScriptShare
	return start + (audioEnd-start)*frac
}
