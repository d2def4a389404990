package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// BarRenderer draws a two-line progress display (status + bar) on a TTY,
// or prints one timestamped line per change elsewhere.
type BarRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	start     time.Time
	isTTY     bool
	width     int
	lastEvent Event
	lastPlain string
	lines     int // lines currently drawn, for TTY overwrite
}

// NewBarRenderer detects whether out is a terminal and its width.
func NewBarRenderer(out io.Writer) *BarRenderer {
	r := &BarRenderer{out: out, start: time.Now(), width: 80}
	if f, ok := out.(*os.File); ok {
		r.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		if r.isTTY {
			if w, _, err := term.GetSize(f.Fd()); err == nil && w > 0 {
				r.width = w
			}
		}
	}
	return r
}

// Handle satisfies Callback.
func (r *BarRenderer) Handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Elapsed = time.Since(r.start)
	if e.Stage == StageComplete {
		e.Percent = 1.0
	}
	r.lastEvent = e

	if r.isTTY {
		r.renderTTY(e)
	} else {
		r.renderPlain(e)
	}
}

// Finish clears the display and prints a summary of the last event.
func (r *BarRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lastEvent
	if r.isTTY && r.lines > 0 {
		r.clearLines()
	}
	switch {
	case e.Error != nil:
		fmt.Fprintf(r.out, "\n  Error: %v\n", e.Error)
	case e.Stage == StageComplete && e.OutputFile != "":
		if info, err := os.Stat(e.OutputFile); err == nil {
			fmt.Fprintf(r.out, "\n  Podcast saved to %s (%.1f MB, %s)\n",
				e.OutputFile, float64(info.Size())/(1024*1024), formatElapsed(e.Elapsed))
		} else {
			fmt.Fprintf(r.out, "\n  Podcast saved to %s (%s)\n", e.OutputFile, formatElapsed(e.Elapsed))
		}
	case e.Stage == StageComplete:
		fmt.Fprintf(r.out, "\n  %s (%s)\n", e.Message, formatElapsed(e.Elapsed))
	}
}

// Describe renders the status line for e, including unit counts.
func Describe(e Event) string {
	if e.UnitsTotal > 0 && (e.Stage == StageScript || e.Stage == StageTTS) {
		return fmt.Sprintf("%s (%d/%d)", e.Message, e.UnitsDone, e.UnitsTotal)
	}
	return e.Message
}

func (r *BarRenderer) renderTTY(e Event) {
	if r.lines > 0 {
		r.clearLines()
	}
	bar := RenderBar(e.Percent, r.barWidth())
	fmt.Fprintf(r.out, "  %s\n  %s %3d%%  %s", Describe(e), bar, int(e.Percent*100), formatElapsed(e.Elapsed))
	r.lines = 2
}

func (r *BarRenderer) renderPlain(e Event) {
	line := fmt.Sprintf("%s %3d%%", Describe(e), int(e.Percent*100))
	if line == r.lastPlain {
		return
	}
	r.lastPlain = line
	fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), line)
}

func (r *BarRenderer) clearLines() {
	for i := 0; i < r.lines; i++ {
		if i == 0 {
			fmt.Fprint(r.out, "\r\033[2K")
		} else {
			fmt.Fprint(r.out, "\033[A\033[2K")
		}
	}
	fmt.Fprint(r.out, "\r")
	r.lines = 0
}

// barWidth leaves room for the percent and elapsed columns.
func (r *BarRenderer) barWidth() int {
	return min(max(r.width-16, 20), 60)
}

// RenderBar draws a [####....] bar of the given width.
func RenderBar(pct float64, width int) string {
	pct = min(max(pct, 0), 1)
	filled := min(int(pct*float64(width)), width)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
