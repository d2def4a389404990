// Package assembly concatenates per-part speech audio into one WAV track.
package assembly

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/apresai/newsletter-podcaster/internal/tts"
)

// ErrNoInput is returned when there is nothing to concatenate.
var ErrNoInput = errors.New("no audio artifacts to concatenate")

// Output format used when no input fixes one.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	bitDepth          = 16
)

// Format is the PCM layout of the assembled track.
type Format struct {
	SampleRate int
	Channels   int
}

// Options configures an Assembler.
type Options struct {
	// Gap is silence inserted between consecutive artifacts.
	Gap time.Duration
	// FFmpeg is the binary used to decode non-WAV input. Defaults to "ffmpeg".
	FFmpeg string
	Logger *slog.Logger
}

// Assembler decodes artifacts by their own container and appends the
// waveforms in order. Output is always 16-bit PCM WAV.
type Assembler struct {
	gap    time.Duration
	ffmpeg string
	logger *slog.Logger
}

func New(opts Options) *Assembler {
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Assembler{gap: opts.Gap, ffmpeg: opts.FFmpeg, logger: opts.Logger}
}

// Concatenate joins artifacts into one in-memory WAV artifact.
func (a *Assembler) Concatenate(ctx context.Context, artifacts []tts.Artifact) (*tts.Artifact, error) {
	var ws writeSeeker
	if err := a.Encode(ctx, artifacts, &ws); err != nil {
		return nil, err
	}
	return &tts.Artifact{Key: "final", MediaType: "audio/wav", Data: ws.buf}, nil
}

// ConcatenateFile joins artifacts into a WAV file at path, creating parent
// directories. A partial file is removed on failure.
func (a *Assembler) ConcatenateFile(ctx context.Context, artifacts []tts.Artifact, path string) error {
	if len(artifacts) == 0 {
		return ErrNoInput
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := a.Encode(ctx, artifacts, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("close output file: %w", err)
	}
	return nil
}

// Encode writes the concatenation of artifacts to w as WAV.
func (a *Assembler) Encode(ctx context.Context, artifacts []tts.Artifact, w io.WriteSeeker) error {
	if len(artifacts) == 0 {
		return ErrNoInput
	}

	var (
		format  *Format
		samples []int
	)
	for i, art := range artifacts {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, err := a.decode(ctx, art, format)
		if err != nil {
			return fmt.Errorf("decode artifact %s: %w", art.Key, err)
		}
		if format == nil {
			format = &Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
		}
		if i > 0 && a.gap > 0 {
			samples = append(samples, make([]int, silenceSamples(*format, a.gap))...)
		}
		samples = append(samples, buf.Data...)
	}

	enc := wav.NewEncoder(w, format.SampleRate, bitDepth, format.Channels, 1)
	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(out); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}

	a.logger.DebugContext(ctx, "audio assembled",
		"artifacts", len(artifacts),
		"sample_rate", format.SampleRate,
		"channels", format.Channels,
		"samples", len(samples))
	return nil
}

// decode returns 16-bit samples for one artifact. WAV input matching want
// (or any WAV when want is nil) is decoded directly; anything else goes
// through ffmpeg.
func (a *Assembler) decode(ctx context.Context, art tts.Artifact, want *Format) (*audio.IntBuffer, error) {
	if ext, _ := tts.ExtensionForMime(art.MediaType); ext == ".wav" {
		dec := wav.NewDecoder(bytes.NewReader(art.Data))
		if !dec.IsValidFile() {
			return nil, fmt.Errorf("invalid WAV data")
		}
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			return nil, fmt.Errorf("read WAV samples: %w", err)
		}
		got := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
		if dec.BitDepth == bitDepth && (want == nil || *want == got) {
			return buf, nil
		}
	}

	target := Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels}
	if want != nil {
		target = *want
	}
	return a.normalize(ctx, art.Data, target)
}

func silenceSamples(f Format, d time.Duration) int {
	return int(d.Seconds()*float64(f.SampleRate)) * f.Channels
}

// writeSeeker is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch header sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	w.pos = int(next)
	return next, nil
}
