package assembly

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/apresai/newsletter-podcaster/internal/tts"
)

func testAssembler(gap time.Duration) *Assembler {
	return New(Options{Gap: gap, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func pcmArtifact(key string, samples ...int16) tts.Artifact {
	var pcm bytes.Buffer
	for _, s := range samples {
		pcm.WriteByte(byte(uint16(s)))
		pcm.WriteByte(byte(uint16(s) >> 8))
	}
	return tts.Artifact{Key: key, MediaType: "audio/wav", Data: tts.PCMToWAV(pcm.Bytes(), "audio/L16;rate=24000")}
}

func decodeSamples(t *testing.T, data []byte) (int, []int) {
	t.Helper()
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		t.Fatal("output is not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	return int(dec.SampleRate), buf.Data
}

func TestConcatenateAppendsInOrder(t *testing.T) {
	a := testAssembler(0)
	out, err := a.Concatenate(context.Background(), []tts.Artifact{
		pcmArtifact("0_1", 1, 2),
		pcmArtifact("1_1", -3),
		pcmArtifact("2_1", 4, 5, 6),
	})
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	if out.MediaType != "audio/wav" {
		t.Errorf("media type = %q", out.MediaType)
	}
	rate, got := decodeSamples(t, out.Data)
	if rate != 24000 {
		t.Errorf("rate = %d", rate)
	}
	want := []int{1, 2, -3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("samples = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("samples = %v, want %v", got, want)
		}
	}
}

func TestConcatenateIsDeterministic(t *testing.T) {
	arts := []tts.Artifact{pcmArtifact("a", 7, 8), pcmArtifact("b", 9)}
	first, err := testAssembler(0).Concatenate(context.Background(), arts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := testAssembler(0).Concatenate(context.Background(), arts)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("same input produced different bytes")
	}
}

func TestConcatenateGap(t *testing.T) {
	out, err := testAssembler(time.Millisecond).Concatenate(context.Background(), []tts.Artifact{
		pcmArtifact("a", 1),
		pcmArtifact("b", 2),
	})
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	_, got := decodeSamples(t, out.Data)
	// 1ms at 24kHz mono is 24 samples of silence.
	if len(got) != 26 || got[0] != 1 || got[25] != 2 || got[12] != 0 {
		t.Fatalf("samples = %v", got)
	}
}

func TestConcatenateNoInput(t *testing.T) {
	if _, err := testAssembler(0).Concatenate(context.Background(), nil); !errors.Is(err, ErrNoInput) {
		t.Fatalf("err = %v, want ErrNoInput", err)
	}
	path := filepath.Join(t.TempDir(), "out.wav")
	if err := testAssembler(0).ConcatenateFile(context.Background(), nil, path); !errors.Is(err, ErrNoInput) {
		t.Fatalf("ConcatenateFile err = %v, want ErrNoInput", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("output file created for empty input")
	}
}

func TestConcatenateInvalidWAV(t *testing.T) {
	bad := tts.Artifact{Key: "x", MediaType: "audio/wav", Data: []byte("not audio")}
	if _, err := testAssembler(0).Concatenate(context.Background(), []tts.Artifact{bad}); err == nil {
		t.Fatal("expected error for invalid WAV data")
	}
}

func TestConcatenateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job_1", "final_podcast.wav")
	if err := testAssembler(0).ConcatenateFile(context.Background(), []tts.Artifact{pcmArtifact("a", 1, 2)}, path); err != nil {
		t.Fatalf("ConcatenateFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, got := decodeSamples(t, data); len(got) != 2 {
		t.Errorf("samples = %v", got)
	}
}

func TestConcatenateResamplesMismatchedWAV(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	other := tts.Artifact{Key: "b", MediaType: "audio/wav", Data: tts.PCMToWAV(make([]byte, 3200), "audio/L16;rate=16000")}
	out, err := testAssembler(0).Concatenate(context.Background(), []tts.Artifact{pcmArtifact("a", 1), other})
	if err != nil {
		t.Fatalf("Concatenate: %v", err)
	}
	rate, got := decodeSamples(t, out.Data)
	if rate != 24000 {
		t.Errorf("rate = %d, want first artifact's 24000", rate)
	}
	if len(got) < 2000 {
		t.Errorf("resampled part too short: %d samples", len(got))
	}
}
