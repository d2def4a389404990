package assembly

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
)

// normalize decodes any container ffmpeg understands into 16-bit samples
// at the target rate and channel count.
func (a *Assembler) normalize(ctx context.Context, data []byte, target Format) (*audio.IntBuffer, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(target.SampleRate),
		"-ac", strconv.Itoa(target.Channels),
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(data)
	var stdout bytes.Buffer
	var stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w\n%s", err, stderr.String())
	}
	raw := stdout.Bytes()
	if len(raw) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no samples")
	}

	samples := make([]int, len(raw)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[2*i:])))
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: target.Channels, SampleRate: target.SampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}, nil
}
