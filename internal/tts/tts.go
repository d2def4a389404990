// Package tts turns dialogue scripts into speech audio artifacts.
package tts

import (
	"context"
	"io"
)

// Artifact is one synthesized audio payload. Key mirrors the script part
// it came from so order can be restored after concurrent synthesis.
type Artifact struct {
	Key       string
	MediaType string
	Data      []byte
}

// SpeakerVoice binds a dialogue speaker label to a prebuilt voice.
type SpeakerVoice struct {
	Speaker string
	Voice   string
}

// SpeechRequest asks a streamer to voice one script part.
type SpeechRequest struct {
	Model       string
	Instruction string // framing text for models that take a prompt
	Script      string
	Voices      []SpeakerVoice
	Temperature float64
}

// StreamChunk is one streamed response element. Chunks without Data are
// informational.
type StreamChunk struct {
	Text     string
	MimeType string
	Data     []byte
}

// ChunkStream yields chunks until io.EOF.
type ChunkStream interface {
	Next(ctx context.Context) (StreamChunk, error)
	Close() error
}

// SpeechStreamer is a streaming speech-synthesis backend.
type SpeechStreamer interface {
	StreamSpeech(ctx context.Context, req SpeechRequest) (ChunkStream, error)
}

// sliceStream replays a fixed list of chunks.
type sliceStream struct {
	chunks []StreamChunk
	pos    int
}

func (s *sliceStream) Next(ctx context.Context) (StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return StreamChunk{}, err
	}
	if s.pos >= len(s.chunks) {
		return StreamChunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStream) Close() error { return nil }
