package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Synthesizer voices script parts through a SpeechStreamer.
type Synthesizer struct {
	streamer    SpeechStreamer
	model       string
	voices      []SpeakerVoice
	temperature float64
	language    string
	logger      *slog.Logger
}

// SynthesizerOptions configures a Synthesizer.
type SynthesizerOptions struct {
	Model       string
	Voices      []SpeakerVoice
	Temperature float64
	Language    string
	Logger      *slog.Logger
}

func NewSynthesizer(streamer SpeechStreamer, opts SynthesizerOptions) *Synthesizer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Language == "" {
		opts.Language = "Japanese"
	}
	return &Synthesizer{
		streamer:    streamer,
		model:       opts.Model,
		voices:      opts.Voices,
		temperature: opts.Temperature,
		language:    opts.Language,
		logger:      opts.Logger,
	}
}

// Instruction frames a script for prompt-driven speech models.
func (s *Synthesizer) Instruction() string {
	return fmt.Sprintf("Read the following %s podcast dialogue aloud in a warm, friendly conversational tone.", s.language)
}

// Synthesize voices text and returns the first audio payload of the stream.
// It returns a nil artifact and nil error when the stream carries no audio.
// Headerless PCM payloads are wrapped in a WAV container.
func (s *Synthesizer) Synthesize(ctx context.Context, key, text string) (*Artifact, error) {
	start := time.Now()
	stream, err := s.streamer.StreamSpeech(ctx, SpeechRequest{
		Model:       s.model,
		Instruction: s.Instruction(),
		Script:      text,
		Voices:      s.voices,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("open speech stream for %s: %w", key, err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.logger.WarnContext(ctx, "speech stream ended without audio", "part", key)
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read speech stream for %s: %w", key, err)
		}
		if len(chunk.Data) == 0 {
			if chunk.Text != "" {
				s.logger.DebugContext(ctx, "speech stream text", "part", key, "text", chunk.Text)
			}
			continue
		}

		media, data := chunk.MimeType, chunk.Data
		if _, ok := ExtensionForMime(media); !ok {
			data = PCMToWAV(data, media)
			media = "audio/wav"
		}
		s.logger.InfoContext(ctx, "speech synthesized",
			"part", key,
			"source_mime", chunk.MimeType,
			"bytes", len(data),
			"duration_ms", time.Since(start).Milliseconds())
		return &Artifact{Key: key, MediaType: media, Data: data}, nil
	}
}
