package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/apresai/newsletter-podcaster/internal/gemini"
)

const GeminiDefaultModel = "gemini-2.5-flash-preview-tts"

// GeminiStreamer streams multi-speaker speech from Gemini, over AI Studio or
// Vertex depending on the client's backend.
type GeminiStreamer struct {
	client *gemini.Client
}

func NewGeminiStreamer(client *gemini.Client) *GeminiStreamer {
	return &GeminiStreamer{client: client}
}

func (g *GeminiStreamer) StreamSpeech(ctx context.Context, req SpeechRequest) (ChunkStream, error) {
	model := req.Model
	if model == "" {
		model = GeminiDefaultModel
	}

	prompt := req.Script
	if req.Instruction != "" {
		prompt = req.Instruction + "\n\n" + req.Script
	}
	body := gemini.Request{
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{{Text: prompt}}}},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:        gemini.Float(req.Temperature),
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speechConfig(req.Voices),
		},
	}

	st, err := g.client.StreamContent(ctx, model, body)
	if err != nil {
		return nil, err
	}
	return &geminiChunkStream{st: st}, nil
}

// speechConfig uses a single voice for one speaker; Gemini's multi-speaker
// mode requires two.
func speechConfig(voices []SpeakerVoice) *gemini.SpeechConfig {
	if len(voices) == 1 {
		return &gemini.SpeechConfig{VoiceConfig: &gemini.VoiceConfig{
			PrebuiltVoiceConfig: gemini.PrebuiltVoice{VoiceName: voices[0].Voice},
		}}
	}
	cfgs := make([]gemini.SpeakerVoiceConfig, len(voices))
	for i, v := range voices {
		cfgs[i] = gemini.SpeakerVoiceConfig{
			Speaker:     v.Speaker,
			VoiceConfig: gemini.VoiceConfig{PrebuiltVoiceConfig: gemini.PrebuiltVoice{VoiceName: v.Voice}},
		}
	}
	return &gemini.SpeechConfig{MultiSpeakerVoiceConfig: &gemini.MultiSpeakerVoiceConfig{SpeakerVoiceConfigs: cfgs}}
}

type geminiChunkStream struct {
	st *gemini.Stream
}

func (s *geminiChunkStream) Next(ctx context.Context) (StreamChunk, error) {
	resp, err := s.st.Next(ctx)
	if err != nil {
		return StreamChunk{}, err
	}
	part, ok := resp.FirstPart()
	if !ok {
		return StreamChunk{}, nil
	}
	if part.InlineData == nil {
		return StreamChunk{Text: part.Text}, nil
	}
	data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
	if err != nil {
		return StreamChunk{}, fmt.Errorf("decode audio base64: %w", err)
	}
	return StreamChunk{MimeType: part.InlineData.MimeType, Data: data}, nil
}

func (s *geminiChunkStream) Close() error { return s.st.Close() }
