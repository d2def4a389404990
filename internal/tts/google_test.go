package tts

import (
	"context"
	"io"
	"testing"

	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

func TestParseTurns(t *testing.T) {
	script := "Minami: Hello there. [pause 0.5sec]\nand welcome.\n\nNakajima：Thanks!\nNakajima:\n[pause 2sec]\n"
	got := ParseTurns(script, []string{"Minami", "Nakajima"})
	want := []Turn{
		{"Minami", "Hello there. and welcome."},
		{"Nakajima", "Thanks!"},
	}
	if len(got) != len(want) {
		t.Fatalf("turns = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

type fakeSpeechClient struct {
	voices []string
}

func (f *fakeSpeechClient) SynthesizeSpeech(_ context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.voices = append(f.voices, req.Voice.Name)
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: PCMToWAV([]byte{1, 0}, "audio/L16;rate=24000")}, nil
}

func (f *fakeSpeechClient) Close() error { return nil }

func TestCloudStreamerJoinsTurns(t *testing.T) {
	fc := &fakeSpeechClient{}
	s := &CloudStreamer{client: fc, languageCode: "ja-JP"}
	stream, err := s.StreamSpeech(context.Background(), SpeechRequest{
		Script: "Minami: a\nNakajima: b",
		Voices: []SpeakerVoice{{"Minami", "Zephyr"}, {"Nakajima", "ja-JP-Neural2-C"}},
	})
	if err != nil {
		t.Fatalf("StreamSpeech: %v", err)
	}
	chunk, err := stream.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if chunk.MimeType != "audio/L16;rate=24000" || len(chunk.Data) != 4 {
		t.Errorf("chunk = %q %d bytes", chunk.MimeType, len(chunk.Data))
	}
	if _, err := stream.Next(context.Background()); err != io.EOF {
		t.Errorf("second Next = %v, want io.EOF", err)
	}
	if len(fc.voices) != 2 || fc.voices[0] != "ja-JP-Chirp3-HD-Zephyr" || fc.voices[1] != "ja-JP-Neural2-C" {
		t.Errorf("voices = %v", fc.voices)
	}
}
