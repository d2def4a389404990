package tts

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

const cloudSampleRate = 24000

// speechClient is the slice of the Cloud TTS client used here.
type speechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type cloudClient struct{ c *texttospeech.Client }

func (c cloudClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.c.SynthesizeSpeech(ctx, req)
}

func (c cloudClient) Close() error { return c.c.Close() }

// CloudStreamer voices a dialogue with Google Cloud Text-to-Speech (Chirp 3
// HD), one request per speaker turn, and returns the turns joined as one
// linear PCM payload.
type CloudStreamer struct {
	client       speechClient
	languageCode string
}

func NewCloudStreamer(ctx context.Context, languageCode string) (*CloudStreamer, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create Google TTS client: %w", err)
	}
	return &CloudStreamer{client: cloudClient{client}, languageCode: languageCode}, nil
}

func (p *CloudStreamer) StreamSpeech(ctx context.Context, req SpeechRequest) (ChunkStream, error) {
	names := make([]string, len(req.Voices))
	voices := make(map[string]string, len(req.Voices))
	for i, v := range req.Voices {
		names[i] = v.Speaker
		voices[v.Speaker] = p.voiceName(v.Voice)
	}

	var pcm []byte
	for _, turn := range ParseTurns(req.Script, names) {
		voice, ok := voices[turn.Speaker]
		if !ok && len(req.Voices) > 0 {
			voice = p.voiceName(req.Voices[0].Voice)
		}
		resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: turn.Text},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: p.languageCode,
				Name:         voice,
			},
			AudioConfig: &texttospeechpb.AudioConfig{
				AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
				SampleRateHertz: cloudSampleRate,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("Google TTS synthesize (%s): %w", turn.Speaker, err)
		}
		samples, _, err := wavToPCM(resp.AudioContent)
		if err != nil {
			return nil, fmt.Errorf("Google TTS audio (%s): %w", turn.Speaker, err)
		}
		pcm = append(pcm, samples...)
	}

	if len(pcm) == 0 {
		return &sliceStream{}, nil
	}
	return &sliceStream{chunks: []StreamChunk{{
		MimeType: fmt.Sprintf("audio/L16;rate=%d", cloudSampleRate),
		Data:     pcm,
	}}}, nil
}

// voiceName expands a short Chirp 3 HD name like "Zephyr" to its full id.
func (p *CloudStreamer) voiceName(v string) string {
	if strings.Contains(v, "-") {
		return v
	}
	return p.languageCode + "-Chirp3-HD-" + v
}

func (p *CloudStreamer) Close() error { return p.client.Close() }

// Turn is one speaker's line of dialogue.
type Turn struct {
	Speaker string
	Text    string
}

var pauseRe = regexp.MustCompile(`\[pause [0-9.]+sec\]`)

// ParseTurns reads "Name: text" lines. Lines without a known speaker prefix
// continue the previous turn. Pause markers are dropped.
func ParseTurns(script string, speakers []string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(pauseRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		speaker, text := splitSpeaker(line, speakers)
		switch {
		case speaker != "":
			if text != "" {
				turns = append(turns, Turn{Speaker: speaker, Text: text})
			}
		case len(turns) > 0:
			turns[len(turns)-1].Text += " " + line
		case len(speakers) > 0:
			turns = append(turns, Turn{Speaker: speakers[0], Text: line})
		}
	}
	return turns
}

func splitSpeaker(line string, speakers []string) (string, string) {
	for _, sp := range speakers {
		for _, sep := range []string{":", "："} {
			if rest, ok := strings.CutPrefix(line, sp+sep); ok {
				return sp, strings.TrimSpace(rest)
			}
		}
	}
	return "", line
}
