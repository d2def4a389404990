package tts

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestPCMToWAVHeader(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	out := PCMToWAV(pcm, "audio/L16;rate=24000")

	if len(out) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(out), 44+len(pcm))
	}
	le := binary.LittleEndian
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"riff", string(out[0:4]), "RIFF"},
		{"riff size", le.Uint32(out[4:8]), uint32(36 + len(pcm))},
		{"wave", string(out[8:12]), "WAVE"},
		{"fmt", string(out[12:16]), "fmt "},
		{"fmt size", le.Uint32(out[16:20]), uint32(16)},
		{"format", le.Uint16(out[20:22]), uint16(1)},
		{"channels", le.Uint16(out[22:24]), uint16(1)},
		{"rate", le.Uint32(out[24:28]), uint32(24000)},
		{"byte rate", le.Uint32(out[28:32]), uint32(48000)},
		{"block align", le.Uint16(out[32:34]), uint16(2)},
		{"bits", le.Uint16(out[34:36]), uint16(16)},
		{"data", string(out[36:40]), "data"},
		{"data size", le.Uint32(out[40:44]), uint32(len(pcm))},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !bytes.Equal(out[44:], pcm) {
		t.Error("payload not copied verbatim")
	}
}

func TestPCMToWAVRoundTripsThroughDecoder(t *testing.T) {
	pcm := []byte{0x10, 0x00, 0xf0, 0xff, 0x00, 0x01}
	got, rate, err := wavToPCM(PCMToWAV(pcm, "audio/L16;rate=16000"))
	if err != nil {
		t.Fatalf("wavToPCM: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d", rate)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestParseAudioMimeType(t *testing.T) {
	tests := []struct {
		in   string
		want AudioParams
	}{
		{"audio/L16;rate=24000", AudioParams{16, 24000}},
		{"audio/L24; rate=48000", AudioParams{24, 48000}},
		{"audio/L8", AudioParams{8, 24000}},
		{"audio/pcm", AudioParams{16, 24000}},
		{"audio/L16;rate=fast", AudioParams{16, 24000}},
		{"", AudioParams{16, 24000}},
		{"audio/l24;RATE=44100", AudioParams{24, 44100}},
		{"AUDIO/L32", AudioParams{32, 24000}},
		{"audio/L4", AudioParams{16, 24000}},
		{"audio/L12", AudioParams{16, 24000}},
		{"audio/L-16", AudioParams{16, 24000}},
		{"audio/L0;rate=0", AudioParams{16, 24000}},
		{"audio/L16;rate=-8000", AudioParams{16, 24000}},
	}
	for _, tt := range tests {
		if got := ParseAudioMimeType(tt.in); got != tt.want {
			t.Errorf("ParseAudioMimeType(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestPCMToWAVLowercaseMime(t *testing.T) {
	h := PCMToWAV(make([]byte, 6), "audio/l24;rate=48000")
	if bits := binary.LittleEndian.Uint16(h[34:]); bits != 24 {
		t.Errorf("bits per sample = %d, want 24", bits)
	}
	if align := binary.LittleEndian.Uint16(h[32:]); align != 3 {
		t.Errorf("block align = %d, want 3", align)
	}
	if rate := binary.LittleEndian.Uint32(h[24:]); rate != 48000 {
		t.Errorf("sample rate = %d, want 48000", rate)
	}

	odd := PCMToWAV(make([]byte, 4), "audio/L4")
	if align := binary.LittleEndian.Uint16(odd[32:]); align != 2 {
		t.Errorf("block align for audio/L4 = %d, want default 2", align)
	}
}

func TestExtensionForMime(t *testing.T) {
	tests := []struct {
		in   string
		ext  string
		okay bool
	}{
		{"audio/wav", ".wav", true},
		{"audio/mpeg", ".mp3", true},
		{"audio/ogg; codecs=opus", ".ogg", true},
		{"audio/L16;rate=24000", "", false},
		{"audio/pcm", "", false},
		{"", "", false},
		{"application/x-nothing-known", "", false},
	}
	for _, tt := range tests {
		ext, ok := ExtensionForMime(tt.in)
		if ext != tt.ext || ok != tt.okay {
			t.Errorf("ExtensionForMime(%q) = (%q, %v), want (%q, %v)", tt.in, ext, ok, tt.ext, tt.okay)
		}
	}
}
