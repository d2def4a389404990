package tts

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"mime"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

const (
	defaultBitsPerSample = 16
	defaultSampleRate    = 24000
)

// knownExtensions covers audio types providers actually return; the
// platform MIME table is consulted after it.
var knownExtensions = map[string]string{
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/ogg":   ".ogg",
	"audio/opus":  ".opus",
	"audio/flac":  ".flac",
	"audio/aac":   ".aac",
	"audio/mp4":   ".m4a",
	"audio/webm":  ".webm",
}

// ExtensionForMime resolves a media type to a file extension. Linear PCM
// types (audio/L16, audio/pcm) never resolve: they have no container.
func ExtensionForMime(mimeType string) (string, bool) {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if base == "" || strings.HasPrefix(base, "audio/l") || base == "audio/pcm" {
		return "", false
	}
	if ext, ok := knownExtensions[base]; ok {
		return ext, true
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0], true
	}
	return "", false
}

// AudioParams are the PCM parameters carried by a media type.
type AudioParams struct {
	BitsPerSample int
	Rate          int
}

// ParseAudioMimeType reads "audio/L<bits>;rate=<hz>", case-insensitively,
// defaulting to 16-bit 24 kHz for anything missing or unparsable. Bit depths
// that are not a positive multiple of 8 and non-positive rates fall back too.
func ParseAudioMimeType(mimeType string) AudioParams {
	p := AudioParams{BitsPerSample: defaultBitsPerSample, Rate: defaultSampleRate}
	for _, param := range strings.Split(mimeType, ";") {
		param = strings.ToLower(strings.TrimSpace(param))
		switch {
		case strings.HasPrefix(param, "rate="):
			if v, err := strconv.Atoi(param[len("rate="):]); err == nil && v > 0 {
				p.Rate = v
			}
		case strings.HasPrefix(param, "audio/l"):
			if v, err := strconv.Atoi(param[len("audio/l"):]); err == nil && v > 0 && v%8 == 0 {
				p.BitsPerSample = v
			}
		}
	}
	return p
}

// PCMToWAV prepends a 44-byte mono RIFF/WAVE header to raw little-endian PCM.
func PCMToWAV(pcm []byte, mimeType string) []byte {
	p := ParseAudioMimeType(mimeType)
	const channels = 1
	blockAlign := channels * (p.BitsPerSample / 8)
	byteRate := p.Rate * blockAlign
	dataSize := len(pcm)

	var buf bytes.Buffer
	buf.Grow(44 + dataSize)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(p.Rate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(p.BitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)
	return buf.Bytes()
}

// wavToPCM strips the container from 16-bit WAV data.
func wavToPCM(data []byte) (pcm []byte, rate int, err error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid WAV payload")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode WAV: %w", err)
	}
	if dec.BitDepth != 16 {
		return nil, 0, fmt.Errorf("unsupported WAV bit depth %d", dec.BitDepth)
	}
	out := make([]byte, 2*len(buf.Data))
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
	}
	return out, int(dec.SampleRate), nil
}
