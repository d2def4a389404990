package tts

import "fmt"

// VoiceInfo describes a prebuilt voice.
type VoiceInfo struct {
	ID          string
	Gender      string
	Description string
}

func geminiAvailableVoices() []VoiceInfo {
	return []VoiceInfo{
		{ID: "Zephyr", Gender: "female", Description: "Bright, breezy"},
		{ID: "Enceladus", Gender: "male", Description: "Breathy, calm"},
		{ID: "Kore", Gender: "female", Description: "Firm, confident"},
		{ID: "Charon", Gender: "male", Description: "Informative, clear narrator"},
		{ID: "Leda", Gender: "female", Description: "Youthful"},
		{ID: "Aoede", Gender: "female", Description: "Breezy, expressive"},
		{ID: "Puck", Gender: "male", Description: "Upbeat"},
		{ID: "Orus", Gender: "male", Description: "Firm"},
		{ID: "Fenrir", Gender: "male", Description: "Excitable"},
	}
}

// AvailableVoices returns the voice catalog for a speech provider.
func AvailableVoices(provider string) ([]VoiceInfo, error) {
	switch provider {
	case "gemini", "cloud":
		// Chirp 3 HD reuses the Gemini voice names.
		return geminiAvailableVoices(), nil
	default:
		return nil, fmt.Errorf("unknown speech provider %q: choose gemini or cloud", provider)
	}
}
