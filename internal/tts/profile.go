package tts

import (
	"fmt"

	"github.com/example/go-speechkit/internal/tokenizer"
)

// VoiceProfile is the immutable per-voice state a synthesizer reads.
type VoiceProfile struct {
	ID          string
	Language    string
	ModelPath   string
	EspeakVoice string
	SampleRate  int
	Scales      [3]float32
	Tokenizer   tokenizer.Encoder
}

func NewVoiceProfile(v Voice, modelPath string, cfg tokenizer.PiperConfig) (VoiceProfile, error) {
	tok, err := tokenizer.NewPhonemeTokenizer(cfg.PhonemeIDMap)
	if err != nil {
		return VoiceProfile{}, fmt.Errorf("voice %q: %w", v.ID, err)
	}

	espeakVoice := cfg.Espeak.Voice
	if espeakVoice == "" {
		espeakVoice = "en-us"
	}

	return VoiceProfile{
		ID:          v.ID,
		Language:    v.Language,
		ModelPath:   modelPath,
		EspeakVoice: espeakVoice,
		SampleRate:  cfg.Audio.SampleRate,
		Scales:      cfg.Scales(),
		Tokenizer:   tok,
	}, nil
}
