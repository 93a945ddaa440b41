package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// PadSymbol is the Piper padding phoneme; unknown phonemes map to its ID.
const PadSymbol = "_"

// PiperConfig is the subset of a Piper voice's .onnx.json this package reads.
type PiperConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	Espeak struct {
		Voice string `json:"voice"`
	} `json:"espeak"`
	Inference struct {
		NoiseScale  float32 `json:"noise_scale"`
		LengthScale float32 `json:"length_scale"`
		NoiseW      float32 `json:"noise_w"`
	} `json:"inference"`
	PhonemeIDMap map[string][]int64 `json:"phoneme_id_map"`
}

// LoadPiperConfig reads and validates a Piper voice config file.
func LoadPiperConfig(path string) (PiperConfig, error) {
	if path == "" {
		return PiperConfig{}, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PiperConfig{}, fmt.Errorf("read voice config: %w", err)
	}

	return ParsePiperConfig(data)
}

func ParsePiperConfig(data []byte) (PiperConfig, error) {
	var cfg PiperConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return PiperConfig{}, fmt.Errorf("decode voice config: %w", err)
	}

	if len(cfg.PhonemeIDMap) == 0 {
		return PiperConfig{}, errors.New("voice config has empty phoneme_id_map")
	}

	if cfg.Audio.SampleRate <= 0 {
		return PiperConfig{}, fmt.Errorf("voice config has invalid sample rate %d", cfg.Audio.SampleRate)
	}

	return cfg, nil
}

// Scales returns the vocoder scales tensor payload in graph order.
func (c PiperConfig) Scales() [3]float32 {
	return [3]float32{c.Inference.NoiseScale, c.Inference.LengthScale, c.Inference.NoiseW}
}

// PhonemeTokenizer maps each phoneme character to exactly one ID.
type PhonemeTokenizer struct {
	ids   map[rune]int64
	padID int64
}

func NewPhonemeTokenizer(phonemeIDMap map[string][]int64) (*PhonemeTokenizer, error) {
	t := &PhonemeTokenizer{ids: make(map[rune]int64, len(phonemeIDMap))}

	for sym, ids := range phonemeIDMap {
		runes := []rune(sym)
		if len(runes) != 1 {
			return nil, fmt.Errorf("phoneme %q is not a single character", sym)
		}

		if len(ids) == 0 {
			return nil, fmt.Errorf("phoneme %q has no id", sym)
		}

		t.ids[runes[0]] = ids[0]
	}

	if pad, ok := phonemeIDMap[PadSymbol]; ok {
		t.padID = pad[0]
	}

	return t, nil
}

// Encode returns one ID per rune of the trimmed phoneme string, so
// len(Encode(s)) always equals the rune count fed to the vocoder.
func (t *PhonemeTokenizer) Encode(phonemes string) []int64 {
	phonemes = strings.TrimSpace(phonemes)

	out := make([]int64, 0, len(phonemes))
	for _, r := range phonemes {
		id, ok := t.ids[r]
		if !ok {
			id = t.padID
		}

		out = append(out, id)
	}

	return out
}
