// Package asr runs Whisper-style recognition: log-mel spectrogram, encoder,
// then a greedy two-stage decoder loop over a key/value cache.
package asr

import (
	"fmt"

	"github.com/example/go-speechkit/internal/config"
)

// Special token IDs of the multilingual Whisper vocabulary.
const (
	TokenEOT          int64 = 50257
	TokenSOT          int64 = 50258
	TokenEnglish      int64 = 50259
	TokenGerman       int64 = 50261
	TokenFrench       int64 = 50265
	TokenTranslate    int64 = 50358
	TokenTranscribe   int64 = 50359
	TokenNoTimestamps int64 = 50363
	TokenStartTime    int64 = 50364
)

const (
	// SampleRate is the rate the spectrogram graph expects.
	SampleRate = 16000
	// MaxSamples is 30 s of audio, the encoder's fixed window.
	MaxSamples = 480000
	// LogitsWidth is the decoder vocabulary size including special tokens.
	LogitsWidth      = 51865
	DefaultMaxTokens = 100

	promptLength = 3
	minMaxTokens = promptLength + 2
)

// LanguageToken maps a configured language to its prompt token.
func LanguageToken(language string) (int64, error) {
	lang, err := config.NormalizeLanguage(language)
	if err != nil {
		return 0, err
	}

	switch lang {
	case config.LanguageGerman:
		return TokenGerman, nil
	case config.LanguageFrench:
		return TokenFrench, nil
	default:
		return TokenEnglish, nil
	}
}

// TaskToken maps a configured task to its prompt token.
func TaskToken(task string) (int64, error) {
	t, err := config.NormalizeTask(task)
	if err != nil {
		return 0, err
	}

	if t == config.TaskTranslate {
		return TokenTranslate, nil
	}

	return TokenTranscribe, nil
}

// Prompt returns the decoder prompt for language and task.
func Prompt(language, task string) ([promptLength]int64, error) {
	lang, err := LanguageToken(language)
	if err != nil {
		return [promptLength]int64{}, fmt.Errorf("prompt language: %w", err)
	}

	tsk, err := TaskToken(task)
	if err != nil {
		return [promptLength]int64{}, fmt.Errorf("prompt task: %w", err)
	}

	return [promptLength]int64{TokenSOT, lang, tsk}, nil
}
