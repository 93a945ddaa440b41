package config

import (
	"fmt"
	"strings"
)

const (
	LanguageEnglish = "english"
	LanguageGerman  = "german"
	LanguageFrench  = "french"
)

const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NormalizeLanguage accepts full names and ISO 639-1 codes.
func NormalizeLanguage(raw string) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(raw))
	if lang == "" {
		lang = LanguageEnglish
	}
	switch lang {
	case LanguageEnglish, "en":
		return LanguageEnglish, nil
	case LanguageGerman, "de":
		return LanguageGerman, nil
	case LanguageFrench, "fr":
		return LanguageFrench, nil
	default:
		return "", fmt.Errorf(
			"invalid language %q (expected %s|%s|%s)",
			raw,
			LanguageEnglish,
			LanguageGerman,
			LanguageFrench,
		)
	}
}

func NormalizeTask(raw string) (string, error) {
	task := strings.ToLower(strings.TrimSpace(raw))
	if task == "" {
		task = TaskTranscribe
	}
	switch task {
	case TaskTranscribe, TaskTranslate:
		return task, nil
	default:
		return "", fmt.Errorf("invalid task %q (expected %s|%s)", raw, TaskTranscribe, TaskTranslate)
	}
}

func NormalizeLogFormat(raw string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = LogFormatText
	}
	switch format {
	case LogFormatText, LogFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected %s|%s)", raw, LogFormatText, LogFormatJSON)
	}
}
