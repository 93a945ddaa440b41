package text

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw input text for synthesis.
// It composes the text to NFC so phoneme lookup sees one code point per
// accented letter, normalizes line endings to \n, trims surrounding
// whitespace, and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	s = norm.NFC.String(s)

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}
