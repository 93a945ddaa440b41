package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Byte values the GPT-2/Whisper vocabulary already stores as themselves.
// Every other byte is shifted to 256+k, where k is its position among the
// remaining bytes in ascending order.
var printableRanges = [][2]int{
	{0x21, 0x7E}, // '!'..'~'
	{0xA1, 0xAC}, // inverted exclamation..not sign
	{0xAE, 0xFF}, // registered sign..y diaeresis
}

// shiftedBytes maps k to the byte stored at code point 256+k.
var shiftedBytes = buildShiftedBytes()

func buildShiftedBytes() [256]byte {
	var table [256]byte

	n := 0
	for b := 0; b < 256; b++ {
		if isPrintableByte(b) {
			continue
		}

		table[n] = byte(b)
		n++
	}

	return table
}

func isPrintableByte(b int) bool {
	for _, r := range printableRanges {
		if b >= r[0] && b <= r[1] {
			return true
		}
	}

	return false
}

// ShiftedByte exposes the remap table for inspection.
func ShiftedByte(k int) byte {
	return shiftedBytes[clamp(k, 0, 255)]
}

// WhisperVocab is the inverted token->index vocabulary of a Whisper model.
type WhisperVocab struct {
	tokens []string
}

// LoadWhisperVocab reads a JSON object mapping token strings to indices.
func LoadWhisperVocab(path string) (*WhisperVocab, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}

	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode vocab: %w", err)
	}

	return NewWhisperVocab(raw)
}

// NewWhisperVocab inverts raw; its indices must be exactly [0, len(raw)).
func NewWhisperVocab(raw map[string]int) (*WhisperVocab, error) {
	tokens := make([]string, len(raw))
	seen := make([]bool, len(raw))

	for tok, idx := range raw {
		if idx < 0 || idx >= len(raw) {
			return nil, fmt.Errorf("vocab index %d for %q outside [0, %d)", idx, tok, len(raw))
		}

		if seen[idx] {
			return nil, fmt.Errorf("vocab index %d assigned twice", idx)
		}

		seen[idx] = true
		tokens[idx] = tok
	}

	return &WhisperVocab{tokens: tokens}, nil
}

func (v *WhisperVocab) Size() int {
	return len(v.tokens)
}

// Token returns the raw vocabulary string for id.
func (v *WhisperVocab) Token(id int64) (string, bool) {
	if id < 0 || id >= int64(len(v.tokens)) {
		return "", false
	}

	return v.tokens[id], true
}

// Decode converts one token to text: shifted code points are mapped back to
// raw bytes, the characters are taken as Latin-1 bytes, and those bytes are
// read as UTF-8. Invalid sequences become U+FFFD.
func (v *WhisperVocab) Decode(id int64) (string, error) {
	tok, ok := v.Token(id)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownToken, id)
	}

	return DecodeToken(tok), nil
}

// DecodeToken applies the byte remap to a single vocabulary string.
func DecodeToken(tok string) string {
	encoder := charmap.ISO8859_1

	buf := make([]byte, 0, len(tok))
	for _, r := range tok {
		if r > 256 {
			r = rune(shiftedBytes[clamp(int(r)-256, 0, 255)])
		}

		b, ok := encoder.EncodeRune(r)
		if !ok {
			b = '?'
		}

		buf = append(buf, b)
	}

	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
