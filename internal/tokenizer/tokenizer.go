// Package tokenizer maps between text-side symbols and model token IDs.
//
// Two vocabularies live here: the Piper phoneme map that turns IPA phoneme
// characters into vocoder input IDs, and the Whisper byte-level vocabulary
// that turns decoder output IDs back into UTF-8 text.
package tokenizer

import "errors"

// ErrEmptyPath is returned when a loader is called with an empty path.
var ErrEmptyPath = errors.New("tokenizer path must not be empty")

// ErrUnknownToken is returned when decoding an ID outside the vocabulary.
var ErrUnknownToken = errors.New("token id outside vocabulary")

// Encoder turns a symbol string into model token IDs.
type Encoder interface {
	Encode(text string) []int64
}

// Decoder turns one model token ID into its text fragment.
type Decoder interface {
	Decode(id int64) (string, error)
	Size() int
}
