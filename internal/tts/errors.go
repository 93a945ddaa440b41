package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when speech is requested before a voice
	// and vocoder are loaded, or after initialization failed.
	ErrNotInitialized = errors.New("tts not initialized")
	// ErrPhonemize means the phonemizer produced nothing for a chunk.
	ErrPhonemize = errors.New("phonemization failed")
	// ErrEmptyWaveform means the vocoder returned no samples.
	ErrEmptyWaveform = errors.New("vocoder produced empty waveform")
)

// ChunkError reports a failed content segment. The scheduler logs it and
// moves on to the next segment.
type ChunkError struct {
	Index int
	Text  string
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d %q: %v", e.Index, e.Text, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
