//go:build windows

package phonemize

import "fmt"

// Espeak is unavailable in windows builds.
type Espeak struct{}

func OpenEspeak(Options) (*Espeak, error) {
	return nil, fmt.Errorf("espeak-ng binding is unavailable on windows")
}

func (e *Espeak) SetVoice(string) error { return ErrClosed }

func (e *Espeak) Phonemize(string, string) (string, error) { return "", ErrClosed }

func (e *Espeak) Close() error { return nil }
