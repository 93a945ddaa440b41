// Package phonemize converts text to IPA phoneme strings through espeak-ng.
package phonemize

import (
	"errors"
	"os"
	"runtime"
	"unsafe"
)

var (
	// ErrNoPhonemes is returned when the engine produced nothing for a text.
	ErrNoPhonemes = errors.New("phonemizer returned no phonemes")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("phonemizer closed")
)

// Phonemizer turns text into an IPA phoneme string for the named voice.
type Phonemizer interface {
	Phonemize(voice, text string) (string, error)
}

// Options configure the espeak-ng binding.
type Options struct {
	LibraryPath string // empty searches common install locations
	DataPath    string // empty uses the library's compiled-in data dir
}

const (
	audioOutputSynchronous = 2
	charsAuto              = 0
	phonemesIPA            = 0x02
	eeOK                   = 0
)

// DetectLibrary returns the first espeak-ng library found, preferring
// explicit and env-provided paths.
func DetectLibrary(explicit string) (string, error) {
	for _, p := range []string{explicit, os.Getenv("SPEECHKIT_ESPEAK_LIB"), os.Getenv("ESPEAK_NG_LIBRARY")} {
		if p != "" {
			if _, err := os.Stat(p); err != nil {
				return p, err
			}
			return p, nil
		}
	}

	for _, p := range libraryCandidates() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", errors.New("unable to detect espeak-ng library path")
}

func libraryCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/opt/homebrew/lib/libespeak-ng.dylib",
			"/usr/local/lib/libespeak-ng.dylib",
		}
	case "windows":
		return []string{"C:/Program Files/eSpeak NG/libespeak-ng.dll"}
	default:
		return []string{
			"/usr/lib/x86_64-linux-gnu/libespeak-ng.so.1",
			"/usr/lib/aarch64-linux-gnu/libespeak-ng.so.1",
			"/usr/lib/libespeak-ng.so.1",
			"/usr/local/lib/libespeak-ng.so",
		}
	}
}

// textToPhonemesFunc mirrors espeak_TextToPhonemes. The engine advances *text
// clause by clause and sets it to nil after the last clause.
type textToPhonemesFunc func(text **byte, textMode, phonemeMode int32) *byte

// clausePhonemes drives fn over a NUL-terminated copy of text and joins the
// per-clause results with a space. The buffer is pinned for the whole walk
// and unpinned on every return path.
func clausePhonemes(fn textToPhonemesFunc, text string) (string, error) {
	buf := append([]byte(text), 0)

	var pinner runtime.Pinner
	defer pinner.Unpin()

	cursor := new(*byte)
	*cursor = &buf[0]
	pinner.Pin(&buf[0])
	pinner.Pin(cursor)

	var out []byte
	// Each call consumes at least one clause, so the loop is bounded by
	// the buffer length.
	for i := 0; i < len(buf) && *cursor != nil; i++ {
		res := fn(cursor, charsAuto, phonemesIPA)
		if res == nil {
			break
		}

		clause := goString(res)
		if clause == "" {
			continue
		}

		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, clause...)
	}

	if len(out) == 0 {
		return "", ErrNoPhonemes
	}

	return string(out), nil
}

// goString copies a NUL-terminated C string.
func goString(p *byte) string {
	if p == nil {
		return ""
	}

	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}

	return string(unsafe.Slice(p, n))
}
