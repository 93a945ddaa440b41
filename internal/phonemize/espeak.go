//go:build !windows

package phonemize

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ebitengine/purego"
)

// Espeak is a process-wide espeak-ng binding. espeak-ng keeps global state,
// so calls are serialized and the active voice is switched lazily.
type Espeak struct {
	mu     sync.Mutex
	lib    uintptr
	voice  string
	closed bool

	initialize     func(output, bufLength int32, path *byte, options int32) int32
	setVoiceByName func(name string) int32
	textToPhonemes textToPhonemesFunc
	terminate      func() int32
}

// OpenEspeak loads the shared library and initializes the engine for
// phoneme-only use.
func OpenEspeak(opts Options) (*Espeak, error) {
	path, err := DetectLibrary(opts.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("espeak-ng library: %w", err)
	}

	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("open espeak-ng %s: %w", path, err)
	}

	e := &Espeak{lib: lib}
	purego.RegisterLibFunc(&e.initialize, lib, "espeak_Initialize")
	purego.RegisterLibFunc(&e.setVoiceByName, lib, "espeak_SetVoiceByName")
	purego.RegisterLibFunc(&e.textToPhonemes, lib, "espeak_TextToPhonemes")
	purego.RegisterLibFunc(&e.terminate, lib, "espeak_Terminate")

	var dataPath *byte
	if opts.DataPath != "" {
		b := append([]byte(opts.DataPath), 0)
		dataPath = &b[0]
	}

	if rate := e.initialize(audioOutputSynchronous, 0, dataPath, 0); rate <= 0 {
		_ = purego.Dlclose(lib)
		return nil, fmt.Errorf("espeak_Initialize failed (%d)", rate)
	}

	slog.Debug("espeak-ng initialized", "library", path, "data", opts.DataPath)

	return e, nil
}

// SetVoice selects an espeak voice such as "en-us" or "de".
func (e *Espeak) SetVoice(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.setVoiceLocked(name)
}

func (e *Espeak) setVoiceLocked(name string) error {
	if e.closed {
		return ErrClosed
	}

	if name == e.voice {
		return nil
	}

	if rc := e.setVoiceByName(name); rc != eeOK {
		return fmt.Errorf("espeak_SetVoiceByName(%q) failed (%d)", name, rc)
	}

	e.voice = name

	return nil
}

// Phonemize returns the IPA phonemes for text spoken by voice.
func (e *Espeak) Phonemize(voice, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoPhonemes
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.setVoiceLocked(voice); err != nil {
		return "", err
	}

	return clausePhonemes(e.textToPhonemes, text)
}

// Close terminates the engine and unloads the library. Safe to call
// multiple times.
func (e *Espeak) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	e.terminate()

	return purego.Dlclose(e.lib)
}
