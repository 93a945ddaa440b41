package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/tokenizer"
)

// Voice is one entry of the voices manifest. Config defaults to
// Path + ".json", the layout Piper voices ship with.
type Voice struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Config   string `json:"config,omitempty"`
	Language string `json:"language,omitempty"`
	License  string `json:"license"`
}

type voiceManifest struct {
	Voices []Voice `json:"voices"`
}

type VoiceManager struct {
	manifestPath string
	baseDir      string
	voices       []Voice
	byID         map[string]Voice
}

func NewVoiceManager(manifestPath string) (*VoiceManager, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var manifest voiceManifest

	err = json.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	mgr := &VoiceManager{
		manifestPath: manifestPath,
		baseDir:      filepath.Dir(manifestPath),
		voices:       make([]Voice, 0, len(manifest.Voices)),
		byID:         make(map[string]Voice, len(manifest.Voices)),
	}

	for _, v := range manifest.Voices {
		if v.ID == "" {
			return nil, errors.New("voice manifest contains empty id")
		}

		if v.Path == "" {
			return nil, fmt.Errorf("voice %q has empty path", v.ID)
		}

		if _, exists := mgr.byID[v.ID]; exists {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}

		if v.Language != "" {
			lang, err := config.NormalizeLanguage(v.Language)
			if err != nil {
				return nil, fmt.Errorf("voice %q: %w", v.ID, err)
			}

			v.Language = lang
		}

		mgr.voices = append(mgr.voices, v)
		mgr.byID[v.ID] = v
	}

	return mgr, nil
}

func (m *VoiceManager) ListVoices() []Voice {
	return append([]Voice(nil), m.voices...)
}

func (m *VoiceManager) Voice(id string) (Voice, bool) {
	v, ok := m.byID[id]
	return v, ok
}

// Select picks a voice: the explicit id when set, otherwise the first voice
// tagged with language, otherwise the first voice in the manifest.
func (m *VoiceManager) Select(id, language string) (Voice, error) {
	if id != "" {
		v, ok := m.byID[id]
		if !ok {
			return Voice{}, fmt.Errorf("unknown voice id %q", id)
		}

		return v, nil
	}

	if len(m.voices) == 0 {
		return Voice{}, errors.New("voice manifest lists no voices")
	}

	for _, v := range m.voices {
		if language != "" && v.Language == language {
			return v, nil
		}
	}

	return m.voices[0], nil
}

func (m *VoiceManager) ResolvePath(id string) (string, error) {
	v, ok := m.byID[id]
	if !ok {
		return "", fmt.Errorf("unknown voice id %q", id)
	}

	return m.resolve(id, v.Path)
}

// ResolveConfig returns the voice's Piper config path.
func (m *VoiceManager) ResolveConfig(id string) (string, error) {
	v, ok := m.byID[id]
	if !ok {
		return "", fmt.Errorf("unknown voice id %q", id)
	}

	cfg := v.Config
	if cfg == "" {
		cfg = v.Path + ".json"
	}

	return m.resolve(id, cfg)
}

// LoadProfile resolves and parses everything a synthesizer needs for id.
func (m *VoiceManager) LoadProfile(id string) (VoiceProfile, error) {
	modelPath, err := m.ResolvePath(id)
	if err != nil {
		return VoiceProfile{}, err
	}

	cfgPath, err := m.ResolveConfig(id)
	if err != nil {
		return VoiceProfile{}, err
	}

	piper, err := tokenizer.LoadPiperConfig(cfgPath)
	if err != nil {
		return VoiceProfile{}, fmt.Errorf("voice %q: %w", id, err)
	}

	v := m.byID[id]

	return NewVoiceProfile(v, modelPath, piper)
}

func (m *VoiceManager) resolve(id, p string) (string, error) {
	resolved := p
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(m.baseDir, resolved)
	}

	resolved = filepath.Clean(resolved)

	_, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("voice file for %q: %w", id, err)
	}

	return resolved, nil
}
