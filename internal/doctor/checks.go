package doctor

import (
	"fmt"

	"github.com/example/go-speechkit/internal/asr"
	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/phonemize"
	"github.com/example/go-speechkit/internal/tokenizer"
	"github.com/example/go-speechkit/internal/tts"
)

// FromConfig assembles the standard checks for cfg: runtime libraries, CPU
// features, every voice model and its config, and the recognition model set.
func FromConfig(cfg config.Config) Config {
	dc := Config{
		ORTRuntime: func() (string, error) {
			info, err := onnx.DetectRuntime(cfg.Runtime)
			if err != nil {
				return "", err
			}

			return fmt.Sprintf("%s (%s)", info.Version, info.LibraryPath), nil
		},
		EspeakLibrary: func() (string, error) {
			return phonemize.DetectLibrary(cfg.Paths.EspeakLibrary)
		},
		CPUFeatures: CPUFeatures,
	}

	if cfg.Paths.VoicesManifest != "" {
		dc.ModelFiles = append(dc.ModelFiles, voiceModels(cfg.Paths.VoicesManifest)...)
		dc.Checks = append(dc.Checks, Check{Name: "voices manifest", Run: func() (string, error) {
			return checkVoices(cfg.Paths.VoicesManifest)
		}})
	} else {
		dc.SkipEspeak = true
	}

	if cfg.Paths.ASRManifest != "" {
		if m, err := onnx.LoadManifest(cfg.Paths.ASRManifest); err == nil {
			for _, g := range m.Graphs() {
				dc.ModelFiles = append(dc.ModelFiles, g.Path)
			}
		}

		dc.ModelFiles = append(dc.ModelFiles, cfg.Paths.VocabPath)
		dc.Checks = append(dc.Checks,
			Check{Name: "asr manifest", Run: func() (string, error) {
				m, err := onnx.LoadManifest(cfg.Paths.ASRManifest)
				if err != nil {
					return "", err
				}

				if err := m.Require(asr.GraphSpectrogram, asr.GraphEncoder, asr.GraphDecoder1, asr.GraphDecoder2); err != nil {
					return "", err
				}

				return fmt.Sprintf("%d graphs", len(m.Graphs())), nil
			}},
			Check{Name: "asr vocabulary", Run: func() (string, error) {
				v, err := tokenizer.LoadWhisperVocab(cfg.Paths.VocabPath)
				if err != nil {
					return "", err
				}

				return fmt.Sprintf("%d tokens", v.Size()), nil
			}},
		)
	}

	return dc
}

// voiceModels lists each voice's model and config file. An unreadable
// manifest yields nothing; checkVoices reports it.
func voiceModels(manifest string) []string {
	vm, err := tts.NewVoiceManager(manifest)
	if err != nil {
		return nil
	}

	var files []string
	for _, v := range vm.ListVoices() {
		if p, err := vm.ResolvePath(v.ID); err == nil {
			files = append(files, p)
		}

		if p, err := vm.ResolveConfig(v.ID); err == nil {
			files = append(files, p)
		}
	}

	return files
}

// checkVoices loads every voice profile in manifest.
func checkVoices(manifest string) (string, error) {
	vm, err := tts.NewVoiceManager(manifest)
	if err != nil {
		return "", err
	}

	voices := vm.ListVoices()
	if len(voices) == 0 {
		return "", fmt.Errorf("no voices in %s", manifest)
	}

	for _, v := range voices {
		if _, err := vm.LoadProfile(v.ID); err != nil {
			return "", fmt.Errorf("voice %q: %w", v.ID, err)
		}
	}

	return fmt.Sprintf("%d voices", len(voices)), nil
}
