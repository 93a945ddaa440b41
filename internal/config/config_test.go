package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	return &fakeBinder{fs: fs}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.VoicesManifest != "models/piper/voices.json" {
		t.Errorf("VoicesManifest = %q; want %q", cfg.Paths.VoicesManifest, "models/piper/voices.json")
	}

	if cfg.Paths.ASRManifest != "models/whisper/manifest.json" {
		t.Errorf("ASRManifest = %q; want %q", cfg.Paths.ASRManifest, "models/whisper/manifest.json")
	}

	if cfg.Runtime.ORTAPIVersion != 23 {
		t.Errorf("Runtime.ORTAPIVersion = %d; want 23", cfg.Runtime.ORTAPIVersion)
	}

	if cfg.TTS.CommaDelay != 0.1 || cfg.TTS.PeriodDelay != 0.5 || cfg.TTS.QuestionDelay != 0.6 {
		t.Errorf("TTS delays = %v/%v/%v; want 0.1/0.5/0.6",
			cfg.TTS.CommaDelay, cfg.TTS.PeriodDelay, cfg.TTS.QuestionDelay)
	}

	if cfg.TTS.WarmupText != "hello" {
		t.Errorf("TTS.WarmupText = %q; want %q", cfg.TTS.WarmupText, "hello")
	}

	if cfg.ASR.MaxTokens != 100 {
		t.Errorf("ASR.MaxTokens = %d; want 100", cfg.ASR.MaxTokens)
	}

	if cfg.Mic.SampleRate != 16000 {
		t.Errorf("Mic.SampleRate = %d; want 16000", cfg.Mic.SampleRate)
	}

	if cfg.Server.Workers != 2 {
		t.Errorf("Server.Workers = %d; want 2", cfg.Server.Workers)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v; want nil", err)
	}
}

// --- Normalizers ---

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"english", "english", LanguageEnglish, false},
		{"english code", "en", LanguageEnglish, false},
		{"german mixed case", "German", LanguageGerman, false},
		{"french code with spaces", "  fr ", LanguageFrench, false},
		{"empty defaults to english", "", LanguageEnglish, false},
		{"unsupported", "spanish", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLanguage(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeLanguage(%q) = %q, nil; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Errorf("NormalizeLanguage(%q) unexpected error: %v", tt.input, err)
				return
			}

			if got != tt.want {
				t.Errorf("NormalizeLanguage(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeTask(t *testing.T) {
	if got, err := NormalizeTask("TRANSLATE"); err != nil || got != TaskTranslate {
		t.Errorf("NormalizeTask(TRANSLATE) = %q, %v; want %q", got, err, TaskTranslate)
	}

	if got, err := NormalizeTask(""); err != nil || got != TaskTranscribe {
		t.Errorf("NormalizeTask(\"\") = %q, %v; want %q", got, err, TaskTranscribe)
	}

	if _, err := NormalizeTask("summarize"); err == nil {
		t.Error("NormalizeTask(summarize) = nil error; want error")
	}
}

func TestNormalizeLogFormat(t *testing.T) {
	if got, err := NormalizeLogFormat(" JSON "); err != nil || got != LogFormatJSON {
		t.Errorf("NormalizeLogFormat(JSON) = %q, %v; want %q", got, err, LogFormatJSON)
	}

	if _, err := NormalizeLogFormat("xml"); err == nil {
		t.Error("NormalizeLogFormat(xml) = nil error; want error")
	}
}

// --- Validate ---

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"small token buffer", func(c *Config) { c.ASR.MaxTokens = 4 }},
		{"negative delay", func(c *Config) { c.TTS.PeriodDelay = -1 }},
		{"bad language", func(c *Config) { c.TTS.Language = "klingon" }},
		{"bad task", func(c *Config) { c.ASR.Task = "x" }},
		{"zero mic rate", func(c *Config) { c.Mic.SampleRate = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil; want error")
			}
		})
	}
}

func TestPollInterval(t *testing.T) {
	if got := (TTSConfig{PollIntervalMS: 0}).PollInterval(); got <= 0 {
		t.Errorf("PollInterval(0) = %v; want > 0", got)
	}

	if got := (TTSConfig{PollIntervalMS: 25}).PollInterval().Milliseconds(); got != 25 {
		t.Errorf("PollInterval(25) = %dms; want 25ms", got)
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	checks := []struct {
		flag string
		want string
	}{
		{"paths-voices-manifest", "models/piper/voices.json"},
		{"paths-vocab-path", "models/whisper/vocab.json"},
		{"server-listen-addr", ":8080"},
		{"tts-language", "english"},
		{"asr-max-tokens", "100"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()
	binder := newFlagBinder(defaults)

	cfg, err := Load(LoadOptions{
		Cmd:      binder,
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.VoicesManifest != defaults.Paths.VoicesManifest {
		t.Errorf("VoicesManifest = %q; want %q", cfg.Paths.VoicesManifest, defaults.Paths.VoicesManifest)
	}

	if cfg.ASR.MaxTokens != defaults.ASR.MaxTokens {
		t.Errorf("ASR.MaxTokens = %d; want %d", cfg.ASR.MaxTokens, defaults.ASR.MaxTokens)
	}

	if cfg.LogLevel != defaults.LogLevel {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, defaults.LogLevel)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	err := fs.Parse([]string{
		"--tts-language=de",
		"--server-workers=8",
		"--asr-max-tokens=64",
		"--log-level=debug",
	})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg, err := Load(LoadOptions{
		Cmd:      &fakeBinder{fs: fs},
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TTS.Language != LanguageGerman {
		t.Errorf("TTS.Language = %q; want %q", cfg.TTS.Language, LanguageGerman)
	}

	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers = %d; want 8", cfg.Server.Workers)
	}

	if cfg.ASR.MaxTokens != 64 {
		t.Errorf("ASR.MaxTokens = %d; want 64", cfg.ASR.MaxTokens)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_InvalidFlagValueRejected(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse([]string{"--asr-task=summarize"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	_, err := Load(LoadOptions{Cmd: &fakeBinder{fs: fs}, Defaults: defaults})
	if err == nil {
		t.Error("Load() = nil; want error for invalid task")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SPEECHKIT_LOG_LEVEL", "warn")
	t.Setenv("SPEECHKIT_SERVER_LISTEN_ADDR", ":9999")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}
}

func TestLoad_ORTLibraryEnv(t *testing.T) {
	t.Setenv("SPEECHKIT_ORT_LIB", "/opt/ort/libonnxruntime.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Errorf("ORTLibraryPath = %q; want env value", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoad_ConfigFileExists_NoError(t *testing.T) {
	dir := t.TempDir()

	cfgFile := filepath.Join(dir, "speechkit.yaml")

	err := os.WriteFile(cfgFile, []byte("log_level: warn\n"), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")

	err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/speechkit.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}
