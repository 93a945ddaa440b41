package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig   `mapstructure:"paths"`
	Runtime   RuntimeConfig `mapstructure:"runtime"`
	Server    ServerConfig  `mapstructure:"server"`
	TTS       TTSConfig     `mapstructure:"tts"`
	ASR       ASRConfig     `mapstructure:"asr"`
	Mic       MicConfig     `mapstructure:"mic"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
}

type PathsConfig struct {
	VoicesManifest string `mapstructure:"voices_manifest"`
	ASRManifest    string `mapstructure:"asr_manifest"`
	VocabPath      string `mapstructure:"vocab_path"`
	EspeakLibrary  string `mapstructure:"espeak_library"`
	EspeakData     string `mapstructure:"espeak_data"`
}

type RuntimeConfig struct {
	Threads        int    `mapstructure:"threads"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  uint32 `mapstructure:"ort_api_version"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	MaxAudioBytes   int64  `mapstructure:"max_audio_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// TTSConfig delays are in seconds.
type TTSConfig struct {
	Voice          string  `mapstructure:"voice"`
	Language       string  `mapstructure:"language"`
	CommaDelay     float64 `mapstructure:"comma_delay"`
	PeriodDelay    float64 `mapstructure:"period_delay"`
	QuestionDelay  float64 `mapstructure:"question_delay"`
	WarmupText     string  `mapstructure:"warmup_text"`
	PollIntervalMS int     `mapstructure:"poll_interval_ms"`
}

type ASRConfig struct {
	Language  string `mapstructure:"language"`
	Task      string `mapstructure:"task"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type MicConfig struct {
	Device     string  `mapstructure:"device"`
	Seconds    float64 `mapstructure:"seconds"`
	SampleRate int     `mapstructure:"sample_rate"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			VoicesManifest: "models/piper/voices.json",
			ASRManifest:    "models/whisper/manifest.json",
			VocabPath:      "models/whisper/vocab.json",
			EspeakLibrary:  "",
			EspeakData:     "",
		},
		Runtime: RuntimeConfig{
			Threads:        4,
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxTextBytes:    4096,
			MaxAudioBytes:   16 << 20,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		TTS: TTSConfig{
			Voice:          "",
			Language:       LanguageEnglish,
			CommaDelay:     0.1,
			PeriodDelay:    0.5,
			QuestionDelay:  0.6,
			WarmupText:     "hello",
			PollIntervalMS: 20,
		},
		ASR: ASRConfig{
			Language:  LanguageEnglish,
			Task:      TaskTranscribe,
			MaxTokens: 100,
		},
		Mic: MicConfig{
			Device:     "",
			Seconds:    5,
			SampleRate: 16000,
		},
		LogLevel:  "info",
		LogFormat: LogFormatText,
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-voices-manifest", defaults.Paths.VoicesManifest, "Path to the Piper voices manifest")
	fs.String("paths-asr-manifest", defaults.Paths.ASRManifest, "Path to the Whisper graph manifest")
	fs.String("paths-vocab-path", defaults.Paths.VocabPath, "Path to the Whisper vocabulary JSON")
	fs.String("paths-espeak-library", defaults.Paths.EspeakLibrary, "Path to the espeak-ng shared library")
	fs.String("paths-espeak-data", defaults.Paths.EspeakData, "Path to the espeak-ng data directory")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "ONNX Runtime intra-op thread count")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Uint32("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent inference requests")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Max text size accepted by /tts")
	fs.Int64("server-max-audio-bytes", defaults.Server.MaxAudioBytes, "Max WAV body size accepted by /transcribe")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("tts-voice", defaults.TTS.Voice, "Voice id from the voices manifest (empty selects by language)")
	fs.String("tts-language", defaults.TTS.Language, "Speech language (english|german|french)")
	fs.Float64("tts-comma-delay", defaults.TTS.CommaDelay, "Pause after , ; : in seconds")
	fs.Float64("tts-period-delay", defaults.TTS.PeriodDelay, "Pause after . in seconds")
	fs.Float64("tts-question-delay", defaults.TTS.QuestionDelay, "Pause after ? ! in seconds")
	fs.String("tts-warmup-text", defaults.TTS.WarmupText, "Text synthesized once at startup (empty disables warm-up)")
	fs.Int("tts-poll-interval-ms", defaults.TTS.PollIntervalMS, "Playback polling interval in milliseconds")
	fs.String("asr-language", defaults.ASR.Language, "Recognition language (english|german|french)")
	fs.String("asr-task", defaults.ASR.Task, "Recognition task (transcribe|translate)")
	fs.Int("asr-max-tokens", defaults.ASR.MaxTokens, "Token buffer capacity per recognition session")
	fs.String("mic-device", defaults.Mic.Device, "Capture device name (empty uses the default input)")
	fs.Float64("mic-seconds", defaults.Mic.Seconds, "Recording length in seconds")
	fs.Int("mic-sample-rate", defaults.Mic.SampleRate, "Capture sample rate")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.LogFormat, "Log format (text|json)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("SPEECHKIT")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "SPEECHKIT_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	if err := v.BindEnv("paths.espeak_library", "SPEECHKIT_ESPEAK_LIB", "ESPEAK_NG_LIBRARY"); err != nil {
		return Config{}, fmt.Errorf("bind espeak env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("speechkit")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate normalizes enum-like fields in place and rejects values the
// pipelines cannot run with.
func (c *Config) Validate() error {
	var err error

	if c.TTS.Language, err = NormalizeLanguage(c.TTS.Language); err != nil {
		return fmt.Errorf("tts.language: %w", err)
	}
	if c.ASR.Language, err = NormalizeLanguage(c.ASR.Language); err != nil {
		return fmt.Errorf("asr.language: %w", err)
	}
	if c.ASR.Task, err = NormalizeTask(c.ASR.Task); err != nil {
		return fmt.Errorf("asr.task: %w", err)
	}
	if c.LogFormat, err = NormalizeLogFormat(c.LogFormat); err != nil {
		return fmt.Errorf("log_format: %w", err)
	}

	if c.ASR.MaxTokens < 5 {
		return fmt.Errorf("asr.max_tokens must be >= 5, got %d", c.ASR.MaxTokens)
	}
	if c.TTS.CommaDelay < 0 || c.TTS.PeriodDelay < 0 || c.TTS.QuestionDelay < 0 {
		return fmt.Errorf("tts delays must be >= 0")
	}
	if c.Mic.SampleRate < 1 {
		return fmt.Errorf("mic.sample_rate must be >= 1, got %d", c.Mic.SampleRate)
	}

	return nil
}

// PollInterval returns the playback polling interval, never below 1ms.
func (t TTSConfig) PollInterval() time.Duration {
	if t.PollIntervalMS < 1 {
		return time.Millisecond
	}

	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.voices_manifest", c.Paths.VoicesManifest)
	v.SetDefault("paths.asr_manifest", c.Paths.ASRManifest)
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("paths.espeak_library", c.Paths.EspeakLibrary)
	v.SetDefault("paths.espeak_data", c.Paths.EspeakData)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.max_audio_bytes", c.Server.MaxAudioBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.language", c.TTS.Language)
	v.SetDefault("tts.comma_delay", c.TTS.CommaDelay)
	v.SetDefault("tts.period_delay", c.TTS.PeriodDelay)
	v.SetDefault("tts.question_delay", c.TTS.QuestionDelay)
	v.SetDefault("tts.warmup_text", c.TTS.WarmupText)
	v.SetDefault("tts.poll_interval_ms", c.TTS.PollIntervalMS)
	v.SetDefault("asr.language", c.ASR.Language)
	v.SetDefault("asr.task", c.ASR.Task)
	v.SetDefault("asr.max_tokens", c.ASR.MaxTokens)
	v.SetDefault("mic.device", c.Mic.Device)
	v.SetDefault("mic.seconds", c.Mic.Seconds)
	v.SetDefault("mic.sample_rate", c.Mic.SampleRate)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.voices_manifest", "paths-voices-manifest")
	v.RegisterAlias("paths.asr_manifest", "paths-asr-manifest")
	v.RegisterAlias("paths.vocab_path", "paths-vocab-path")
	v.RegisterAlias("paths.espeak_library", "paths-espeak-library")
	v.RegisterAlias("paths.espeak_data", "paths-espeak-data")
	v.RegisterAlias("runtime.threads", "runtime-threads")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("runtime.ort_api_version", "runtime-ort-api-version")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.max_audio_bytes", "server-max-audio-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("tts.voice", "tts-voice")
	v.RegisterAlias("tts.language", "tts-language")
	v.RegisterAlias("tts.comma_delay", "tts-comma-delay")
	v.RegisterAlias("tts.period_delay", "tts-period-delay")
	v.RegisterAlias("tts.question_delay", "tts-question-delay")
	v.RegisterAlias("tts.warmup_text", "tts-warmup-text")
	v.RegisterAlias("tts.poll_interval_ms", "tts-poll-interval-ms")
	v.RegisterAlias("asr.language", "asr-language")
	v.RegisterAlias("asr.task", "asr-task")
	v.RegisterAlias("asr.max_tokens", "asr-max-tokens")
	v.RegisterAlias("mic.device", "mic-device")
	v.RegisterAlias("mic.seconds", "mic-seconds")
	v.RegisterAlias("mic.sample_rate", "mic-sample-rate")
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("log_format", "log-format")
}
