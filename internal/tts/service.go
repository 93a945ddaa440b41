package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/phonemize"
	"github.com/example/go-speechkit/internal/telemetry"
	"github.com/example/go-speechkit/internal/text"
)

type voiceSetter interface {
	SetVoice(name string) error
}

type ServiceOption func(*Service)

// WithPhonemizer injects a phonemizer instead of loading espeak-ng.
func WithPhonemizer(p phonemize.Phonemizer) ServiceOption {
	return func(s *Service) { s.phonemizer = p }
}

// WithOpenFunc injects the vocoder opener instead of bootstrapping ORT.
func WithOpenFunc(open onnx.OpenFunc) ServiceOption {
	return func(s *Service) { s.open = open }
}

func WithPlayer(p audio.Player) ServiceOption {
	return func(s *Service) { s.player = p }
}

func WithMetrics(m *telemetry.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithSchedulerOptions passes extra options to every scheduler the service
// creates.
func WithSchedulerOptions(opts ...SchedulerOption) ServiceOption {
	return func(s *Service) { s.schedOpts = append(s.schedOpts, opts...) }
}

// Service owns the loaded voices and the single active scheduler.
type Service struct {
	cfg        config.TTSConfig
	voices     *VoiceManager
	phonemizer phonemize.Phonemizer
	open       onnx.OpenFunc
	player     audio.Player
	metrics    *telemetry.Metrics
	schedOpts  []SchedulerOption

	closePhonemizer func() error

	mu        sync.Mutex
	synths    map[string]*Synthesizer
	current   string
	scheduler *Scheduler
	closed    bool
}

func NewService(cfg config.Config, opts ...ServiceOption) (*Service, error) {
	voices, err := NewVoiceManager(cfg.Paths.VoicesManifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	svc := &Service{
		cfg:    cfg.TTS,
		voices: voices,
		synths: make(map[string]*Synthesizer),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.open == nil {
		info, err := onnx.Bootstrap(cfg.Runtime)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
		}

		svc.open = onnx.NativeOpener(info.RunnerConfig())
	}

	if svc.phonemizer == nil {
		es, err := phonemize.OpenEspeak(phonemize.Options{
			LibraryPath: cfg.Paths.EspeakLibrary,
			DataPath:    cfg.Paths.EspeakData,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
		}

		svc.phonemizer = es
		svc.closePhonemizer = es.Close
	}

	if err := svc.SelectVoice(cfg.TTS.Voice, cfg.TTS.Language); err != nil {
		svc.Close()
		return nil, err
	}

	return svc, nil
}

func (s *Service) ListVoices() []Voice {
	return s.voices.ListVoices()
}

// CurrentVoice returns the profile Speak uses.
func (s *Service) CurrentVoice() (VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	syn, ok := s.synths[s.current]
	if !ok {
		return VoiceProfile{}, ErrNotInitialized
	}

	return syn.Voice(), nil
}

// SelectVoice loads the voice picked by id or language and makes it the one
// Speak uses. A run in progress on another voice is stopped.
func (s *Service) SelectVoice(id, language string) error {
	if language != "" {
		lang, err := config.NormalizeLanguage(language)
		if err != nil {
			return err
		}

		language = lang
	}

	v, err := s.voices.Select(id, language)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	syn, err := s.synthesizer(v.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrNotInitialized
	}

	if vs, ok := s.phonemizer.(voiceSetter); ok {
		if err := vs.SetVoice(syn.Voice().EspeakVoice); err != nil {
			return fmt.Errorf("select espeak voice %q: %w", syn.Voice().EspeakVoice, err)
		}
	}

	if v.ID != s.current && s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}

	s.current = v.ID

	return nil
}

// Speak starts speaking input on the current voice, replacing any run in
// progress.
func (s *Service) Speak(ctx context.Context, input string) error {
	sched, err := s.activeScheduler()
	if err != nil {
		return err
	}

	return sched.Speak(ctx, input)
}

func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()

	if sched == nil {
		return nil
	}

	return sched.Wait(ctx)
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Service) IsPlaying() bool {
	s.mu.Lock()
	sched := s.scheduler
	s.mu.Unlock()

	return sched != nil && sched.IsPlaying()
}

// Render synthesizes input with voiceID (the current voice when empty) and
// returns mono PCM plus its sample rate.
func (s *Service) Render(ctx context.Context, input, voiceID string) ([]float32, int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, 0, ErrNotInitialized
	}

	if voiceID == "" {
		voiceID = s.current
	}
	s.mu.Unlock()

	syn, err := s.synthesizer(voiceID)
	if err != nil {
		return nil, 0, err
	}

	pcm, err := Render(ctx, syn, s.delays(), input)
	if err != nil {
		return nil, 0, err
	}

	return pcm, syn.SampleRate(), nil
}

// SynthesizeStream is Render delivered chunk by chunk on out, which it
// closes before returning.
func (s *Service) SynthesizeStream(ctx context.Context, input, voiceID string, out chan<- PCMChunk) error {
	defer close(out)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrNotInitialized
	}

	if voiceID == "" {
		voiceID = s.current
	}
	s.mu.Unlock()

	syn, err := s.synthesizer(voiceID)
	if err != nil {
		return err
	}

	return Stream(ctx, syn, s.delays(), input, func(c PCMChunk) error {
		select {
		case out <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}

	for id, syn := range s.synths {
		syn.Close()
		delete(s.synths, id)
	}

	if s.closePhonemizer != nil {
		if err := s.closePhonemizer(); err != nil {
			slog.Warn("close phonemizer", "error", err)
		}
	}
}

func (s *Service) activeScheduler() (*Scheduler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrNotInitialized
	}

	if s.scheduler != nil {
		return s.scheduler, nil
	}

	syn, ok := s.synths[s.current]
	if !ok {
		return nil, ErrNotInitialized
	}

	if s.player == nil {
		return nil, fmt.Errorf("%w: no audio player", ErrNotInitialized)
	}

	opts := append([]SchedulerOption{
		WithDelays(s.delays()),
		WithPollInterval(s.cfg.PollInterval()),
	}, s.schedOpts...)

	sched, err := NewScheduler(syn, s.player, opts...)
	if err != nil {
		return nil, err
	}

	s.scheduler = sched

	return sched, nil
}

// synthesizer returns the cached synthesizer for id, loading and warming it
// up without holding s.mu.
func (s *Service) synthesizer(id string) (*Synthesizer, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}

	if syn, ok := s.synths[id]; ok {
		s.mu.Unlock()
		return syn, nil
	}
	s.mu.Unlock()

	syn, err := s.loadSynthesizer(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		syn.Close()
		return nil, ErrNotInitialized
	}

	// Another caller loaded the same voice first.
	if existing, ok := s.synths[id]; ok {
		syn.Close()
		return existing, nil
	}

	s.synths[id] = syn

	return syn, nil
}

func (s *Service) loadSynthesizer(id string) (*Synthesizer, error) {
	profile, err := s.voices.LoadProfile(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	runner, err := s.open(onnx.GraphInfo{Name: id, Path: profile.ModelPath})
	if err != nil {
		return nil, fmt.Errorf("%w: open vocoder %q: %w", ErrNotInitialized, id, err)
	}

	syn, err := NewSynthesizer(s.phonemizer, profile, runner, s.metrics)
	if err != nil {
		runner.Close()
		return nil, err
	}

	if err := Warmup(context.Background(), syn, s.cfg.WarmupText); err != nil {
		slog.Warn("tts warmup failed", "voice", id, "error", err)
	}

	slog.Info("voice loaded",
		"voice", id,
		"language", profile.Language,
		"espeak_voice", profile.EspeakVoice,
		"sample_rate", profile.SampleRate,
	)

	return syn, nil
}

func (s *Service) delays() text.Delays {
	return text.DelaysFromSeconds(s.cfg.CommaDelay, s.cfg.PeriodDelay, s.cfg.QuestionDelay)
}
