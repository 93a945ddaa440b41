package asr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/telemetry"
	"github.com/example/go-speechkit/internal/tokenizer"
)

var requiredGraphs = []string{GraphSpectrogram, GraphEncoder, GraphDecoder1, GraphDecoder2}

// Options control one Transcribe call. Zero fields take the recognizer's
// defaults.
type Options struct {
	Language  string
	Task      string
	MaxTokens int
	// Sink receives the growing transcript after every decode step.
	Sink func(Progress)
}

type RecognizerOption func(*Recognizer)

func WithMetrics(m *telemetry.Metrics) RecognizerOption {
	return func(r *Recognizer) { r.metrics = m }
}

func WithDefaults(o Options) RecognizerOption {
	return func(r *Recognizer) { r.defaults = o }
}

// Recognizer opens a fresh set of graph runners per session and allows one
// session at a time: starting a new one cancels the active session and
// waits until its runners are closed.
type Recognizer struct {
	manifest *onnx.Manifest
	open     onnx.OpenFunc
	vocab    tokenizer.Decoder
	metrics  *telemetry.Metrics
	defaults Options

	mu     sync.Mutex
	active *Session
	closed bool
}

func NewRecognizer(m *onnx.Manifest, open onnx.OpenFunc, vocab tokenizer.Decoder, opts ...RecognizerOption) (*Recognizer, error) {
	if m == nil || open == nil || vocab == nil {
		return nil, fmt.Errorf("%w: manifest, opener and vocabulary are required", ErrNotInitialized)
	}

	if err := m.Require(requiredGraphs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	r := &Recognizer{
		manifest: m,
		open:     open,
		vocab:    vocab,
		defaults: Options{
			Language:  config.LanguageEnglish,
			Task:      config.TaskTranscribe,
			MaxTokens: DefaultMaxTokens,
		},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Open loads the model set and vocabulary named by cfg against the native
// ONNX Runtime.
func Open(cfg config.Config, opts ...RecognizerOption) (*Recognizer, error) {
	m, err := onnx.LoadManifest(cfg.Paths.ASRManifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	vocab, err := tokenizer.LoadWhisperVocab(cfg.Paths.VocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	info, err := onnx.Bootstrap(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	defaults := WithDefaults(Options{
		Language:  cfg.ASR.Language,
		Task:      cfg.ASR.Task,
		MaxTokens: cfg.ASR.MaxTokens,
	})

	return NewRecognizer(m, onnx.NativeOpener(info.RunnerConfig()), vocab, append([]RecognizerOption{defaults}, opts...)...)
}

// Transcribe recognizes clip. Reaching the token limit is a normal stop
// (StopCapacity); failures return a *SessionError alongside the partial
// result.
func (r *Recognizer) Transcribe(ctx context.Context, clip audio.Clip, opts Options) (Result, error) {
	opts = r.withDefaults(opts)

	if opts.MaxTokens < minMaxTokens {
		return Result{}, fmt.Errorf("max tokens %d below minimum %d", opts.MaxTokens, minMaxTokens)
	}

	prompt, err := Prompt(opts.Language, opts.Task)
	if err != nil {
		return Result{}, err
	}

	samples, err := PrepareAudio(clip)
	if err != nil {
		return Result{}, err
	}

	sess, sessCtx, err := r.start(ctx, prompt, opts)
	if err != nil {
		return Result{}, err
	}
	defer r.finish(sess)

	slog.Info("asr session started",
		"session", sess.ID,
		"language", opts.Language,
		"task", opts.Task,
		"max_tokens", opts.MaxTokens,
		"audio_seconds", clip.Duration(),
	)

	start := time.Now()
	reason, runErr := sess.run(sessCtx, samples)
	res := sess.result(reason)

	r.metrics.SessionFinished(ctx, string(reason), time.Since(start))

	if runErr != nil {
		slog.Warn("asr session aborted", "session", sess.ID, "step", res.Steps, "stop_reason", reason, "error", runErr)
		return res, runErr
	}

	slog.Info("asr session finished",
		"session", sess.ID,
		"steps", res.Steps,
		"tokens", len(res.Tokens),
		"stop_reason", reason,
		"elapsed", time.Since(start),
	)

	return res, nil
}

// Cancel stops the active session, if any, without waiting for it.
func (r *Recognizer) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		r.active.cancel()
	}
}

// Close cancels the active session, waits for its release and rejects
// further work.
func (r *Recognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.replaceLocked()
}

// PrepareAudio resamples clip to SampleRate and pads or trims it to the
// encoder window.
func PrepareAudio(clip audio.Clip) ([]float32, error) {
	samples := clip.Samples
	if clip.SampleRate > 0 && clip.SampleRate != SampleRate {
		var err error
		if samples, err = audio.Resample(samples, clip.SampleRate, SampleRate); err != nil {
			return nil, err
		}
	}

	return audio.PadOrTrim(samples, MaxSamples), nil
}

func (r *Recognizer) withDefaults(o Options) Options {
	if o.Language == "" {
		o.Language = r.defaults.Language
	}

	if o.Task == "" {
		o.Task = r.defaults.Task
	}

	if o.MaxTokens == 0 {
		o.MaxTokens = r.defaults.MaxTokens
	}

	if o.Sink == nil {
		o.Sink = r.defaults.Sink
	}

	return o
}

func (r *Recognizer) start(ctx context.Context, prompt [promptLength]int64, opts Options) (*Session, context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, ErrNotInitialized
	}

	r.replaceLocked()

	names := append([]string(nil), requiredGraphs...)

	_, hasArgMax := r.manifest.Graph(onnx.ArgMaxGraphName)
	if hasArgMax {
		names = append(names, onnx.ArgMaxGraphName)
	}

	engine, err := onnx.OpenEngine(r.manifest, r.open, names...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}

	graphs := sessionGraphs{argmax: onnx.ArgMaxRunner{}}
	graphs.spectrogram, _ = engine.Runner(GraphSpectrogram)
	graphs.encoder, _ = engine.Runner(GraphEncoder)
	graphs.decoder1, _ = engine.Runner(GraphDecoder1)
	graphs.decoder2, _ = engine.Runner(GraphDecoder2)

	if hasArgMax {
		graphs.argmax, _ = engine.Runner(onnx.ArgMaxGraphName)
	}

	mel, _ := r.manifest.Graph(GraphSpectrogram)
	enc, _ := r.manifest.Graph(GraphEncoder)
	graphs.spectrogramInput = firstName(mel.Inputs, spectrogramInput)
	graphs.spectrogramOutput = firstName(mel.Outputs, "")
	graphs.encoderInput = firstName(enc.Inputs, encoderInput)
	graphs.encoderOutput = firstName(enc.Outputs, "")

	sessCtx, cancel := context.WithCancel(ctx)

	sess := newSession(uuid.NewString(), prompt, opts.MaxTokens, engine, graphs, r.vocab)
	sess.metrics = r.metrics
	sess.sink = opts.Sink
	sess.cancel = cancel
	r.active = sess

	return sess, sessCtx, nil
}

// replaceLocked cancels the active session and blocks until it has released
// its runners.
func (r *Recognizer) replaceLocked() {
	prev := r.active
	if prev == nil {
		return
	}

	slog.Debug("cancelling asr session", "session", prev.ID)
	prev.cancel()
	<-prev.released
	r.active = nil
}

func (r *Recognizer) finish(sess *Session) {
	// Release before taking the lock: a replacing caller holds it while
	// waiting on sess.released.
	sess.release()
	sess.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == sess {
		r.active = nil
	}
}

func firstName(nodes []onnx.NodeInfo, fallback string) string {
	if len(nodes) > 0 && nodes[0].Name != "" {
		return nodes[0].Name
	}

	return fallback
}
