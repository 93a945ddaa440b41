package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-speechkit/internal/asr"
	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/telemetry"
	"github.com/example/go-speechkit/internal/text"
	"github.com/example/go-speechkit/internal/tts"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer produces WAV bytes from text and a voice ID.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// StreamingSynthesizer delivers PCM chunks on out as they are synthesized
// and closes out when done.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, text, voice string, out chan<- tts.PCMChunk) error
}

// Transcriber recognizes speech in a decoded clip.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip, opts asr.Options) (asr.Result, error)
}

// VoiceLister returns the list of available voices.
type VoiceLister interface {
	ListVoices() []tts.Voice
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxAudioBytes  int64
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	streamer       StreamingSynthesizer
	transcriber    Transcriber
	metrics        *telemetry.Metrics
	metricsHandler http.Handler
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		maxAudioBytes:  16 << 20,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /tts.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxAudioBytes caps the WAV upload size for POST /transcribe.
func WithMaxAudioBytes(n int64) Option {
	return func(o *options) { o.maxAudioBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStreamer enables POST /tts/stream.
func WithStreamer(s StreamingSynthesizer) Option {
	return func(o *options) { o.streamer = s }
}

// WithTranscriber enables POST /transcribe.
func WithTranscriber(t Transcriber) Option {
	return func(o *options) { o.transcriber = t }
}

// WithMetrics records per-route request counts and latencies.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *options) { o.metricsHandler = h }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	synth  Synthesizer
	voices VoiceLister
	opts   options
	sem    chan struct{} // semaphore for worker pool
	asr    chan struct{} // one recognition at a time
	log    *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /voices, POST /tts
// and, when configured, POST /tts/stream, POST /transcribe and /metrics.
func NewHandler(synth Synthesizer, voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	h := &handler{
		synth:  synth,
		voices: voices,
		opts:   opts,
		asr:    make(chan struct{}, 1),
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.instrument("/health", h.handleHealth))
	mux.HandleFunc("/voices", h.instrument("/voices", h.handleVoices))
	mux.HandleFunc("/tts", h.instrument("/tts", h.handleTTS))
	mux.HandleFunc("/tts/stream", h.instrument("/tts/stream", h.handleTTSStream))
	mux.HandleFunc("/transcribe", h.instrument("/transcribe", h.handleTranscribe))

	if opts.metricsHandler != nil {
		mux.Handle("/metrics", opts.metricsHandler)
	}

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.voices.ListVoices()
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// decodeTTSRequest validates the shared body of /tts and /tts/stream. It
// writes the error response itself and returns false on failure.
func (h *handler) decodeTTSRequest(w http.ResponseWriter, r *http.Request) (ttsRequest, bool) {
	var req ttsRequest

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return req, false
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return req, false
	}

	return req, true
}

// acquire takes a worker slot, honouring cancellation while waiting. The
// returned release is never nil.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTTSRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	wav, err := h.synth.Synthesize(ctx, req.Text, req.Voice)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.synthesisFailed(w, r, req, durationMS, err)
		return
	}

	h.log.InfoContext(r.Context(), "synthesis complete",
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (h *handler) synthesisFailed(w http.ResponseWriter, r *http.Request, req ttsRequest, durationMS int64, err error) {
	attrs := []any{
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.String("error", err.Error()),
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		h.log.WarnContext(r.Context(), "synthesis timed out", attrs...)
		writeError(w, http.StatusGatewayTimeout, "synthesis timed out")
	case errors.Is(err, text.ErrEmptyText):
		h.log.WarnContext(r.Context(), "synthesis rejected", attrs...)
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "synthesis failed", attrs...)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tts             *tts.Service
	asr             *asr.Recognizer
	telemetry       *telemetry.Provider
	shutdownTimeout time.Duration
}

// New builds a Server. A nil svc or rec is opened from cfg on Start.
func New(cfg config.Config, svc *tts.Service, rec *asr.Recognizer) *Server {
	timeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		timeout = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		tts:             svc,
		asr:             rec,
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithTelemetry records request metrics and serves them on /metrics.
func (s *Server) WithTelemetry(p *telemetry.Provider) *Server {
	s.telemetry = p
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	handlerOpts, err := s.runtimeDeps()
	if err != nil {
		return err
	}

	h := NewHandler(&serviceSynthesizer{svc: s.tts}, s.tts, handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("http server listening", "addr", s.cfg.Server.ListenAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}

// runtimeDeps opens whatever the caller did not supply. Speech synthesis is
// required; recognition is served only when its models load.
func (s *Server) runtimeDeps() ([]Option, error) {
	var metrics *telemetry.Metrics
	if s.telemetry != nil {
		metrics = s.telemetry.Metrics()
	}

	if s.tts == nil {
		svc, err := tts.NewService(s.cfg, tts.WithMetrics(metrics))
		if err != nil {
			return nil, fmt.Errorf("initialize tts service: %w", err)
		}
		s.tts = svc
	}

	if s.asr == nil && s.cfg.Paths.ASRManifest != "" {
		rec, err := asr.Open(s.cfg, asr.WithMetrics(metrics))
		if err != nil {
			slog.Warn("speech recognition disabled", "error", err)
		} else {
			s.asr = rec
		}
	}

	opts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithMaxAudioBytes(s.cfg.Server.MaxAudioBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
		WithStreamer(s.tts),
		WithMetrics(metrics),
	}

	if s.asr != nil {
		opts = append(opts, WithTranscriber(s.asr))
	}

	if s.telemetry != nil {
		opts = append(opts, WithMetricsHandler(s.telemetry.Handler()))
	}

	return opts, nil
}

// serviceSynthesizer renders through the TTS service and encodes WAV.
type serviceSynthesizer struct {
	svc *tts.Service
}

func (n *serviceSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	samples, rate, err := n.svc.Render(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(samples, rate)
}
