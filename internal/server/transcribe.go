package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/go-speechkit/internal/asr"
	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/config"
)

type transcribeResponse struct {
	SessionID  string  `json:"session_id"`
	Text       string  `json:"text"`
	Tokens     []int64 `json:"tokens"`
	Steps      int     `json:"steps"`
	StopReason string  `json:"stop_reason"`
}

// handleTranscribe accepts a WAV body. Query parameters language, task and
// max_tokens override the recognizer defaults.
func (h *handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if h.opts.transcriber == nil {
		writeError(w, http.StatusNotImplemented, "speech recognition not available")
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	opts, err := transcribeOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "WAV request body is required")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.maxAudioBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio exceeds maximum upload size")
			return
		}

		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The recognizer replaces its active session on every call, so requests
	// queue here instead of cancelling each other.
	select {
	case h.asr <- struct{}{}:
		defer func() { <-h.asr }()
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for recognizer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.opts.transcriber.Transcribe(ctx, clip, opts)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		attrs := []any{
			slog.String("session", res.SessionID),
			slog.Float64("audio_seconds", clip.Duration()),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			h.log.WarnContext(r.Context(), "transcription timed out", attrs...)
			writeError(w, http.StatusGatewayTimeout, "transcription timed out")
			return
		}

		h.log.ErrorContext(r.Context(), "transcription failed", attrs...)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "transcription complete",
		slog.String("session", res.SessionID),
		slog.Float64("audio_seconds", clip.Duration()),
		slog.Int("steps", res.Steps),
		slog.String("stop_reason", string(res.StopReason)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, transcribeResponse{
		SessionID:  res.SessionID,
		Text:       res.Text,
		Tokens:     res.Tokens,
		Steps:      res.Steps,
		StopReason: string(res.StopReason),
	})
}

func transcribeOptions(r *http.Request) (asr.Options, error) {
	q := r.URL.Query()

	var opts asr.Options

	if v := q.Get("language"); v != "" {
		lang, err := config.NormalizeLanguage(v)
		if err != nil {
			return opts, err
		}
		opts.Language = lang
	}

	if v := q.Get("task"); v != "" {
		task, err := config.NormalizeTask(v)
		if err != nil {
			return opts, err
		}
		opts.Task = task
	}

	if v := q.Get("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 5 {
			return opts, errors.New("max_tokens must be an integer >= 5")
		}
		opts.MaxTokens = n
	}

	return opts, nil
}
