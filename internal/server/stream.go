package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/tts"
)

// handleTTSStream writes a streaming WAV (unknown-length header) and flushes
// PCM as each chunk is synthesized. Errors after the first chunk can only be
// logged; the client sees a truncated stream.
func (h *handler) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	if h.opts.streamer == nil {
		writeError(w, http.StatusNotImplemented, "streaming synthesis not available")
		return
	}

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

	chunks := make(chan tts.PCMChunk, 4)
	errCh := make(chan error, 1)

	start := time.Now()
	go func() {
		errCh <- h.opts.streamer.SynthesizeStream(ctx, req.Text, req.Voice, chunks)
	}()

	flusher, _ := w.(http.Flusher)
	started := false
	written := 0

	for chunk := range chunks {
		if !started {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)

			if _, err := audio.WriteWAVHeaderStreaming(w, chunk.SampleRate); err != nil {
				cancel()
				break
			}

			started = true
		}

		n, err := audio.WritePCM16Samples(w, chunk.Samples)
		written += n
		if err != nil {
			cancel()
			break
		}

		if flusher != nil {
			flusher.Flush()
		}
	}

	// Drain so the producer can observe cancellation and close.
	for range chunks {
	}

	err := <-errCh
	durationMS := time.Since(start).Milliseconds()

	if err != nil && !started {
		h.synthesisFailed(w, r, req, durationMS, err)
		return
	}

	if err != nil {
		h.log.WarnContext(r.Context(), "stream aborted",
			slog.String("voice", req.Voice),
			slog.Int("pcm_bytes", written),
			slog.String("error", err.Error()),
		)
		return
	}

	h.log.InfoContext(r.Context(), "stream complete",
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("pcm_bytes", written),
	)
}
