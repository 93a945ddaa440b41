package tts

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/text"
)

const (
	chunkFade  = 5 * time.Millisecond
	renderPeak = 0.99
)

// PCMChunk is one piece of streamed output: a synthesized chunk or the
// silence of a pause.
type PCMChunk struct {
	Index      int
	Samples    []float32
	SampleRate int
	Pause      bool
}

// Stream walks input the way a Speak run does and hands each piece of audio
// to emit in order instead of playing it. Failed chunks are skipped; if none
// succeed the result is ErrEmptyWaveform. An emit error stops the walk.
func Stream(ctx context.Context, synth ChunkSynthesizer, delays text.Delays, input string, emit func(PCMChunk) error) error {
	normalized, err := text.Normalize(input)
	if err != nil {
		return err
	}

	rate := synth.SampleRate()
	fade := audio.FadeEdges(chunkFade, rate)
	chunks := 0

	for i, seg := range text.Segments(normalized) {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch seg.Kind {
		case text.KindDelay:
			pause, ok := delays.PauseFor(seg.Payload)
			if !ok {
				continue
			}

			if err := emit(PCMChunk{Index: i, Samples: audio.Silence(pause, rate), SampleRate: rate, Pause: true}); err != nil {
				return err
			}

		case text.KindContent:
			chunk := text.CleanChunk(seg.Payload)
			if chunk == "" {
				continue
			}

			pcm, err := synth.SynthesizeChunk(ctx, chunk)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}

				ce := &ChunkError{Index: i, Text: chunk, Err: err}
				slog.Warn("skipping chunk", "index", ce.Index, "text", ce.Text, "error", ce.Err)

				continue
			}

			chunks++

			if err := emit(PCMChunk{Index: i, Samples: fade(pcm), SampleRate: rate}); err != nil {
				return err
			}
		}
	}

	if chunks == 0 {
		return ErrEmptyWaveform
	}

	return nil
}

// Render is Stream collected into one buffer with a final peak limit.
func Render(ctx context.Context, synth ChunkSynthesizer, delays text.Delays, input string) ([]float32, error) {
	var out []float32

	err := Stream(ctx, synth, delays, input, func(c PCMChunk) error {
		out = append(out, c.Samples...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return audio.ApplyHooks(out, audio.LimitPeak(renderPeak)), nil
}
