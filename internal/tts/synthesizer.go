package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/phonemize"
	"github.com/example/go-speechkit/internal/telemetry"
)

// Vocoder graph I/O names used by Piper exports.
const (
	vocoderInput   = "input"
	vocoderLengths = "input_lengths"
	vocoderScales  = "scales"
	vocoderOutput  = "output"
)

// ChunkSynthesizer turns one cleaned text chunk into PCM.
type ChunkSynthesizer interface {
	SynthesizeChunk(ctx context.Context, text string) ([]float32, error)
	SampleRate() int
}

// Synthesizer runs phonemize, tokenize and vocoder for a single voice.
type Synthesizer struct {
	phonemizer phonemize.Phonemizer
	voice      VoiceProfile
	vocoder    onnx.GraphRunner
	metrics    *telemetry.Metrics
}

func NewSynthesizer(p phonemize.Phonemizer, voice VoiceProfile, vocoder onnx.GraphRunner, metrics *telemetry.Metrics) (*Synthesizer, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: phonemizer is nil", ErrNotInitialized)
	}

	if vocoder == nil {
		return nil, fmt.Errorf("%w: vocoder is nil", ErrNotInitialized)
	}

	if voice.Tokenizer == nil || voice.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: voice %q is incomplete", ErrNotInitialized, voice.ID)
	}

	return &Synthesizer{phonemizer: p, voice: voice, vocoder: vocoder, metrics: metrics}, nil
}

func (s *Synthesizer) Voice() VoiceProfile { return s.voice }

func (s *Synthesizer) SampleRate() int { return s.voice.SampleRate }

// Tokens phonemizes text and maps it to vocoder input IDs.
func (s *Synthesizer) Tokens(text string) ([]int64, error) {
	phonemes, err := s.phonemizer.Phonemize(s.voice.EspeakVoice, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPhonemize, err)
	}

	phonemes = strings.TrimSpace(phonemes)
	if phonemes == "" {
		return nil, ErrPhonemize
	}

	return s.voice.Tokenizer.Encode(phonemes), nil
}

func (s *Synthesizer) SynthesizeChunk(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()

	pcm, err := s.synthesize(ctx, text)
	s.metrics.ChunkSynthesized(ctx, time.Since(start), err == nil)

	return pcm, err
}

func (s *Synthesizer) synthesize(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.Tokens(text)
	if err != nil {
		return nil, err
	}

	n := int64(len(ids))

	input, err := onnx.NewTensor(ids, []int64{1, n})
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}

	lengths, err := onnx.NewTensor([]int64{n}, []int64{1})
	if err != nil {
		return nil, fmt.Errorf("input_lengths tensor: %w", err)
	}

	scales := s.voice.Scales

	scalesTensor, err := onnx.NewTensor(scales[:], []int64{3})
	if err != nil {
		return nil, fmt.Errorf("scales tensor: %w", err)
	}

	slog.Debug("vocoder run", "voice", s.voice.ID, "tokens", n)

	outputs, err := s.vocoder.Run(ctx, map[string]*onnx.Tensor{
		vocoderInput:   input,
		vocoderLengths: lengths,
		vocoderScales:  scalesTensor,
	})
	if err != nil {
		return nil, fmt.Errorf("vocoder: %w", err)
	}

	out, err := onnx.Output(outputs, vocoderOutput)
	if err != nil {
		return nil, fmt.Errorf("vocoder: %w", err)
	}

	pcm, err := onnx.ExtractFloat32(out)
	if err != nil {
		return nil, fmt.Errorf("vocoder: %w", err)
	}

	if len(pcm) == 0 {
		return nil, ErrEmptyWaveform
	}

	return pcm, nil
}

// Close releases the vocoder session.
func (s *Synthesizer) Close() {
	s.vocoder.Close()
}

// Warmup runs one throwaway synthesis so the first real chunk does not pay
// for session initialization.
func Warmup(ctx context.Context, s ChunkSynthesizer, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	start := time.Now()

	if _, err := s.SynthesizeChunk(ctx, text); err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	slog.Debug("tts warmup complete", "elapsed", time.Since(start))

	return nil
}
