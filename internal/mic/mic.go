// Package mic records fixed-length clips from an input device.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-speechkit/internal/audio"
)

// ErrUnavailable is returned when the binary was built without audio input
// support.
var ErrUnavailable = errors.New("microphone capture unavailable")

const (
	DefaultSampleRate      = 16000
	DefaultFramesPerBuffer = 512
)

// Options select the device and capture length. An empty Device, or
// "default", uses the system default input.
type Options struct {
	Device          string
	Duration        time.Duration
	SampleRate      int
	FramesPerBuffer int
}

func DefaultOptions() Options {
	return Options{
		Duration:        5 * time.Second,
		SampleRate:      DefaultSampleRate,
		FramesPerBuffer: DefaultFramesPerBuffer,
	}
}

// Device describes one input-capable device.
type Device struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// frameSource yields successive mono buffers from a running stream.
type frameSource interface {
	Read() ([]float32, error)
	Close() error
}

// Record captures opts.Duration of mono audio.
func Record(ctx context.Context, opts Options) (audio.Clip, error) {
	opts = opts.withDefaults()

	if opts.Duration <= 0 {
		return audio.Clip{}, fmt.Errorf("record duration must be positive, got %s", opts.Duration)
	}

	src, err := openStream(opts)
	if err != nil {
		return audio.Clip{}, err
	}

	defer func() {
		if err := src.Close(); err != nil {
			slog.Warn("close input stream", "error", err)
		}
	}()

	want := int(opts.Duration.Seconds() * float64(opts.SampleRate))

	slog.Debug("recording", "device", opts.Device, "seconds", opts.Duration.Seconds(), "sample_rate", opts.SampleRate)

	samples, err := collect(ctx, src, want)
	if err != nil {
		return audio.Clip{}, err
	}

	return audio.Clip{Samples: samples, SampleRate: opts.SampleRate}, nil
}

// collect reads until want samples are buffered and trims the overshoot of
// the last buffer.
func collect(ctx context.Context, src frameSource, want int) ([]float32, error) {
	out := make([]float32, 0, want)

	for len(out) < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Read()
		if err != nil {
			return nil, fmt.Errorf("read input stream: %w", err)
		}

		out = append(out, frame...)
	}

	return out[:want], nil
}

func (o Options) withDefaults() Options {
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}

	if o.FramesPerBuffer <= 0 {
		o.FramesPerBuffer = DefaultFramesPerBuffer
	}

	return o
}

func isDefaultDevice(name string) bool {
	return name == "" || name == "default"
}
