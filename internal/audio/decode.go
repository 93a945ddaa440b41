package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// Output format for everything this package encodes.
const (
	Channels = 1
	BitDepth = 16
)

// ErrFormatMismatch is returned when a decoded WAV cannot be used.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// Clip is mono PCM at a known sample rate.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration is the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}

	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// DecodeWAV decodes WAV bytes into a mono clip, averaging channels when the
// source is multi-channel.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, errors.New("empty WAV input")
	}

	r := bytes.NewReader(data)
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid WAV file")
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return Clip{}, fmt.Errorf("%w: %d channels", ErrFormatMismatch, channels)
	}

	if dec.SampleRate == 0 {
		return Clip{}, fmt.Errorf("%w: sample rate 0", ErrFormatMismatch)
	}

	switch dec.BitDepth {
	case 8, 16, 24, 32:
	default:
		return Clip{}, fmt.Errorf("%w: bit depth %d", ErrFormatMismatch, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return Clip{Samples: Downmix(buf.Data, channels), SampleRate: int(dec.SampleRate)}, nil
}

// Downmix averages interleaved frames to mono. A trailing partial frame is
// dropped.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for f := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}

	return out
}
