package audio

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// Resample converts mono samples between rates with a windowed-sinc
// polyphase filter, so downsampling low-passes below the new Nyquist rate.
// The result holds len(samples)*to/from samples aligned with the input.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("resample %d Hz to %d Hz: invalid rate", from, to)
	}

	if from == to || len(samples) == 0 {
		return samples, nil
	}

	r, err := resample.NewForRates(float64(from), float64(to))
	if err != nil {
		return nil, fmt.Errorf("resample %d Hz to %d Hz: %w", from, to, err)
	}

	up, down := r.Ratio()
	taps := r.TapsPerPhase()

	// The filter delays its output by half its length; feed a zero tail and
	// drop that many leading outputs.
	lead := int(math.Round(float64(taps*up-1) / 2 / float64(down)))

	in := make([]float64, len(samples)+taps)
	for i, v := range samples {
		in[i] = float64(v)
	}

	y := r.Process(in)

	out := make([]float32, int(int64(len(samples))*int64(up)/int64(down)))
	for i := range out {
		if j := i + lead; j < len(y) {
			out[i] = float32(y[j])
		}
	}

	return out, nil
}

// PadOrTrim returns exactly n samples: zero-padded when shorter, truncated
// when longer.
func PadOrTrim(samples []float32, n int) []float32 {
	out := make([]float32, n)
	copy(out, samples)

	return out
}
