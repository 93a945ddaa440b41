package audio

import "time"

// Hook transforms a sample buffer. Hooks may modify samples in place.
type Hook func(samples []float32) []float32

func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// Silence returns d worth of zero samples.
func Silence(d time.Duration, sampleRate int) []float32 {
	if d <= 0 || sampleRate <= 0 {
		return nil
	}

	return make([]float32, int(d.Seconds()*float64(sampleRate)))
}

// FadeEdges returns a hook applying linear fade-in and fade-out ramps of d.
// Vocoder chunks start and end abruptly; the ramps remove the click when
// chunks and pauses are concatenated.
func FadeEdges(d time.Duration, sampleRate int) Hook {
	n := int(d.Seconds() * float64(sampleRate))

	return func(samples []float32) []float32 {
		ramp := min(n, len(samples)/2)
		for i := range ramp {
			g := float32(i) / float32(ramp)
			samples[i] *= g
			samples[len(samples)-1-i] *= g
		}

		return samples
	}
}

// LimitPeak scales samples down so no sample exceeds ceiling. Quieter
// buffers are left alone.
func LimitPeak(ceiling float32) Hook {
	return func(samples []float32) []float32 {
		var peak float32
		for _, s := range samples {
			peak = max(peak, s, -s)
		}

		if peak <= ceiling || peak == 0 {
			return samples
		}

		g := ceiling / peak
		for i := range samples {
			samples[i] *= g
		}

		return samples
	}
}
