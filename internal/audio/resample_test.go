package audio

import (
	"math"
	"testing"
)

func TestResample(t *testing.T) {
	tests := []struct {
		name    string
		in      []float32
		from    int
		to      int
		wantLen int
	}{
		{"same rate", []float32{1, 2, 3}, 16000, 16000, 3},
		{"downsample 3x", make([]float32, 48000), 48000, 16000, 16000},
		{"downsample 44.1k", make([]float32, 44100), 44100, 16000, 16000},
		{"upsample 2x", make([]float32, 100), 8000, 16000, 200},
		{"empty", nil, 8000, 16000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resample(tt.in, tt.from, tt.to)
			if err != nil {
				t.Fatalf("Resample: %v", err)
			}

			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestResampleInvalidRate(t *testing.T) {
	if _, err := Resample([]float32{1}, 0, 16000); err == nil {
		t.Error("rate 0 accepted")
	}

	if _, err := Resample([]float32{1}, 16000, -1); err == nil {
		t.Error("negative rate accepted")
	}
}

func sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
	}

	return out
}

func rms(s []float32) float64 {
	var sum float64
	for _, v := range s {
		sum += float64(v) * float64(v)
	}

	return math.Sqrt(sum / float64(len(s)))
}

func TestResampleKeepsPassbandAligned(t *testing.T) {
	got, err := Resample(sine(500, 48000, 48000), 48000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	want := sine(500, 16000, len(got))

	// Skip the edges where the filter sees the implicit zeros.
	for i := 200; i < len(got)-200; i++ {
		if d := math.Abs(float64(got[i] - want[i])); d > 0.08 {
			t.Fatalf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResampleRejectsAliases(t *testing.T) {
	// 12 kHz is above the 8 kHz Nyquist rate of the output. Plain decimation
	// would fold it to a full-scale 4 kHz tone.
	got, err := Resample(sine(12000, 48000, 48000), 48000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	if level := rms(got[200 : len(got)-200]); level > 0.01 {
		t.Errorf("aliased level = %.4f, want < 0.01", level)
	}
}

func TestResamplePreservesDC(t *testing.T) {
	in := make([]float32, 22050)
	for i := range in {
		in[i] = 0.5
	}

	got, err := Resample(in, 22050, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	for i := 200; i < len(got)-200; i++ {
		if math.Abs(float64(got[i])-0.5) > 1e-3 {
			t.Fatalf("sample %d = %v, want 0.5", i, got[i])
		}
	}
}

func TestPadOrTrim(t *testing.T) {
	if got := PadOrTrim([]float32{1, 2, 3}, 2); len(got) != 2 || got[1] != 2 {
		t.Errorf("trim = %v", got)
	}

	got := PadOrTrim([]float32{1}, 3)
	if len(got) != 3 || got[0] != 1 || got[2] != 0 {
		t.Errorf("pad = %v", got)
	}
}
