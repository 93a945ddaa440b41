// Package bench times repeated synthesis and recognition runs and reports
// their real-time factor.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Stage names used in reports.
const (
	StageTTS = "tts"
	StageASR = "asr"
)

// Run is one timed invocation of a stage.
type Run struct {
	Index   int
	Cold    bool // first run of the stage
	Elapsed time.Duration
	Audio   time.Duration
	RTF     float64
}

// Stats aggregates the runs of one stage.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// Stage is the timed result of one pipeline stage.
type Stage struct {
	Name  string
	Runs  []Run
	Stats Stats
}

// Func runs one iteration and reports how much audio it produced or consumed.
type Func func(ctx context.Context) (time.Duration, error)

// Measure calls fn runs times and collects timings. It stops at the first
// error or when ctx is done.
func Measure(ctx context.Context, name string, runs int, fn Func) (Stage, error) {
	if runs < 1 {
		return Stage{}, fmt.Errorf("runs must be >= 1, got %d", runs)
	}

	st := Stage{Name: name, Runs: make([]Run, 0, runs)}

	for i := range runs {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		start := time.Now()

		audioDur, err := fn(ctx)
		if err != nil {
			return st, fmt.Errorf("%s run %d: %w", name, i+1, err)
		}

		elapsed := time.Since(start)
		st.Runs = append(st.Runs, Run{
			Index:   i,
			Cold:    i == 0,
			Elapsed: elapsed,
			Audio:   audioDur,
			RTF:     CalcRTF(elapsed, audioDur),
		})
	}

	st.Stats = Summarize(st.Runs)

	return st, nil
}

// Summarize calculates min, max and mean elapsed time plus the mean RTF.
func Summarize(runs []Run) Stats {
	if len(runs) == 0 {
		return Stats{}
	}

	s := Stats{Min: runs[0].Elapsed, Max: runs[0].Elapsed}

	var sum time.Duration
	var rtf float64

	for _, r := range runs {
		s.Min = min(s.Min, r.Elapsed)
		s.Max = max(s.Max, r.Elapsed)
		sum += r.Elapsed
		rtf += r.RTF
	}

	s.Mean = sum / time.Duration(len(runs))
	s.MeanRTF = rtf / float64(len(runs))

	return s
}

// CalcRTF returns elapsed / audio, or 0 when no audio was involved.
func CalcRTF(elapsed, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return float64(elapsed) / float64(audioDur)
}

// AudioDuration is the playback length of n samples at rate Hz.
func AudioDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}

	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// CheckRTF returns an error if any stage's mean RTF exceeds threshold.
// A threshold of 0 disables the gate.
func CheckRTF(stages []Stage, threshold float64) error {
	if threshold <= 0 {
		return nil
	}

	for _, st := range stages {
		if st.Stats.MeanRTF > threshold {
			return fmt.Errorf("%s mean RTF %.3f exceeds threshold %.3f", st.Name, st.Stats.MeanRTF, threshold)
		}
	}

	return nil
}

// WriteTable writes a human-readable table per stage.
func WriteTable(w io.Writer, stages []Stage) error {
	sb := &strings.Builder{}

	for i, st := range stages {
		if i > 0 {
			sb.WriteString("\n")
		}

		fmt.Fprintf(sb, "[%s]\n", st.Name)
		fmt.Fprintf(sb, "%-5s  %-5s  %10s  %10s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
		sb.WriteString(strings.Repeat("-", 46) + "\n")

		for _, r := range st.Runs {
			cold := ""
			if r.Cold {
				cold = "yes"
			}

			fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %10.1f  %8.3f\n",
				r.Index+1, cold, ms(r.Elapsed), ms(r.Audio), r.RTF)
		}

		sb.WriteString(strings.Repeat("-", 46) + "\n")
		fmt.Fprintf(sb, "min %.1fms  mean %.1fms  max %.1fms  rtf %.3f\n",
			ms(st.Stats.Min), ms(st.Stats.Mean), ms(st.Stats.Max), st.Stats.MeanRTF)
	}

	_, err := io.WriteString(w, sb.String())

	return err
}

type jsonStage struct {
	Name  string    `json:"name"`
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index     int     `json:"index"`
	Cold      bool    `json:"cold"`
	ElapsedMS float64 `json:"elapsed_ms"`
	AudioMS   float64 `json:"audio_ms"`
	RTF       float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// WriteJSON writes the stages as an indented JSON array.
func WriteJSON(w io.Writer, stages []Stage) error {
	out := make([]jsonStage, len(stages))

	for i, st := range stages {
		js := jsonStage{
			Name: st.Name,
			Runs: make([]jsonRun, len(st.Runs)),
			Stats: jsonStats{
				MinMS:   ms(st.Stats.Min),
				MeanMS:  ms(st.Stats.Mean),
				MaxMS:   ms(st.Stats.Max),
				MeanRTF: st.Stats.MeanRTF,
			},
		}

		for j, r := range st.Runs {
			js.Runs[j] = jsonRun{
				Index:     r.Index,
				Cold:      r.Cold,
				ElapsedMS: ms(r.Elapsed),
				AudioMS:   ms(r.Audio),
				RTF:       r.RTF,
			}
		}

		out[i] = js
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
