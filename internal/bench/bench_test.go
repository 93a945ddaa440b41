package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-speechkit/internal/bench"
)

func stage(name string, elapsed ...time.Duration) bench.Stage {
	st := bench.Stage{Name: name}
	for i, e := range elapsed {
		st.Runs = append(st.Runs, bench.Run{
			Index:   i,
			Cold:    i == 0,
			Elapsed: e,
			Audio:   time.Second,
			RTF:     bench.CalcRTF(e, time.Second),
		})
	}
	st.Stats = bench.Summarize(st.Runs)
	return st
}

func TestSummarize(t *testing.T) {
	st := stage("tts", 100*time.Millisecond, 200*time.Millisecond, 300*time.Millisecond)

	if st.Stats.Min != 100*time.Millisecond || st.Stats.Max != 300*time.Millisecond || st.Stats.Mean != 200*time.Millisecond {
		t.Errorf("stats = %+v", st.Stats)
	}

	if st.Stats.MeanRTF < 0.199 || st.Stats.MeanRTF > 0.201 {
		t.Errorf("mean RTF = %.4f, want 0.2", st.Stats.MeanRTF)
	}

	if got := bench.Summarize(nil); got != (bench.Stats{}) {
		t.Errorf("empty summary = %+v", got)
	}
}

func TestCalcRTF(t *testing.T) {
	if rtf := bench.CalcRTF(500*time.Millisecond, time.Second); rtf < 0.499 || rtf > 0.501 {
		t.Errorf("RTF = %.4f, want 0.5", rtf)
	}

	if rtf := bench.CalcRTF(500*time.Millisecond, 0); rtf != 0 {
		t.Errorf("RTF with no audio = %.4f, want 0", rtf)
	}
}

func TestAudioDuration(t *testing.T) {
	if got := bench.AudioDuration(22050, 22050); got != time.Second {
		t.Errorf("AudioDuration = %v, want 1s", got)
	}

	if got := bench.AudioDuration(8000, 16000); got != 500*time.Millisecond {
		t.Errorf("AudioDuration = %v, want 500ms", got)
	}

	if got := bench.AudioDuration(100, 0); got != 0 {
		t.Errorf("AudioDuration at rate 0 = %v", got)
	}
}

func TestMeasure(t *testing.T) {
	calls := 0
	st, err := bench.Measure(context.Background(), bench.StageTTS, 3, func(context.Context) (time.Duration, error) {
		calls++
		return 2 * time.Second, nil
	})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}

	if calls != 3 || len(st.Runs) != 3 {
		t.Fatalf("calls=%d runs=%d, want 3", calls, len(st.Runs))
	}

	if !st.Runs[0].Cold || st.Runs[1].Cold {
		t.Error("only the first run should be cold")
	}

	if st.Runs[2].Audio != 2*time.Second || st.Name != bench.StageTTS {
		t.Errorf("stage = %+v", st)
	}
}

func TestMeasureStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	st, err := bench.Measure(context.Background(), bench.StageASR, 5, func(context.Context) (time.Duration, error) {
		calls++
		if calls == 2 {
			return 0, boom
		}
		return time.Second, nil
	})

	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "asr run 2") {
		t.Fatalf("err = %v", err)
	}

	if len(st.Runs) != 1 {
		t.Errorf("runs = %d, want 1", len(st.Runs))
	}
}

func TestMeasureRejectsZeroRuns(t *testing.T) {
	if _, err := bench.Measure(context.Background(), "x", 0, nil); err == nil {
		t.Fatal("expected error for zero runs")
	}
}

func TestMeasureCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bench.Measure(ctx, "x", 2, func(context.Context) (time.Duration, error) {
		t.Fatal("fn called after cancel")
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestCheckRTF(t *testing.T) {
	stages := []bench.Stage{
		stage("tts", 200*time.Millisecond),
		stage("asr", 800*time.Millisecond),
	}

	if err := bench.CheckRTF(stages, 0); err != nil {
		t.Errorf("disabled gate: %v", err)
	}

	if err := bench.CheckRTF(stages, 1.0); err != nil {
		t.Errorf("under threshold: %v", err)
	}

	err := bench.CheckRTF(stages, 0.5)
	if err == nil || !strings.Contains(err.Error(), "asr") {
		t.Errorf("over threshold: %v", err)
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	if err := bench.WriteTable(&buf, []bench.Stage{stage("tts", 100*time.Millisecond, 200*time.Millisecond)}); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"[tts]", "RTF", "yes", "mean 150.0ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := bench.WriteJSON(&buf, []bench.Stage{stage("asr", 250*time.Millisecond)}); err != nil {
		t.Fatal(err)
	}

	var got []struct {
		Name string `json:"name"`
		Runs []struct {
			Cold      bool    `json:"cold"`
			ElapsedMS float64 `json:"elapsed_ms"`
		} `json:"runs"`
		Stats struct {
			MeanRTF float64 `json:"mean_rtf"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(got) != 1 || got[0].Name != "asr" || len(got[0].Runs) != 1 || !got[0].Runs[0].Cold {
		t.Fatalf("report = %+v", got)
	}

	if got[0].Runs[0].ElapsedMS != 250 || got[0].Stats.MeanRTF < 0.249 || got[0].Stats.MeanRTF > 0.251 {
		t.Errorf("report = %+v", got)
	}
}
