package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/example/go-speechkit/internal/asr"
	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/bench"
	"github.com/example/go-speechkit/internal/tts"
	"github.com/spf13/cobra"
)

type benchOptions struct {
	Text      string
	Runs      int
	Threshold float64
	JSON      bool
	ASR       bool
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated synthesis (and optionally recognition) runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			var rec *asr.Recognizer
			if opts.ASR {
				rec, err = asr.Open(cfg)
				if err != nil {
					return err
				}
				defer rec.Close()
			}

			return runBench(cmd.Context(), opts, svc, rec, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "Hello from speechkit. This is a benchmark sentence.", "Text to synthesize")
	cmd.Flags().IntVar(&opts.Runs, "runs", 5, "Number of runs per stage")
	cmd.Flags().Float64Var(&opts.Threshold, "rtf-threshold", 0, "Fail if a stage's mean RTF exceeds this value (0 disables)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Emit JSON instead of a table")
	cmd.Flags().BoolVar(&opts.ASR, "asr", false, "Also transcribe the rendered audio")

	return cmd
}

type renderer interface {
	Render(ctx context.Context, input, voiceID string) ([]float32, int, error)
}

type transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip, opts asr.Options) (asr.Result, error)
}

func runBench(ctx context.Context, opts benchOptions, r renderer, tr transcriber, w io.Writer) error {
	var last audio.Clip

	ttsStage, err := bench.Measure(ctx, bench.StageTTS, opts.Runs, func(ctx context.Context) (time.Duration, error) {
		pcm, rate, err := r.Render(ctx, opts.Text, "")
		if err != nil {
			return 0, err
		}

		last = audio.Clip{Samples: pcm, SampleRate: rate}

		return bench.AudioDuration(len(pcm), rate), nil
	})
	if err != nil {
		return err
	}

	stages := []bench.Stage{ttsStage}

	if tr != nil && opts.ASR {
		asrStage, err := bench.Measure(ctx, bench.StageASR, opts.Runs, func(ctx context.Context) (time.Duration, error) {
			if _, err := tr.Transcribe(ctx, last, asr.Options{}); err != nil {
				return 0, err
			}

			return bench.AudioDuration(len(last.Samples), last.SampleRate), nil
		})
		if err != nil {
			return err
		}

		stages = append(stages, asrStage)
	}

	if opts.JSON {
		err = bench.WriteJSON(w, stages)
	} else {
		err = bench.WriteTable(w, stages)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return bench.CheckRTF(stages, opts.Threshold)
}
