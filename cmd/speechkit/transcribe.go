package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-speechkit/internal/asr"
	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/config"
	"github.com/example/go-speechkit/internal/mic"
	"github.com/spf13/cobra"
)

func newTranscribeCmd() *cobra.Command {
	var useMic bool
	var seconds float64
	var device string
	var asJSON bool
	var partial bool

	cmd := &cobra.Command{
		Use:   "transcribe [file.wav]",
		Short: "Transcribe a WAV file or a microphone recording",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if useMic == (len(args) == 1) {
				return fmt.Errorf("pass exactly one of a WAV file or --mic")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var clip audio.Clip
			if useMic {
				clip, err = recordClip(ctx, cfg.Mic, seconds, device, os.Stderr)
			} else {
				clip, err = readClip(args[0])
			}
			if err != nil {
				return err
			}

			rec, err := asr.Open(cfg)
			if err != nil {
				return err
			}
			defer rec.Close()

			var opts asr.Options
			if partial {
				opts.Sink = progressPrinter(os.Stderr)
			}

			res, err := rec.Transcribe(ctx, clip, opts)
			if partial {
				_, _ = fmt.Fprintln(os.Stderr)
			}
			if err != nil {
				return err
			}

			return printResult(os.Stdout, res, asJSON)
		},
	}

	cmd.Flags().BoolVar(&useMic, "mic", false, "Record from the microphone instead of reading a file")
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "Recording length (overrides --mic-seconds)")
	cmd.Flags().StringVar(&device, "device", "", "Capture device (overrides --mic-device)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	cmd.Flags().BoolVar(&partial, "partial", false, "Print the running transcript to stderr while decoding")

	return cmd
}

func readClip(path string) (audio.Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Clip{}, err
	}

	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%s: %w", path, err)
	}

	return clip, nil
}

func recordClip(ctx context.Context, mc config.MicConfig, seconds float64, device string, status io.Writer) (audio.Clip, error) {
	if seconds <= 0 {
		seconds = mc.Seconds
	}

	if device == "" {
		device = mc.Device
	}

	opts := mic.DefaultOptions()
	opts.Device = device
	opts.SampleRate = mc.SampleRate
	opts.Duration = time.Duration(seconds * float64(time.Second))

	_, _ = fmt.Fprintf(status, "recording %.1fs...\n", seconds)

	return mic.Record(ctx, opts)
}

// progressPrinter rewrites one status line with the running transcript.
func progressPrinter(w io.Writer) func(asr.Progress) {
	return func(p asr.Progress) {
		_, _ = fmt.Fprintf(w, "\r[%3d] %s", p.Step, p.Text)
	}
}

type resultJSON struct {
	SessionID  string  `json:"session_id"`
	Text       string  `json:"text"`
	Tokens     []int64 `json:"tokens"`
	Steps      int     `json:"steps"`
	StopReason string  `json:"stop_reason"`
}

func printResult(w io.Writer, res asr.Result, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintln(w, res.Text)
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(resultJSON{
		SessionID:  res.SessionID,
		Text:       res.Text,
		Tokens:     res.Tokens,
		Steps:      res.Steps,
		StopReason: string(res.StopReason),
	})
}
