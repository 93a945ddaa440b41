package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/example/go-speechkit/internal/audio"
	"github.com/example/go-speechkit/internal/tts"
	"github.com/spf13/cobra"
)

func newSpeakCmd() *cobra.Command {
	var text string
	var out string
	var voice string

	cmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Speak text aloud, or render it to WAV with --out",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if len(args) == 1 && text == "" {
				text = args[0]
			}

			input, err := readText(text, os.Stdin)
			if err != nil {
				return err
			}

			if voice != "" {
				cfg.TTS.Voice = voice
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if out != "" {
				return renderToFile(ctx, cfg.TTS.Voice, input, out, func(opts ...tts.ServiceOption) (*tts.Service, error) {
					return tts.NewService(cfg, opts...)
				})
			}

			player, err := audio.NewPlayer(audio.DefaultPlayerConfig())
			if err != nil {
				return fmt.Errorf("%w (use --out to write a WAV file instead)", err)
			}

			svc, err := tts.NewService(cfg, tts.WithPlayer(player))
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.Speak(ctx, input); err != nil {
				return err
			}

			err = svc.Wait(ctx)
			if ctx.Err() != nil {
				svc.Stop()
				slog.Info("speech interrupted")
				return nil
			}

			return err
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to speak (if empty, read from the argument or stdin)")
	cmd.Flags().StringVar(&out, "out", "", "Write a WAV file instead of playing ('-' for stdout)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice id (overrides --tts-voice)")

	return cmd
}

type serviceFactory func(opts ...tts.ServiceOption) (*tts.Service, error)

func renderToFile(ctx context.Context, voice, input, out string, newService serviceFactory) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	pcm, rate, err := svc.Render(ctx, input, voice)
	if err != nil {
		return err
	}

	wav, err := audio.EncodeWAV(pcm, rate)
	if err != nil {
		return err
	}

	slog.Debug("rendered", "samples", len(pcm), "sample_rate", rate, "bytes", len(wav))

	return writeOutput(out, wav, os.Stdout)
}

func writeOutput(outPath string, data []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

func readText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide text or pipe it on stdin")
	}
	return input, nil
}
