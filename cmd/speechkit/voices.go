package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/example/go-speechkit/internal/mic"
	"github.com/example/go-speechkit/internal/tts"
	"github.com/spf13/cobra"
)

func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List voices from the voices manifest",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			vm, err := tts.NewVoiceManager(cfg.Paths.VoicesManifest)
			if err != nil {
				return err
			}

			return printVoices(os.Stdout, vm.ListVoices())
		},
	}
}

func printVoices(w io.Writer, voices []tts.Voice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tLANGUAGE\tMODEL\tLICENSE")

	for _, v := range voices {
		lang := v.Language
		if lang == "" {
			lang = "-"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, lang, v.Path, v.License)
	}

	return tw.Flush()
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(_ *cobra.Command, _ []string) error {
			devices, err := mic.Devices()
			if err != nil {
				return err
			}

			return printDevices(os.Stdout, devices)
		},
	}
}

func printDevices(w io.Writer, devices []mic.Device) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tCHANNELS\tRATE\tDEFAULT")

	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%d\t%.0f\t%s\n", d.Name, d.MaxInputChannels, d.DefaultSampleRate, def)
	}

	return tw.Flush()
}
