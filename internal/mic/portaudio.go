//go:build !nocgo

package mic

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

type paStream struct {
	stream *portaudio.Stream
	buffer []float32
}

func (s *paStream) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}

	return append([]float32(nil), s.buffer...), nil
}

func (s *paStream) Close() error {
	defer func() { _ = portaudio.Terminate() }()

	_ = s.stream.Stop()

	return s.stream.Close()
}

func openStream(opts Options) (frameSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize PortAudio: %w", err)
	}

	buffer := make([]float32, opts.FramesPerBuffer)

	stream, err := open(opts, buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()

		return nil, fmt.Errorf("start input stream: %w", err)
	}

	return &paStream{stream: stream, buffer: buffer}, nil
}

func open(opts Options, buffer []float32) (*portaudio.Stream, error) {
	rate := float64(opts.SampleRate)

	if isDefaultDevice(opts.Device) {
		stream, err := portaudio.OpenDefaultStream(1, 0, rate, len(buffer), buffer)
		if err != nil {
			return nil, fmt.Errorf("open default input: %w", err)
		}

		return stream, nil
	}

	device, err := findDevice(opts.Device)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      rate,
		FramesPerBuffer: len(buffer),
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", opts.Device, err)
	}

	return stream, nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	for _, dev := range devices {
		if dev.Name == name && dev.MaxInputChannels > 0 {
			return dev, nil
		}
	}

	return nil, fmt.Errorf("input device %q not found", name)
}

// Devices lists input-capable devices.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize PortAudio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var out []Device
	for _, dev := range devices {
		if dev.MaxInputChannels == 0 {
			continue
		}

		out = append(out, Device{
			Name:              dev.Name,
			MaxInputChannels:  dev.MaxInputChannels,
			DefaultSampleRate: dev.DefaultSampleRate,
			IsDefault:         dev.Name == defaultName,
		})
	}

	return out, nil
}
