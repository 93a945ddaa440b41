//go:build nocgo

package mic

func openStream(Options) (frameSource, error) { return nil, ErrUnavailable }

func Devices() ([]Device, error) { return nil, ErrUnavailable }
