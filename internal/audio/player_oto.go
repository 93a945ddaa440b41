//go:build !nocgo

package audio

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

// OtoPlayer plays audio through the process-wide oto context.
type OtoPlayer struct {
	mu     sync.Mutex
	rate   int
	player *oto.Player
	// data backs the reader the oto player pulls from.
	data []byte
}

// NewPlayer opens the default output device. The first call fixes the device
// sample rate for the process.
func NewPlayer(cfg PlayerConfig) (*OtoPlayer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", cfg.SampleRate)
	}
	if cfg.BufferSize <= 0 {
		return nil, errors.New("buffer size must be positive")
	}

	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   time.Duration(cfg.BufferSize) * time.Second / time.Duration(cfg.SampleRate*Channels*2),
		}

		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("create oto context: %w", err)
			return
		}

		<-ready
		otoCtx = ctx
		otoRate = cfg.SampleRate
	})

	if otoErr != nil {
		return nil, otoErr
	}

	return &OtoPlayer{rate: otoRate}, nil
}

// SampleRate is the device rate.
func (p *OtoPlayer) SampleRate() int { return p.rate }

func (p *OtoPlayer) Play(samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return errors.New("audio data is empty")
	}

	resampled, err := Resample(samples, sampleRate, p.rate)
	if err != nil {
		return err
	}

	data := PCM16(resampled)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	p.data = data
	p.player = otoCtx.NewPlayer(bytes.NewReader(data))
	p.player.Play()

	return nil
}

func (p *OtoPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.player != nil && p.player.IsPlaying()
}

func (p *OtoPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
}

func (p *OtoPlayer) stopLocked() {
	if p.player == nil {
		return
	}

	p.player.Pause()
	_ = p.player.Close()
	p.player = nil
	p.data = nil
}
