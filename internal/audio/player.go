package audio

import "errors"

// ErrPlaybackUnavailable is returned by NewPlayer in builds without an audio
// backend.
var ErrPlaybackUnavailable = errors.New("audio playback not available in this build")

// Player plays mono float32 buffers. Play must not block until playback
// finishes; callers poll IsPlaying.
type Player interface {
	Play(samples []float32, sampleRate int) error
	IsPlaying() bool
	Stop()
}

// PlayerConfig configures the output device.
type PlayerConfig struct {
	SampleRate int // device rate; buffers at other rates are resampled
	BufferSize int // bytes
}

func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 22050,
		BufferSize: 4096,
	}
}
