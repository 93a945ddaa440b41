//go:build nocgo

package audio

// OtoPlayer is unavailable without cgo.
type OtoPlayer struct{}

func NewPlayer(PlayerConfig) (*OtoPlayer, error) {
	return nil, ErrPlaybackUnavailable
}

func (p *OtoPlayer) SampleRate() int { return 0 }

func (p *OtoPlayer) Play([]float32, int) error { return ErrPlaybackUnavailable }

func (p *OtoPlayer) IsPlaying() bool { return false }

func (p *OtoPlayer) Stop() {}
