package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/tokenizer"
)

const testVoiceConfig = `{
  "audio": {"sample_rate": 1000},
  "espeak": {"voice": "en-us"},
  "inference": {"noise_scale": 0.667, "length_scale": 1, "noise_w": 0.8},
  "phoneme_id_map": {
    "_": [0], " ": [3],
    "h": [20], "e": [21], "l": [24], "o": [27], "w": [35], "r": [30], "d": [17]
  }
}`

// eventLog collects an ordered trace across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, fmt.Sprintf(format, args...))
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.events...)
}

// fakeSynth returns one sample per chunk whose value is the chunk length,
// unless fn overrides.
type fakeSynth struct {
	log  *eventLog
	rate int
	fn   func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeSynth) SynthesizeChunk(ctx context.Context, text string) ([]float32, error) {
	if f.log != nil {
		f.log.add("synth:%s", text)
	}

	if f.fn != nil {
		return f.fn(ctx, text)
	}

	return []float32{float32(len(text))}, nil
}

func (f *fakeSynth) SampleRate() int {
	if f.rate == 0 {
		return 1000
	}

	return f.rate
}

// fakePlayer stays "playing" for busyPolls IsPlaying calls after each Play.
type fakePlayer struct {
	log       *eventLog
	busyPolls int
	playErr   error

	mu     sync.Mutex
	played [][]float32
	busy   int
	stops  int
}

func (p *fakePlayer) Play(samples []float32, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playErr != nil {
		return p.playErr
	}

	if p.log != nil {
		p.log.add("play:%v", samples[0])
	}

	p.played = append(p.played, samples)
	p.busy = p.busyPolls

	return nil
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy < 0 {
		return true
	}

	if p.busy == 0 {
		return false
	}

	p.busy--

	return true
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stops++
	p.busy = 0
}

func (p *fakePlayer) playedMarkers() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]float32, 0, len(p.played))
	for _, s := range p.played {
		out = append(out, s[0])
	}

	return out
}

type fakePhonemizer struct {
	mu     sync.Mutex
	voices []string
	err    error
}

// Phonemize echoes the text so tests control the phoneme string directly.
func (f *fakePhonemizer) Phonemize(voice, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}

	return text, nil
}

func (f *fakePhonemizer) SetVoice(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.voices = append(f.voices, name)

	return nil
}

type fakeVocoder struct {
	name   string
	fn     func(context.Context, map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error)
	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *fakeVocoder) Run(ctx context.Context, inputs map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(ctx, inputs)
	}

	return waveform(make([]float32, 8))
}

func (f *fakeVocoder) Name() string { return f.name }

func (f *fakeVocoder) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
}

func (f *fakeVocoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func waveform(samples []float32) (map[string]*onnx.Tensor, error) {
	out, err := onnx.NewTensor(samples, []int64{1, 1, int64(len(samples))})
	if err != nil {
		return nil, err
	}

	return map[string]*onnx.Tensor{"output": out}, nil
}

func testProfile(t *testing.T) VoiceProfile {
	t.Helper()

	cfg, err := tokenizer.ParsePiperConfig([]byte(testVoiceConfig))
	if err != nil {
		t.Fatalf("ParsePiperConfig: %v", err)
	}

	p, err := NewVoiceProfile(Voice{ID: "test", Language: "english"}, "test.onnx", cfg)
	if err != nil {
		t.Fatalf("NewVoiceProfile: %v", err)
	}

	return p
}

// instantSleep records every requested duration and returns at once.
type instantSleep struct {
	poll time.Duration
	log  *eventLog
}

func (s *instantSleep) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if d != s.poll && s.log != nil {
		s.log.add("pause:%s", d)
	}

	return nil
}

var errBoom = errors.New("boom")

func waitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}
