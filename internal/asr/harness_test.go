package asr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/go-speechkit/internal/onnx"
	"github.com/example/go-speechkit/internal/tokenizer"
)

// testVocab decodes the script used by most tests to "Hello world.".
var testVocab = map[string]int{"H": 0, "ello": 1, "Ġworld": 2, ".": 3, "x": 4}

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

type graphRunner struct {
	name    string
	session int
	log     *eventLog
	fn      func(ctx context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error)
	mu      sync.Mutex
	closed  bool
}

func (g *graphRunner) Run(ctx context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
	return g.fn(ctx, in)
}

func (g *graphRunner) Name() string { return g.name }

func (g *graphRunner) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		g.closed = true
		g.log.add("close:%s#%d", g.name, g.session)
	}
}

// harness fakes the four Whisper graphs. decoder2 emits script[step] as
// its argmax; once the script runs out it repeats the last entry.
type harness struct {
	t      *testing.T
	log    *eventLog
	script []int64

	// per-session hooks, keyed by session number starting at 1
	decoder1Hook map[int]func(ctx context.Context) error
	decoder2Err  map[int]error // keyed by decode step
	encoderErr   error

	mu         sync.Mutex
	sessions   int
	runners    []*graphRunner
	steps      int
	d1Lengths  []int
	d2Tokens   []int64
	audioShape []int64
}

func newHarness(t *testing.T, script ...int64) *harness {
	return &harness{
		t:            t,
		log:          &eventLog{},
		script:       script,
		decoder1Hook: map[int]func(context.Context) error{},
		decoder2Err:  map[int]error{},
	}
}

func (h *harness) open(meta onnx.GraphInfo) (onnx.GraphRunner, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if meta.Name == GraphSpectrogram {
		h.sessions++
		h.steps = 0
	}

	session := h.sessions
	h.log.add("open:%s#%d", meta.Name, session)

	g := &graphRunner{name: meta.Name, session: session, log: h.log}

	switch meta.Name {
	case GraphSpectrogram:
		g.fn = func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
			audio, ok := in[spectrogramInput]
			if !ok {
				return nil, fmt.Errorf("missing %q", spectrogramInput)
			}

			h.mu.Lock()
			h.audioShape = audio.Shape()
			h.mu.Unlock()

			return single("log_mel", []float32{1, 2, 3, 4}, 1, 2, 2)
		}
	case GraphEncoder:
		g.fn = func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
			if h.encoderErr != nil {
				return nil, h.encoderErr
			}

			if _, ok := in[encoderInput]; !ok {
				return nil, fmt.Errorf("missing %q", encoderInput)
			}

			return single("last_hidden_state", []float32{0.5, 0.5}, 1, 1, 2)
		}
	case GraphDecoder1:
		g.fn = func(ctx context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
			if hook := h.decoder1Hook[session]; hook != nil {
				if err := hook(ctx); err != nil {
					return nil, err
				}
			}

			if _, ok := in[encoderHiddenStates]; !ok {
				return nil, fmt.Errorf("missing %q", encoderHiddenStates)
			}

			ids := in[inputIDs]
			h.mu.Lock()
			h.d1Lengths = append(h.d1Lengths, int(ids.Shape()[1]))
			h.mu.Unlock()

			return presentOutputs(), nil
		}
	case GraphDecoder2:
		g.fn = func(_ context.Context, in map[string]*onnx.Tensor) (map[string]*onnx.Tensor, error) {
			for i := range DecoderLayers {
				for _, part := range []string{"decoder", "encoder"} {
					for _, kind := range []string{"key", "value"} {
						if _, ok := in[pastName(i, part, kind)]; !ok {
							return nil, fmt.Errorf("missing %q", pastName(i, part, kind))
						}
					}
				}
			}

			last, err := onnx.ExtractInt64(in[inputIDs])
			if err != nil {
				return nil, err
			}

			h.mu.Lock()
			h.steps++
			step := h.steps
			h.d2Tokens = append(h.d2Tokens, last...)
			h.mu.Unlock()

			if err := h.decoder2Err[step]; err != nil {
				return nil, err
			}

			next := h.script[min(step, len(h.script))-1]

			return logits(next)
		}
	default:
		return nil, fmt.Errorf("unexpected graph %q", meta.Name)
	}

	h.runners = append(h.runners, g)

	return g, nil
}

func (h *harness) allClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.runners {
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()

		if !closed {
			return false
		}
	}

	return true
}

func (h *harness) recognizer(opts ...RecognizerOption) *Recognizer {
	h.t.Helper()

	vocab, err := tokenizer.NewWhisperVocab(testVocab)
	if err != nil {
		h.t.Fatalf("NewWhisperVocab: %v", err)
	}

	r, err := NewRecognizer(writeManifest(h.t), h.open, vocab, opts...)
	if err != nil {
		h.t.Fatalf("NewRecognizer: %v", err)
	}

	h.t.Cleanup(r.Close)

	return r
}

func writeManifest(t *testing.T, graphs ...string) *onnx.Manifest {
	t.Helper()

	if len(graphs) == 0 {
		graphs = requiredGraphs
	}

	dir := t.TempDir()
	entries := ""
	for i, g := range graphs {
		if err := os.WriteFile(filepath.Join(dir, g+".onnx"), []byte("onnx"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		if i > 0 {
			entries += ","
		}
		entries += fmt.Sprintf(`{"name":%q,"filename":%q}`, g, g+".onnx")
	}

	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(`{"graphs":[`+entries+`]}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := onnx.LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	return m
}

func single(name string, data []float32, shape ...int64) (map[string]*onnx.Tensor, error) {
	t, err := onnx.NewTensor(data, shape)
	if err != nil {
		return nil, err
	}

	return map[string]*onnx.Tensor{name: t}, nil
}

func presentOutputs() map[string]*onnx.Tensor {
	out := map[string]*onnx.Tensor{}
	for i := range DecoderLayers {
		for _, part := range []string{"decoder", "encoder"} {
			for _, kind := range []string{"key", "value"} {
				t, _ := onnx.NewTensor([]float32{float32(i)}, []int64{1, 1, 1, 1})
				out[presentName(i, part, kind)] = t
			}
		}
	}

	return out
}

func logits(index int64) (map[string]*onnx.Tensor, error) {
	row := make([]float32, LogitsWidth)
	row[index] = 1

	return single(logitsOutput, row, 1, 1, LogitsWidth)
}
