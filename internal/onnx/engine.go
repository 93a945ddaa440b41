package onnx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

const defaultAPIVersion = 23

var (
	ErrRunnerClosed  = errors.New("onnx: runner closed")
	ErrGraphNotFound = errors.New("onnx: graph not found")
)

// GraphRunner is the minimal runner contract required by Engine.
// Tests and alternate runtimes provide their own implementations.
type GraphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Name() string
	Close()
}

// OpenFunc opens a runner for one manifest graph.
type OpenFunc func(meta GraphInfo) (GraphRunner, error)

// Engine owns a set of named graph runners and closes them together.
type Engine struct {
	mu      sync.Mutex
	runners map[string]GraphRunner
	closed  bool
}

// NewEngine opens the named graphs from m (every graph when names is empty)
// with the native ORT runner.
func NewEngine(m *Manifest, cfg RunnerConfig, names ...string) (*Engine, error) {
	return OpenEngine(m, NativeOpener(cfg), names...)
}

// NativeOpener returns an OpenFunc backed by the native ORT runner.
func NativeOpener(cfg RunnerConfig) OpenFunc {
	return func(meta GraphInfo) (GraphRunner, error) {
		r, err := NewRunner(meta, cfg)
		if err != nil {
			return nil, err
		}

		return r, nil
	}
}

// OpenEngine is NewEngine with a caller-supplied opener. Runners opened
// before a failure are closed.
func OpenEngine(m *Manifest, open OpenFunc, names ...string) (*Engine, error) {
	if len(names) == 0 {
		for _, g := range m.Graphs() {
			names = append(names, g.Name)
		}
	}

	if err := m.Require(names...); err != nil {
		return nil, err
	}

	e := &Engine{runners: make(map[string]GraphRunner, len(names))}
	for _, name := range names {
		meta, _ := m.Graph(name)

		r, err := open(meta)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("open graph %q: %w", name, err)
		}

		e.runners[name] = r
	}

	return e, nil
}

// NewEngineWithRunners builds an Engine from externally provided graph runners.
func NewEngineWithRunners(runners map[string]GraphRunner) *Engine {
	internal := make(map[string]GraphRunner, len(runners))
	maps.Copy(internal, runners)

	return &Engine{runners: internal}
}

func (e *Engine) Runner(name string) (GraphRunner, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.runners[name]

	return r, ok
}

// Has reports whether a graph is loaded.
func (e *Engine) Has(name string) bool {
	_, ok := e.Runner(name)
	return ok
}

// Names returns the loaded graph names in sorted order.
func (e *Engine) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slices.Sorted(maps.Keys(e.runners))
}

// Run executes one graph by name.
func (e *Engine) Run(ctx context.Context, name string, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	e.mu.Lock()
	closed := e.closed
	r, ok := e.runners[name]
	e.mu.Unlock()

	if closed {
		return nil, fmt.Errorf("run %q: %w", name, ErrRunnerClosed)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotFound, name)
	}

	return r.Run(ctx, inputs)
}

// Close releases every runner. Safe to call multiple times.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	for _, r := range e.runners {
		r.Close()
	}
}

// Output picks the named output, or the only output when the graph exported
// a different name.
func Output(outputs map[string]*Tensor, name string) (*Tensor, error) {
	if t, ok := outputs[name]; ok {
		return t, nil
	}

	if len(outputs) == 1 {
		for _, t := range outputs {
			return t, nil
		}
	}

	return nil, fmt.Errorf("missing output %q (have %v)", name, slices.Sorted(maps.Keys(outputs)))
}
