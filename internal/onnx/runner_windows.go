//go:build windows

package onnx

import (
	"context"
	"fmt"
)

// RunnerConfig holds ORT library settings for creating runners.
// Native ORT runners are not available in windows builds.
type RunnerConfig struct {
	LibraryPath string
	APIVersion  uint32
}

type Runner struct {
	name string
	meta GraphInfo
}

// NewRunner always returns an error in windows builds.
func NewRunner(meta GraphInfo, _ RunnerConfig) (*Runner, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on windows for graph %q", meta.Name)
}

func (r *Runner) Run(_ context.Context, _ map[string]*Tensor) (map[string]*Tensor, error) {
	return nil, fmt.Errorf("native onnx runner is unavailable on windows for graph %q", r.name)
}

func (r *Runner) Close() {}

func (r *Runner) Name() string {
	return r.name
}

func (r *Runner) Info() GraphInfo {
	return r.meta
}
