package onnx

import (
	"context"
	"fmt"
)

const (
	ArgMaxGraphName = "argmax"
	ArgMaxInput     = "logits"
	ArgMaxOutput    = "index"
)

// ArgMaxRunner selects the highest-scoring entry of the last row of a logits
// tensor. It stands in for a dedicated argmax graph when a model set ships
// without one.
type ArgMaxRunner struct{}

func (ArgMaxRunner) Name() string { return ArgMaxGraphName }

func (ArgMaxRunner) Close() {}

func (ArgMaxRunner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logits, ok := inputs[ArgMaxInput]
	if !ok {
		return nil, fmt.Errorf("argmax: missing input %q", ArgMaxInput)
	}

	shape := logits.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("argmax: logits must have at least one dimension")
	}

	data, err := ExtractFloat32(logits)
	if err != nil {
		return nil, fmt.Errorf("argmax: %w", err)
	}

	width := int(shape[len(shape)-1])
	if width == 0 || len(data) < width {
		return nil, fmt.Errorf("argmax: empty logits row (shape %v)", shape)
	}

	row := data[len(data)-width:]
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}

	out, err := NewTensor([]int64{int64(best)}, []int64{1})
	if err != nil {
		return nil, err
	}

	return map[string]*Tensor{ArgMaxOutput: out}, nil
}
