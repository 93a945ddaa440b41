package asr

import (
	"fmt"

	"github.com/example/go-speechkit/internal/onnx"
)

// DecoderLayers is the number of decoder blocks in whisper-tiny.
const DecoderLayers = 4

// LayerCache holds one decoder block's attention keys and values.
type LayerCache struct {
	DecoderKey   *onnx.Tensor
	DecoderValue *onnx.Tensor
	EncoderKey   *onnx.Tensor
	EncoderValue *onnx.Tensor
}

// DecoderCache is the key/value state decoder1 produces for decoder2. It is
// rebuilt every step and passed by value.
type DecoderCache struct {
	Layers [DecoderLayers]LayerCache
}

func presentName(layer int, part, kind string) string {
	return fmt.Sprintf("present.%d.%s.%s", layer, part, kind)
}

func pastName(layer int, part, kind string) string {
	return fmt.Sprintf("past_key_values.%d.%s.%s", layer, part, kind)
}

// CacheFromOutputs collects the present.* tensors of a decoder1 run.
func CacheFromOutputs(outputs map[string]*onnx.Tensor) (DecoderCache, error) {
	var c DecoderCache

	for i := range DecoderLayers {
		l := &c.Layers[i]
		for _, slot := range []struct {
			part, kind string
			dst        **onnx.Tensor
		}{
			{"decoder", "key", &l.DecoderKey},
			{"decoder", "value", &l.DecoderValue},
			{"encoder", "key", &l.EncoderKey},
			{"encoder", "value", &l.EncoderValue},
		} {
			name := presentName(i, slot.part, slot.kind)

			t, ok := outputs[name]
			if !ok || t == nil {
				return DecoderCache{}, fmt.Errorf("decoder1 output %q missing", name)
			}

			*slot.dst = t
		}
	}

	return c, nil
}

// Feed adds the past_key_values.* inputs to a decoder2 input map.
func (c DecoderCache) Feed(inputs map[string]*onnx.Tensor) {
	for i, l := range c.Layers {
		inputs[pastName(i, "decoder", "key")] = l.DecoderKey
		inputs[pastName(i, "decoder", "value")] = l.DecoderValue
		inputs[pastName(i, "encoder", "key")] = l.EncoderKey
		inputs[pastName(i, "encoder", "value")] = l.EncoderValue
	}
}
