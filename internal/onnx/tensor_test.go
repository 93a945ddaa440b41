package onnx

import (
	"reflect"
	"strings"
	"testing"
)

func TestNewTensor(t *testing.T) {
	t.Run("float32 ok", func(t *testing.T) {
		tt, err := NewTensor([]float32{1, 2, 3, 4}, []int64{2, 2})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}

		if tt.DType() != DTypeFloat32 {
			t.Fatalf("expected dtype float32, got %s", tt.DType())
		}

		if !reflect.DeepEqual(tt.Shape(), []int64{2, 2}) {
			t.Fatalf("unexpected shape: %v", tt.Shape())
		}

		got, err := ExtractFloat32(tt)
		if err != nil {
			t.Fatalf("ExtractFloat32 failed: %v", err)
		}

		if !reflect.DeepEqual(got, []float32{1, 2, 3, 4}) {
			t.Fatalf("unexpected data: %v", got)
		}
	})

	t.Run("int64 scalar", func(t *testing.T) {
		tt, err := NewTensor([]int64{7}, nil)
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if tt.DType() != DTypeInt64 || tt.Len() != 1 {
			t.Fatalf("unexpected scalar tensor: %s len=%d", tt.DType(), tt.Len())
		}
	})

	t.Run("empty dimension", func(t *testing.T) {
		tt, err := NewTensor([]float32{}, []int64{1, 0})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if tt.Len() != 0 {
			t.Fatalf("Len() = %d, want 0", tt.Len())
		}
	})

	t.Run("shape mismatch", func(t *testing.T) {
		_, err := NewTensor([]int64{1, 2, 3}, []int64{2, 2})
		if err == nil {
			t.Fatal("expected shape mismatch error")
		}

		if !strings.Contains(err.Error(), "expects 4 elements, got 3") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("negative dim", func(t *testing.T) {
		if _, err := NewTensor([]int64{}, []int64{-1}); err == nil {
			t.Fatal("expected error for negative dimension")
		}
	})
}

func TestTensorAccessorsCopy(t *testing.T) {
	tt, err := NewTensor([]int64{1, 2}, []int64{1, 2})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}

	shape := tt.Shape()
	shape[0] = 99
	data, _ := ExtractInt64(tt)
	data[0] = 99
	raw := tt.Data().([]int64)
	raw[1] = 99

	if got := tt.Shape(); got[0] != 1 {
		t.Fatalf("shape mutated: %v", got)
	}
	if got, _ := ExtractInt64(tt); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("data mutated: %v", got)
	}
}

func TestExtractDTypeMismatch(t *testing.T) {
	ft, _ := NewTensor([]float32{1}, []int64{1})
	it, _ := NewTensor([]int64{1}, []int64{1})

	if _, err := ExtractInt64(ft); err == nil {
		t.Error("ExtractInt64(float tensor) should fail")
	}
	if _, err := ExtractFloat32(it); err == nil {
		t.Error("ExtractFloat32(int tensor) should fail")
	}
	if _, err := ExtractFloat32(nil); err == nil {
		t.Error("ExtractFloat32(nil) should fail")
	}
}
