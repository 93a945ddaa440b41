package mic

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSource struct {
	frame  int
	reads  int
	failAt int
	closed bool
}

var errRead = errors.New("overflow")

func (f *fakeSource) Read() ([]float32, error) {
	f.reads++
	if f.failAt > 0 && f.reads == f.failAt {
		return nil, errRead
	}

	out := make([]float32, f.frame)
	for i := range out {
		out[i] = float32(f.reads)
	}

	return out, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func TestCollectTrimsLastFrame(t *testing.T) {
	src := &fakeSource{frame: 512}

	got, err := collect(context.Background(), src, 1200)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(got) != 1200 {
		t.Fatalf("len = %d, want 1200", len(got))
	}

	if src.reads != 3 {
		t.Errorf("reads = %d, want 3", src.reads)
	}

	if got[0] != 1 || got[512] != 2 || got[1199] != 3 {
		t.Errorf("frames out of order: %v %v %v", got[0], got[512], got[1199])
	}
}

func TestCollectReadError(t *testing.T) {
	src := &fakeSource{frame: 10, failAt: 2}

	if _, err := collect(context.Background(), src, 100); !errors.Is(err, errRead) {
		t.Fatalf("error = %v, want errRead", err)
	}
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{frame: 10}
	if _, err := collect(ctx, src, 100); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	if src.reads != 0 {
		t.Errorf("reads = %d after cancel, want 0", src.reads)
	}
}

func TestRecordRejectsNonPositiveDuration(t *testing.T) {
	if _, err := Record(context.Background(), Options{Duration: 0}); err == nil {
		t.Fatal("want error for zero duration")
	}
}

func TestOptionsDefaults(t *testing.T) {
	got := Options{Duration: time.Second}.withDefaults()
	if got.SampleRate != DefaultSampleRate || got.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("withDefaults = %+v", got)
	}

	if !isDefaultDevice("") || !isDefaultDevice("default") || isDefaultDevice("USB Mic") {
		t.Error("isDefaultDevice mismatch")
	}
}
