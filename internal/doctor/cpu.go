package doctor

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// CPUFeatures lists the SIMD extensions ONNX Runtime's CPU kernels use.
func CPUFeatures() []string {
	var out []string

	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "neon")
		add(cpu.ARM64.HasFPHP, "fp16")
		add(cpu.ARM64.HasASIMDDP, "dotprod")
	}

	return out
}
