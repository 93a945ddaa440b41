// Package doctor provides environment preflight checks for speechkit.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Check is a named probe; its detail string is printed on success.
type Check struct {
	Name string
	Run  func() (string, error)
}

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ORTRuntime reports the ONNX Runtime library in use.
	ORTRuntime VersionFunc
	// EspeakLibrary reports the espeak-ng shared library path.
	EspeakLibrary VersionFunc
	// SkipEspeak skips the phonemizer check (recognition-only setups).
	SkipEspeak bool
	// CPUFeatures lists SIMD extensions; informational only.
	CPUFeatures func() []string
	// ModelFiles are stat'ed and reported with their size.
	ModelFiles []string
	// Checks run after the fixed checks above, in order.
	Checks []Check
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime -----------------------------------------------------
	if cfg.ORTRuntime != nil {
		ver, err := cfg.ORTRuntime()
		if err != nil {
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s onnx runtime: %s\n", PassMark, ver)
		}
	}

	// ---- espeak-ng --------------------------------------------------------
	switch {
	case cfg.SkipEspeak:
		fmt.Fprintf(w, "%s espeak-ng library: skipped\n", PassMark)
	case cfg.EspeakLibrary != nil:
		lib, err := cfg.EspeakLibrary()
		if err != nil {
			res.fail(fmt.Sprintf("espeak-ng library: %v", err))
			fmt.Fprintf(w, "%s espeak-ng library: not found (%v)\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s espeak-ng library: %s\n", PassMark, lib)
		}
	}

	// ---- CPU --------------------------------------------------------------
	if cfg.CPUFeatures != nil {
		features := cfg.CPUFeatures()
		if len(features) == 0 {
			fmt.Fprintf(w, "%s cpu features: none detected\n", PassMark)
		} else {
			fmt.Fprintf(w, "%s cpu features: %s\n", PassMark, strings.Join(features, " "))
		}
	}

	// ---- model files ------------------------------------------------------
	for _, path := range cfg.ModelFiles {
		info, err := os.Stat(path)
		switch {
		case err != nil:
			res.fail(fmt.Sprintf("model file %q: %v", path, err))
			fmt.Fprintf(w, "%s model file %s: not found\n", FailMark, path)
		case info.Size() == 0:
			res.fail(fmt.Sprintf("model file %q: empty", path))
			fmt.Fprintf(w, "%s model file %s: empty\n", FailMark, path)
		default:
			fmt.Fprintf(w, "%s model file: %s (%s)\n", PassMark, path, humanize.Bytes(uint64(info.Size())))
		}
	}

	// ---- extra checks -----------------------------------------------------
	for _, c := range cfg.Checks {
		detail, err := c.Run()
		if err != nil {
			res.fail(fmt.Sprintf("%s: %v", c.Name, err))
			fmt.Fprintf(w, "%s %s: %v\n", FailMark, c.Name, err)
			continue
		}

		fmt.Fprintf(w, "%s %s: %s\n", PassMark, c.Name, detail)
	}

	return res
}
