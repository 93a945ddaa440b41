// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    lib := testutil.RequireONNXRuntime(t)
//	    manifest := testutil.RequireFileEnv(t, "SPEECHKIT_TEST_ASR_MANIFEST")
//	    ...
//	}
package testutil

import (
	"os"
	"testing"
)

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located and returns its path otherwise. It checks (in order): the
// ORT_LIBRARY_PATH env var, then SPEECHKIT_ORT_LIB, then common system
// library paths.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	return requireLibrary(tb, "ONNX Runtime", []string{"ORT_LIBRARY_PATH", "SPEECHKIT_ORT_LIB"}, []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	})
}

// RequireEspeak skips the test if the espeak-ng shared library is absent and
// returns its path otherwise.
func RequireEspeak(tb testing.TB) string {
	tb.Helper()

	return requireLibrary(tb, "espeak-ng", []string{"SPEECHKIT_ESPEAK_LIB", "ESPEAK_NG_LIBRARY"}, []string{
		"/usr/lib/x86_64-linux-gnu/libespeak-ng.so.1",
		"/usr/lib/libespeak-ng.so.1",
		"/usr/local/lib/libespeak-ng.so",
		"/opt/homebrew/lib/libespeak-ng.dylib",
	})
}

// RequireFileEnv skips the test unless the env var names an existing file,
// and returns that path.
func RequireFileEnv(tb testing.TB, env string) string {
	tb.Helper()

	p := os.Getenv(env)
	if p == "" {
		tb.Skipf("%s not set", env)
	}

	if _, err := os.Stat(p); err != nil {
		tb.Skipf("%s=%q not usable: %v", env, p, err)
	}

	return p
}

func requireLibrary(tb testing.TB, what string, envs, candidates []string) string {
	tb.Helper()

	for _, env := range envs {
		if p := os.Getenv(env); p != "" {
			// #nosec G703 -- Integration tests intentionally accept explicit env-provided local library paths.
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("%s library not found at %s=%q", what, env, p)
		}
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("%s shared library not found; set %s", what, envs[0])

	return ""
}
