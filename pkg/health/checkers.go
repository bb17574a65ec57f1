package health

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck returns a CheckFunc that fails when the goroutine
// count exceeds threshold. Useful as a liveness check for leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// DirWritableCheck returns a CheckFunc that verifies dir accepts writes
// by creating and removing a probe file. Useful as a readiness check for
// the artifact directories.
func DirWritableCheck(dir string) CheckFunc {
	return func(_ context.Context) error {
		probe := filepath.Join(dir, ".healthprobe")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			return errors.Wrapf(err, "write probe in %s", dir)
		}
		if err := os.Remove(probe); err != nil {
			return errors.Wrapf(err, "remove probe in %s", dir)
		}
		return nil
	}
}
