package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"media-render/internal/logging"
)

// CheckSources verifies that every path names a readable regular file.
// All failures are reported together so a profile with several missing
// sources is diagnosed in one pass.
func CheckSources(paths []string, config RetryConfig) error {
	var errs []error
	for _, p := range paths {
		if err := checkSource(p, config); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logging.Debug("Preflight: %d sources readable", len(paths))
	return nil
}

func checkSource(path string, config RetryConfig) error {
	info, err := StatWithRetry(path, config)
	if err != nil {
		return fmt.Errorf("source %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("source %s: not a regular file", path)
	}
	f, err := OpenWithRetry(path, config)
	if err != nil {
		return fmt.Errorf("source %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		logging.Warn("failed to close %s after preflight: %v", path, err)
	}
	return nil
}

// EnsureOutputDir creates the parent directory of an output file and checks
// that it is writable.
func EnsureOutputDir(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		logging.Warn("failed to close write test file %s: %v", name, err)
	}
	if err := os.Remove(name); err != nil {
		logging.Warn("failed to remove write test file %s: %v", name, err)
	}
	return nil
}
