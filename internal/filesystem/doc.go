/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors, and the preflight checks run before a render job.

# Purpose

Render sources frequently live on network mounts. This package wraps os.Stat and
os.Open with retry logic for transient ESTALE (stale file handle) errors, and uses
them to verify every layer source before any decoder is opened, so a missing clip
fails the job up front instead of midway through the timeline.

# Usage

	if err := filesystem.CheckSources(render.Sources(), filesystem.DefaultRetryConfig()); err != nil {
	    return err
	}
	if err := filesystem.EnsureOutputDir(outputPath); err != nil {
	    return err
	}

# Retry Behavior

The retry logic implements exponential backoff with the following defaults:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

Only NFS stale file handle errors (ESTALE) trigger retries. All other errors
fail immediately without retry attempts.

# Metrics

Operations are reported through the [Observer] set with [SetObserver], labeled
by the volume name resolved with a [VolumeResolver].
*/
package filesystem
