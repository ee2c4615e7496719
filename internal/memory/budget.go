package memory

import (
	"runtime/debug"

	"media-render/internal/logging"
)

// queueShare is the fraction of the memory limit that queued frames may use.
const queueShare = 0.25

// QueueCapacity caps a requested encode queue capacity so that capacity
// units of unitBytes each fit within a quarter of limit. limit <= 0 reads the
// current GOMEMLIMIT. The result is never below 1.
func QueueCapacity(requested int, unitBytes, limit int64) int {
	if requested < 1 {
		requested = 1
	}
	if limit <= 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit <= 0 || unitBytes <= 0 {
		return requested
	}

	allowed := int64(float64(limit)*queueShare) / unitBytes
	if allowed < 1 {
		allowed = 1
	}
	if int64(requested) > allowed {
		logging.Info("Queue capacity %d reduced to %d to fit %s of queued frames",
			requested, allowed, formatBytes(int64(float64(limit)*queueShare)))
		return int(allowed)
	}
	return requested
}
