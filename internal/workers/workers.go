package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvCodecThreads overrides the computed thread count for every codec.
const EnvCodecThreads = "CODEC_THREADS"

// MaxCodecThreads caps a single codec context. libav codecs rarely scale
// past this and each thread holds its own frame buffers.
const MaxCodecThreads = 16

// Count returns a thread count for the given multiplier of available CPUs.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The limit parameter caps the result. Use 0 for no limit.
//
// Can be overridden with the CODEC_THREADS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvCodecThreads); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	n := int(float64(available) * multiplier)

	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU returns one thread per available CPU, capped at limit.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForDecoders splits the CPU budget between decoders that run at the same
// time, one per active layer stream. Every decoder gets at least one thread.
func ForDecoders(concurrent int) int {
	if concurrent < 1 {
		concurrent = 1
	}
	if override := os.Getenv(EnvCodecThreads); override != "" {
		return Count(1.0, MaxCodecThreads)
	}
	n := ForCPU(0) / concurrent
	if n < 1 {
		n = 1
	}
	if n > MaxCodecThreads {
		n = MaxCodecThreads
	}
	return n
}

// ForEncoder returns the thread count for an output encoder.
func ForEncoder() int {
	return ForCPU(MaxCodecThreads)
}
