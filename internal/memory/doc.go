// Package memory keeps a render job inside its container memory limit.
//
// # Configuration
//
// [ConfigureFromEnv] derives GOMEMLIMIT from the Kubernetes Downward API limit
// and should run first thing in main:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// Environment variables:
//
//   - GOMEMLIMIT: standard Go variable, takes precedence when set.
//   - MEMORY_LIMIT: container limit in bytes, usually from resourceFieldRef limits.memory.
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the Go heap (default 0.75). Decoded
//     frames live partly in libav-owned buffers outside the Go heap, so the default
//     reserves more headroom than a pure Go service would.
//
// # Queue budget
//
// [QueueCapacity] lowers the encode queue capacity when the configured number of
// raw frames would not fit in a quarter of the limit.
//
// # Backpressure
//
// A [Monitor] samples heap usage. Above the critical water mark it pauses the
// producer through [Monitor.WaitIfPaused] until usage drops below the high water
// mark. The consumer never waits on the monitor.
package memory
