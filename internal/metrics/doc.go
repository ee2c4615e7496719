// Package metrics provides Prometheus instrumentation for media-render.
//
// All metrics are prefixed with "media_render_" and registered through promauto
// at package initialization. Call InitializeMetrics once at startup so every
// label combination is exported from the first scrape.
//
// # Metric Categories
//
// ## Queue Metrics
//
//   - QueueDepth: Gauge of units waiting for the encoder
//   - UnitsEnqueued: Counter of units handed to the queue by kind
//   - UnitsDiscarded: Counter of units dropped on cancellation
//   - QueueWaitDuration: Histogram of gate waits by side (producer/consumer)
//
// ## Decode Metrics
//
//   - DecodeResults: Counter of timeline decode steps by result code
//   - LayerLoops: Counter of layer wraps back to the trim start
//   - AtomsOpened: Counter of atoms whose sources were opened
//   - HWAccelFallbacks: Counter of hardware-to-software fallbacks by stage
//   - HWAccelMode: Gauge set to 1 for the active acceleration mode
//
// ## Render and Encoder Metrics
//
//   - FramesRendered: Counter of composed video frames and mixed audio chunks
//   - RenderDuration: Histogram of compose/mix time per unit
//   - PacketsWritten, BytesWritten: Counters of muxed output by kind
//   - EncodeErrors: Counter of units dropped because the encoder rejected them
//   - EncoderStalls: Counter of sends refused until output was drained
//
// ## Job Metrics
//
//   - JobsTotal: Counter of finished jobs by status
//   - JobDuration: Histogram of job wall-clock time
//   - JobsInProgress: Gauge of running jobs
//   - JobProgress: Gauge of the rendered fraction of the current timeline
//   - JobHistoryTotal: Gauge of stored jobs by status, refreshed by Collector
//
// ## Database, Filesystem and Memory Metrics
//
// DBQueryTotal and DBQueryDuration cover the job store. The Filesystem* metrics
// are recorded through the observer returned by NewFilesystemObserver, which keeps
// the filesystem package free of a metrics import. MemoryUsageRatio, MemoryPaused,
// MemoryGCPauses and GoMemLimit are maintained by the memory package.
//
// # Serving
//
// Listen and Serve expose the default registry on /metrics next to a /healthz
// probe, using a gorilla/mux router. Requests are logged at debug level with
// control characters stripped from client-supplied fields; failures at warn.
package metrics
