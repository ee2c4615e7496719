package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_queue_depth",
			Help: "Number of rendered units waiting for the encoder",
		},
	)

	UnitsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_units_enqueued_total",
			Help: "Total number of rendered units handed to the encode queue",
		},
		[]string{"kind"}, // "video", "audio"
	)

	UnitsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_render_units_discarded_total",
			Help: "Total number of queued units dropped without encoding on cancellation",
		},
	)

	QueueWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_render_queue_wait_duration_seconds",
			Help:    "Time spent waiting on a queue gate",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"side"}, // "producer", "consumer"
	)
)

// Decode metrics
var (
	DecodeResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_decode_results_total",
			Help: "Total number of timeline decode steps by result code",
		},
		[]string{"code"},
	)

	LayerLoops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_render_layer_loops_total",
			Help: "Total number of times a layer source wrapped back to its trim start",
		},
	)

	AtomsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_render_atoms_opened_total",
			Help: "Total number of atoms whose layer sources were opened",
		},
	)

	HWAccelFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_hwaccel_fallbacks_total",
			Help: "Total number of times hardware acceleration fell back to software",
		},
		[]string{"stage"}, // "device", "decoder", "encoder"
	)

	HWAccelMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_render_hwaccel_mode",
			Help: "Active acceleration mode (1 for the selected mode)",
		},
		[]string{"mode"},
	)
)

// Render metrics
var (
	FramesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_frames_rendered_total",
			Help: "Total number of output units produced by the renderer",
		},
		[]string{"kind"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_render_render_duration_seconds",
			Help:    "Time taken to compose or mix one output unit",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"kind"},
	)
)

// Encoder metrics
var (
	PacketsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_packets_written_total",
			Help: "Total number of packets written to the output container",
		},
		[]string{"kind"},
	)

	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_bytes_written_total",
			Help: "Total number of payload bytes written to the output container",
		},
		[]string{"kind"},
	)

	EncodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_encode_errors_total",
			Help: "Total number of units dropped because the encoder rejected them",
		},
		[]string{"kind"},
	)

	EncoderStalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_encoder_stalls_total",
			Help: "Total number of sends refused until output was drained",
		},
		[]string{"kind"},
	)
)

// Job metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_jobs_total",
			Help: "Total number of render jobs by final status",
		},
		[]string{"status"}, // "success", "error", "canceled"
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_render_job_duration_seconds",
			Help:    "Render job wall-clock duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	JobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_jobs_in_progress",
			Help: "Number of render jobs currently running",
		},
	)

	JobProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_job_progress_ratio",
			Help: "Fraction of the current timeline that has been rendered",
		},
	)

	JobHistoryTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_render_job_history",
			Help: "Number of jobs recorded in the job store by status",
		},
		[]string{"status"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_render_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_render_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume and operation",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts after stale file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_render_filesystem_retry_duration_seconds",
			Help:    "Total time spent in a filesystem operation including retries",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_render_filesystem_stale_errors_total",
			Help: "Total number of NFS stale file handle errors",
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_memory_paused",
			Help: "Whether production is paused due to memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_render_memory_gc_pauses_total",
			Help: "Total number of times production paused for memory pressure",
		},
	)

	GoMemLimit = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_render_go_memlimit_bytes",
			Help: "Configured GOMEMLIMIT in bytes (0 when unset)",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_render_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
