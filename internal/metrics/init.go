package metrics

// Label sets shared with the packages that record into these metrics.
var (
	kinds         = []string{"video", "audio"}
	decodeCodes   = []string{"ok", "layer_eof", "layer_ended", "stream_ended", "atom_ended", "timeline_ended", "retry", "skip", "error"}
	jobStatuses   = []string{"success", "error", "canceled"}
	hwaccelModes  = []string{"software", "hardware_native", "hardware_copy"}
	hwaccelStages = []string{"device", "decoder", "encoder"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, k := range kinds {
		UnitsEnqueued.WithLabelValues(k)
		FramesRendered.WithLabelValues(k)
		RenderDuration.WithLabelValues(k)
		PacketsWritten.WithLabelValues(k)
		BytesWritten.WithLabelValues(k)
		EncodeErrors.WithLabelValues(k)
		EncoderStalls.WithLabelValues(k)
	}

	for _, side := range []string{"producer", "consumer"} {
		QueueWaitDuration.WithLabelValues(side)
	}

	for _, code := range decodeCodes {
		DecodeResults.WithLabelValues(code)
	}

	for _, m := range hwaccelModes {
		HWAccelMode.WithLabelValues(m)
	}
	for _, s := range hwaccelStages {
		HWAccelFallbacks.WithLabelValues(s)
	}

	for _, s := range jobStatuses {
		JobsTotal.WithLabelValues(s)
		JobHistoryTotal.WithLabelValues(s)
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"sources", "output", "database", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "begin_job", "finish_job", "get_job", "list_jobs", "count_jobs"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}

// SetHWAccelMode marks mode as the active acceleration mode and clears the others.
func SetHWAccelMode(mode string) {
	for _, m := range hwaccelModes {
		v := 0.0
		if m == mode {
			v = 1
		}
		HWAccelMode.WithLabelValues(m).Set(v)
	}
}
