// Package startup handles configuration loading, build information and the
// banner and summary logging of the render command.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig].
// Invalid values are logged and replaced by their defaults:
//
//   - RENDER_OUTPUT: Output file (default: <profile id>.<format> next to the profile)
//   - RENDER_FORMAT: Container format (default: from the output extension, else mp4)
//   - RENDER_START: Timeline position to start at, in seconds (default: 0)
//   - RENDER_WIDTH, RENDER_HEIGHT: Output geometry (default: 1280x720)
//   - RENDER_FPS: Output frame rate, integer, decimal or num/den (default: 25)
//   - VIDEO_CODEC, AUDIO_CODEC: Encoder names, "none" disables the stream
//     (default: libx264, aac)
//   - VIDEO_CODEC_OPTIONS, AUDIO_CODEC_OPTIONS, CONTAINER_OPTIONS: k=v,k2=v2
//   - AUDIO_SAMPLE_RATE, AUDIO_CHANNELS, AUDIO_SAMPLE_FORMAT (default: 48000, 2, fltp)
//   - HW_ACCEL: auto, nvidia, vaapi, videotoolbox, qsv or none (default: auto)
//   - HW_MODE: software, hardware-native or hardware-copy (default: software)
//   - QUEUE_CAPACITY: Encode queue bound (default: 8)
//   - DRAIN_ON_CANCEL: always or skip (default: always)
//   - CODEC_THREADS: Encoder threads, 0 for automatic (default: 0)
//   - DATABASE_DIR: Job history directory (default: user cache dir)
//   - METRICS_ADDR: Prometheus listen address, empty disables (default: empty)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see the memory package
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//
//	go build -ldflags "-X media-render/internal/startup.Version=1.2.0"
package startup
