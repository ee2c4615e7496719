package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"media-render/internal/codec"
	"media-render/internal/encoder"
	"media-render/internal/hwaccel"
	"media-render/internal/jobstore"
	"media-render/internal/logging"
	"media-render/internal/mediatypes"
	"media-render/internal/memory"
	"media-render/internal/pipeline"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Disabled turns off a stream when used as its codec name.
const Disabled = "none"

// Config holds all render configuration
type Config struct {
	Output string
	Format string
	Start  rational.Rational

	Width     int
	Height    int
	FrameRate rational.Rational

	VideoCodec       string
	VideoOptions     map[string]string
	AudioCodec       string
	AudioOptions     map[string]string
	Audio            codec.AudioSpec
	ContainerOptions map[string]string

	HWAccel       hwaccel.Config
	QueueCapacity int
	DrainPolicy   pipeline.DrainPolicy
	CodecThreads  int

	DatabaseDir string
	MetricsAddr string

	// Derived paths
	DatabasePath string

	// HistoryEnabled is false when the database directory is unusable.
	HistoryEnabled bool
}

// Defaults
const (
	defaultFormat     = "mp4"
	defaultWidth      = 1280
	defaultHeight     = 720
	defaultFrameRate  = "25"
	defaultVideoCodec = "libx264"
	defaultAudioCodec = "aac"
	defaultSampleRate = 48000
	defaultChannels   = 2
	defaultQueueCap   = 8
)

// LoadConfig reads the configuration from environment variables. Invalid
// values are logged and replaced by their defaults.
func LoadConfig() *Config {
	c := &Config{
		Output:           os.Getenv("RENDER_OUTPUT"),
		Format:           os.Getenv("RENDER_FORMAT"),
		Start:            getEnvRational("RENDER_START", rational.Zero),
		Width:            getEnvInt("RENDER_WIDTH", defaultWidth),
		Height:           getEnvInt("RENDER_HEIGHT", defaultHeight),
		FrameRate:        getEnvRational("RENDER_FPS", rational.MustNew(25, 1)),
		VideoCodec:       getEnv("VIDEO_CODEC", defaultVideoCodec),
		VideoOptions:     getEnvOptions("VIDEO_CODEC_OPTIONS"),
		AudioCodec:       getEnv("AUDIO_CODEC", defaultAudioCodec),
		AudioOptions:     getEnvOptions("AUDIO_CODEC_OPTIONS"),
		ContainerOptions: getEnvOptions("CONTAINER_OPTIONS"),
		QueueCapacity:    getEnvInt("QUEUE_CAPACITY", defaultQueueCap),
		CodecThreads:     getEnvInt("CODEC_THREADS", 0),
		MetricsAddr:      os.Getenv("METRICS_ADDR"),
	}

	c.Audio = codec.AudioSpec{
		SampleRate: getEnvInt("AUDIO_SAMPLE_RATE", defaultSampleRate),
		Channels:   getEnvInt("AUDIO_CHANNELS", defaultChannels),
		Format:     codec.SampleFormatFLTP,
	}
	if s := os.Getenv("AUDIO_SAMPLE_FORMAT"); s != "" {
		if f, err := codec.ParseSampleFormat(s); err == nil {
			c.Audio.Format = f
		} else {
			logging.Warn("Invalid AUDIO_SAMPLE_FORMAT %q, using default: %s", s, c.Audio.Format)
		}
	}

	if c.FrameRate.Sign() <= 0 {
		logging.Warn("RENDER_FPS must be positive, using default: %s", defaultFrameRate)
		c.FrameRate = rational.MustNew(25, 1)
	}
	if c.Start.Sign() < 0 {
		logging.Warn("RENDER_START must not be negative, starting at 0")
		c.Start = rational.Zero
	}

	mode, err := hwaccel.ParseMode(os.Getenv("HW_MODE"))
	if err != nil {
		logging.Warn("Invalid HW_MODE: %v, using software", err)
	}
	c.HWAccel = hwaccel.Config{Mode: mode, Device: getEnv("HW_ACCEL", "auto")}

	policy, err := pipeline.ParseDrainPolicy(os.Getenv("DRAIN_ON_CANCEL"))
	if err != nil {
		logging.Warn("Invalid DRAIN_ON_CANCEL: %v, using %s", err, policy)
	}
	c.DrainPolicy = policy

	c.DatabaseDir = getEnv("DATABASE_DIR", defaultDatabaseDir())
	if abs, err := filepath.Abs(c.DatabaseDir); err == nil {
		c.DatabaseDir = abs
	}
	c.DatabasePath = filepath.Join(c.DatabaseDir, jobstore.FileName)
	return c
}

func defaultDatabaseDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "media-render")
	}
	return ".media-render"
}

// PrepareDatabaseDir creates the database directory and checks that it is
// writable. History is disabled, not fatal, when it is not.
func (c *Config) PrepareDatabaseDir() {
	c.HistoryEnabled = setupOptionalDir(c.DatabaseDir, "database")
}

// OutputPath returns the configured output, or the profile id with the
// container's extension next to the profile file.
func (c *Config) OutputPath(profilePath string, r *profile.Render) string {
	if c.Output != "" {
		return c.Output
	}
	name := r.ID
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(profilePath), filepath.Ext(profilePath))
	}
	return filepath.Join(filepath.Dir(profilePath), name+mediatypes.Extension(c.ContainerFormat("")))
}

// ContainerFormat returns RENDER_FORMAT when set, otherwise the format implied
// by path's extension, otherwise mp4.
func (c *Config) ContainerFormat(path string) string {
	if c.Format != "" {
		return c.Format
	}
	if ct, ok := mediatypes.ForPath(path); ok {
		return ct.Format
	}
	return defaultFormat
}

// EncoderConfig builds the output description for r. A stream is omitted
// when its codec is disabled or no layer contributes to it. Audio-only
// containers never get a video stream.
func (c *Config) EncoderConfig(path string, r *profile.Render) encoder.Config {
	format := c.ContainerFormat(path)
	ct, known := mediatypes.ForFormat(format)
	out := encoder.Config{
		Path:             path,
		Format:           format,
		ContainerOptions: c.ContainerOptions,
		Threads:          c.CodecThreads,
	}
	if r.HasVideo() && !strings.EqualFold(c.VideoCodec, Disabled) && !(known && ct.AudioOnly) {
		out.Video = &encoder.VideoConfig{
			Codec:     c.VideoCodec,
			Options:   c.VideoOptions,
			Width:     c.Width,
			Height:    c.Height,
			FrameRate: c.FrameRate,
		}
	}
	if r.HasAudio() && !strings.EqualFold(c.AudioCodec, Disabled) {
		out.Audio = &encoder.AudioConfig{
			Codec:   c.AudioCodec,
			Options: c.AudioOptions,
			Spec:    c.Audio,
		}
	}
	return out
}

// LogConfig prints the banner, system information and the configuration.
func LogConfig(c *Config) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  RENDER_OUTPUT:       %s", valueOr(c.Output, "(next to profile)"))
	logging.Info("  RENDER_FORMAT:       %s", valueOr(c.Format, "(from output extension)"))
	logging.Info("  RENDER_START:        %s", c.Start)
	logging.Info("  RENDER_SIZE:         %dx%d @ %s fps", c.Width, c.Height, c.FrameRate)
	logging.Info("  VIDEO_CODEC:         %s %s", c.VideoCodec, encoder.FormatOptions(c.VideoOptions))
	logging.Info("  AUDIO_CODEC:         %s %s", c.AudioCodec, encoder.FormatOptions(c.AudioOptions))
	logging.Info("  AUDIO:               %s", c.Audio)
	logging.Info("  HW_ACCEL:            %s (%s)", c.HWAccel.Device, c.HWAccel.Mode)
	logging.Info("  QUEUE_CAPACITY:      %d", c.QueueCapacity)
	logging.Info("  DRAIN_ON_CANCEL:     %s", c.DrainPolicy)
	logging.Info("  CODEC_THREADS:       %s", threadsString(c.CodecThreads))
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  METRICS_ADDR:        %s", valueOr(c.MetricsAddr, "(disabled)"))
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    History:     %s", enabledString(c.HistoryEnabled))
	logging.Info("    Metrics:     %s", enabledString(c.MetricsAddr != ""))
	logging.Info("    Hardware:    %s", enabledString(c.HWAccel.Mode != hwaccel.Software))
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(r memory.ConfigResult) {
	switch r.Source {
	case "GOMEMLIMIT":
		logging.Info("  Memory limit: %s (GOMEMLIMIT)", formatBytes(r.GoMemLimit))
	case "MEMORY_LIMIT":
		logging.Info("  Memory limit: %s of %s container limit (ratio %.2f)",
			formatBytes(r.GoMemLimit), formatBytes(r.ContainerLimit), r.Ratio)
	default:
		logging.Debug("  Memory limit: not configured")
	}
}

// LogJobStarted logs the start of a render.
func LogJobStarted(id, profileID, output string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RENDER %s", profileID)
	logging.Info("------------------------------------------------------------")
	if id != "" {
		logging.Info("  Job:    %s", id)
	}
	logging.Info("  Output: %s", output)
}

// LogJobFinished logs the end of a render.
func LogJobFinished(status jobstore.Status, frames int64, duration time.Duration) {
	logging.Info("  [%s] %d frames in %v", strings.ToUpper(string(status)), frames, duration.Round(time.Millisecond))
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ___         ___         ____                 __
   /  |/  /__  ____/ (_)___ _  / __ \___  ____  ____/ /__  _____
  / /|_/ / _ \/ __  / / __ '/ / /_/ / _ \/ __ \/ __  / _ \/ ___/
 / /  / /  __/ /_/ / / /_/ / / _, _/  __/ / / / /_/ /  __/ /
/_/  /_/\___/\__,_/_/\__,_/ /_/ |_|\___/_/ /_/\__,_/\___/_/

------------------------------------------------------------`
	fmt.Fprintln(os.Stderr, banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func threadsString(n int) string {
	if n <= 0 {
		return "auto"
	}
	return strconv.Itoa(n)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvRational(key string, defaultValue rational.Rational) rational.Rational {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := rational.Parse(value)
	if err != nil {
		logging.Warn("Invalid value for %s: %q, using default: %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvOptions(key string) map[string]string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	opts, err := encoder.ParseOptions(value)
	if err != nil {
		logging.Warn("Invalid %s: %v, ignoring", key, err)
		return nil
	}
	return opts
}
