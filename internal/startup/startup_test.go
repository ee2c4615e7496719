package startup

import (
	"os"
	"path/filepath"
	"testing"

	"media-render/internal/codec"
	"media-render/internal/hwaccel"
	"media-render/internal/pipeline"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

// configEnv lists every variable LoadConfig reads.
var configEnv = []string{
	"RENDER_OUTPUT", "RENDER_FORMAT", "RENDER_START", "RENDER_WIDTH", "RENDER_HEIGHT", "RENDER_FPS",
	"VIDEO_CODEC", "VIDEO_CODEC_OPTIONS", "AUDIO_CODEC", "AUDIO_CODEC_OPTIONS", "CONTAINER_OPTIONS",
	"AUDIO_SAMPLE_RATE", "AUDIO_CHANNELS", "AUDIO_SAMPLE_FORMAT", "HW_ACCEL", "HW_MODE",
	"QUEUE_CAPACITY", "DRAIN_ON_CANCEL", "CODEC_THREADS", "DATABASE_DIR", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DIR", t.TempDir())

	c := LoadConfig()

	if c.Format != "" {
		t.Errorf("Expected format to be inferred, got %s", c.Format)
	}
	if c.Width != 1280 || c.Height != 720 {
		t.Errorf("Expected 1280x720, got %dx%d", c.Width, c.Height)
	}
	if !c.FrameRate.Equal(rational.FromInt(25)) {
		t.Errorf("Expected 25 fps, got %s", c.FrameRate)
	}
	if c.VideoCodec != "libx264" || c.AudioCodec != "aac" {
		t.Errorf("Expected libx264/aac, got %s/%s", c.VideoCodec, c.AudioCodec)
	}
	want := codec.AudioSpec{SampleRate: 48000, Channels: 2, Format: codec.SampleFormatFLTP}
	if c.Audio != want {
		t.Errorf("Expected %s, got %s", want, c.Audio)
	}
	if c.HWAccel.Mode != hwaccel.Software || c.HWAccel.Device != "auto" {
		t.Errorf("Expected software/auto, got %s/%s", c.HWAccel.Mode, c.HWAccel.Device)
	}
	if c.DrainPolicy != pipeline.DrainAlways {
		t.Errorf("Expected drain always, got %s", c.DrainPolicy)
	}
	if c.QueueCapacity != 8 {
		t.Errorf("Expected queue capacity 8, got %d", c.QueueCapacity)
	}
	if filepath.Base(c.DatabasePath) != "jobs.db" {
		t.Errorf("Expected jobs.db, got %s", c.DatabasePath)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RENDER_FORMAT", "matroska")
	t.Setenv("RENDER_START", "1.5")
	t.Setenv("RENDER_WIDTH", "1920")
	t.Setenv("RENDER_HEIGHT", "1080")
	t.Setenv("RENDER_FPS", "30000/1001")
	t.Setenv("VIDEO_CODEC_OPTIONS", "preset=fast, crf=20")
	t.Setenv("AUDIO_SAMPLE_FORMAT", "s16")
	t.Setenv("AUDIO_CHANNELS", "1")
	t.Setenv("HW_MODE", "copy")
	t.Setenv("HW_ACCEL", "vaapi")
	t.Setenv("DRAIN_ON_CANCEL", "skip")
	t.Setenv("QUEUE_CAPACITY", "16")
	t.Setenv("CODEC_THREADS", "4")
	t.Setenv("DATABASE_DIR", t.TempDir())

	c := LoadConfig()

	if c.Format != "matroska" {
		t.Errorf("Expected matroska, got %s", c.Format)
	}
	if !c.Start.Equal(rational.MustNew(3, 2)) {
		t.Errorf("Expected start 3/2, got %s", c.Start)
	}
	if c.Width != 1920 || c.Height != 1080 {
		t.Errorf("Expected 1920x1080, got %dx%d", c.Width, c.Height)
	}
	if !c.FrameRate.Equal(rational.MustNew(30000, 1001)) {
		t.Errorf("Expected 30000/1001, got %s", c.FrameRate)
	}
	if c.VideoOptions["preset"] != "fast" || c.VideoOptions["crf"] != "20" {
		t.Errorf("Unexpected video options: %v", c.VideoOptions)
	}
	if c.Audio.Format != codec.SampleFormatS16 || c.Audio.Channels != 1 {
		t.Errorf("Expected s16 mono, got %s", c.Audio)
	}
	if c.HWAccel.Mode != hwaccel.HardwareCopy || c.HWAccel.Device != "vaapi" {
		t.Errorf("Expected hardware copy on vaapi, got %s on %s", c.HWAccel.Mode, c.HWAccel.Device)
	}
	if c.DrainPolicy != pipeline.SkipDrainOnCancel {
		t.Errorf("Expected skip drain, got %s", c.DrainPolicy)
	}
	if c.QueueCapacity != 16 || c.CodecThreads != 4 {
		t.Errorf("Expected queue 16 and 4 threads, got %d and %d", c.QueueCapacity, c.CodecThreads)
	}
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("RENDER_WIDTH", "wide")
	t.Setenv("RENDER_FPS", "0")
	t.Setenv("RENDER_START", "-2")
	t.Setenv("AUDIO_SAMPLE_FORMAT", "s24")
	t.Setenv("HW_MODE", "turbo")
	t.Setenv("DRAIN_ON_CANCEL", "sometimes")
	t.Setenv("VIDEO_CODEC_OPTIONS", "=broken")
	t.Setenv("DATABASE_DIR", t.TempDir())

	c := LoadConfig()

	if c.Width != 1280 {
		t.Errorf("Expected default width, got %d", c.Width)
	}
	if !c.FrameRate.Equal(rational.FromInt(25)) {
		t.Errorf("Expected default fps, got %s", c.FrameRate)
	}
	if !c.Start.IsZero() {
		t.Errorf("Expected start 0, got %s", c.Start)
	}
	if c.Audio.Format != codec.SampleFormatFLTP {
		t.Errorf("Expected fltp, got %s", c.Audio.Format)
	}
	if c.HWAccel.Mode != hwaccel.Software {
		t.Errorf("Expected software, got %s", c.HWAccel.Mode)
	}
	if c.DrainPolicy != pipeline.DrainAlways {
		t.Errorf("Expected drain always, got %s", c.DrainPolicy)
	}
	if c.VideoOptions != nil {
		t.Errorf("Expected no video options, got %v", c.VideoOptions)
	}
}

func TestPrepareDatabaseDir(t *testing.T) {
	t.Run("creates directory", func(t *testing.T) {
		c := &Config{DatabaseDir: filepath.Join(t.TempDir(), "db")}
		c.PrepareDatabaseDir()
		if !c.HistoryEnabled {
			t.Error("Expected history to be enabled")
		}
	})
	t.Run("file in the way", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db")
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		c := &Config{DatabaseDir: path}
		c.PrepareDatabaseDir()
		if c.HistoryEnabled {
			t.Error("Expected history to be disabled")
		}
	})
}

func TestOutputPath(t *testing.T) {
	r := &profile.Render{ID: "promo"}
	tests := []struct {
		name    string
		output  string
		profile string
		r       *profile.Render
		want    string
	}{
		{"explicit", "/out/x.mov", "/p/promo.json", r, "/out/x.mov"},
		{"from profile id", "", "/p/profile.json", r, "/p/promo.mp4"},
		{"from file name", "", "/p/teaser.json", &profile.Render{}, "/p/teaser.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Output: tt.output}
			if got := c.OutputPath(tt.profile, tt.r); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestOutputPathUsesContainerExtension(t *testing.T) {
	c := &Config{Format: "matroska"}
	if got := c.OutputPath("/p/a.json", &profile.Render{ID: "promo"}); got != "/p/promo.mkv" {
		t.Errorf("Expected /p/promo.mkv, got %s", got)
	}
}

func TestContainerFormat(t *testing.T) {
	tests := []struct {
		name   string
		format string
		path   string
		want   string
	}{
		{"explicit wins", "mpegts", "out.mkv", "mpegts"},
		{"from extension", "", "out.mkv", "matroska"},
		{"audio extension", "", "out.m4a", "ipod"},
		{"unknown extension", "", "out.bin", "mp4"},
		{"no path", "", "", "mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Format: tt.format}
			if got := c.ContainerFormat(tt.path); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEncoderConfigAudioOnlyContainer(t *testing.T) {
	r := &profile.Render{Atoms: []profile.Atom{{Layers: []profile.Layer{{Video: true, Audio: true}}}}}
	c := &Config{
		VideoCodec: "libx264", AudioCodec: "aac", FrameRate: rational.FromInt(25),
		Audio: codec.AudioSpec{SampleRate: 48000, Channels: 2, Format: codec.SampleFormatFLTP},
	}
	out := c.EncoderConfig("/out/mix.m4a", r)
	if out.Format != "ipod" {
		t.Errorf("Expected ipod, got %s", out.Format)
	}
	if out.Video != nil {
		t.Error("Expected no video stream in an audio-only container")
	}
	if out.Audio == nil {
		t.Error("Expected an audio stream")
	}
}

func TestEncoderConfig(t *testing.T) {
	both := &profile.Render{Atoms: []profile.Atom{{Layers: []profile.Layer{{Video: true, Audio: true}}}}}
	videoOnly := &profile.Render{Atoms: []profile.Atom{{Layers: []profile.Layer{{Video: true}}}}}

	tests := []struct {
		name       string
		r          *profile.Render
		videoCodec string
		audioCodec string
		wantVideo  bool
		wantAudio  bool
	}{
		{"both streams", both, "libx264", "aac", true, true},
		{"no audio layers", videoOnly, "libx264", "aac", true, false},
		{"video disabled", both, "none", "aac", false, true},
		{"audio disabled", both, "libx264", "NONE", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Format: "mp4", Width: 640, Height: 360, FrameRate: rational.FromInt(30),
				VideoCodec: tt.videoCodec, AudioCodec: tt.audioCodec,
				Audio:        codec.AudioSpec{SampleRate: 44100, Channels: 2, Format: codec.SampleFormatFLTP},
				CodecThreads: 2,
			}
			out := c.EncoderConfig("o.mp4", tt.r)
			if (out.Video != nil) != tt.wantVideo {
				t.Errorf("Expected video=%v, got %v", tt.wantVideo, out.Video != nil)
			}
			if (out.Audio != nil) != tt.wantAudio {
				t.Errorf("Expected audio=%v, got %v", tt.wantAudio, out.Audio != nil)
			}
			if out.Video != nil && (out.Video.Width != 640 || !out.Video.FrameRate.Equal(rational.FromInt(30))) {
				t.Errorf("Unexpected video config: %+v", out.Video)
			}
			if out.Threads != 2 || out.Path != "o.mp4" || out.Format != "mp4" {
				t.Errorf("Unexpected container config: %+v", out)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STARTUP_INT", "12")
	t.Setenv("TEST_STARTUP_NEG", "-3")
	t.Setenv("TEST_STARTUP_STR", "custom")
	t.Setenv("TEST_STARTUP_EMPTY", "")

	if got := getEnvInt("TEST_STARTUP_INT", 1); got != 12 {
		t.Errorf("Expected 12, got %d", got)
	}
	if got := getEnvInt("TEST_STARTUP_NEG", 1); got != 1 {
		t.Errorf("Expected default for a negative value, got %d", got)
	}
	if got := getEnv("TEST_STARTUP_STR", "default"); got != "custom" {
		t.Errorf("Expected custom, got %s", got)
	}
	if got := getEnv("TEST_STARTUP_EMPTY", "default"); got != "default" {
		t.Errorf("Expected default for an empty value, got %s", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}
