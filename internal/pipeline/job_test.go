package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"media-render/internal/codec"
	"media-render/internal/codec/codectest"
	"media-render/internal/encoder"
	"media-render/internal/hwaccel"
	"media-render/internal/profile"
	"media-render/internal/rational"
	"media-render/internal/render"
)

func sec(n int64) rational.Rational { return rational.FromInt(n) }

// singleLayer is a 2s timeline showing a.mp4 with its audio.
func singleLayer() *profile.Render {
	return &profile.Render{
		ID:       "single",
		Duration: sec(2),
		Atoms: []profile.Atom{{
			ID: "a0", From: sec(0), To: sec(2), Duration: sec(2),
			Layers: []profile.Layer{{
				ID: "main", Source: "a.mp4", Video: true, Audio: true,
				From: sec(0), To: sec(2),
			}},
		}},
	}
}

func newBackend() *codectest.Backend {
	b := codectest.New()
	b.Add("a.mp4", codectest.Media{Duration: sec(2), Video: true, Audio: true})
	return b
}

func outputConfig() encoder.Config {
	return encoder.Config{
		Path:   "out.mp4",
		Format: "mp4",
		Video: &encoder.VideoConfig{
			Codec: "h264", Width: 64, Height: 36, FrameRate: rational.FromInt(25),
		},
		Audio: &encoder.AudioConfig{
			Codec: "aac",
			Spec:  codec.AudioSpec{SampleRate: 48000, Channels: 2, Format: codec.SampleFormatFLTP},
		},
	}
}

func testConfig(b *codectest.Backend) Config {
	return Config{
		Profile:       singleLayer(),
		Backend:       b,
		Output:        outputConfig(),
		QueueCapacity: 4,
		DecodeThreads: 1,
		PollInterval:  5 * time.Millisecond,
	}
}

func runJob(t *testing.T, ctx context.Context, cfg Config) (Summary, error) {
	t.Helper()
	job, err := NewJob(cfg)
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	return job.Run(ctx)
}

func packetsOf(out *codectest.Output, kind codec.MediaKind) []*codec.Packet {
	index := -1
	for i, e := range out.Encoders() {
		if e.Kind() == kind {
			index = i
		}
	}
	var pkts []*codec.Packet
	for _, p := range out.Packets() {
		if p.StreamIndex == index {
			pkts = append(pkts, p)
		}
	}
	return pkts
}

func encoderOf(out *codectest.Output, kind codec.MediaKind) *codectest.Encoder {
	for _, e := range out.Encoders() {
		if e.Kind() == kind {
			return e
		}
	}
	return nil
}

func TestRenderEndToEnd(t *testing.T) {
	b := newBackend()
	var progress []Progress
	cfg := testConfig(b)
	cfg.Progress = func(p Progress) { progress = append(progress, p) }

	sum, err := runJob(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 2s at 25fps; 96000 samples in 1024-sample chunks.
	if sum.Frames != 50 {
		t.Errorf("Expected 50 frames, got %d", sum.Frames)
	}
	if sum.AudioChunks != 94 {
		t.Errorf("Expected 94 audio chunks, got %d", sum.AudioChunks)
	}
	if sum.UnitsEncoded != 144 {
		t.Errorf("Expected 144 units encoded, got %d", sum.UnitsEncoded)
	}
	if sum.FinalDrains != 1 {
		t.Errorf("Expected exactly one final drain, got %d", sum.FinalDrains)
	}
	if sum.UnitsDiscarded != 0 {
		t.Errorf("Expected no discarded units, got %d", sum.UnitsDiscarded)
	}

	outs := b.Outputs()
	if len(outs) != 1 {
		t.Fatalf("Expected 1 output, got %d", len(outs))
	}
	out := outs[0]
	if trailer, closed := out.Finished(); !trailer || !closed {
		t.Errorf("Expected trailer and close, got trailer=%v closed=%v", trailer, closed)
	}

	video := packetsOf(out, codec.KindVideo)
	if len(video) != 50 {
		t.Fatalf("Expected 50 video packets, got %d", len(video))
	}
	for i, p := range video {
		if want := int64(i) * 3600; p.PTS != want {
			t.Errorf("Expected video packet %d at %d, got %d", i, want, p.PTS)
			break
		}
	}

	audio := encoderOf(out, codec.KindAudio).Frames()
	total := 0
	for _, f := range audio {
		total += f.Samples
	}
	if total != 96000 {
		t.Errorf("Expected 96000 audio samples, got %d", total)
	}
	mid := audio[len(audio)/2]
	chans, err := codec.DecodeSamples(mid)
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}
	if diff := chans[0][10] - 0.5; diff > 0.001 || diff < -0.001 {
		t.Errorf("Expected mixed sample 0.5, got %v", chans[0][10])
	}

	if len(progress) != 50 || progress[49].Total != 50 || progress[49].Frame != 50 {
		t.Errorf("Expected 50 progress reports ending at 50/50, got %d", len(progress))
	}
	if b.OpenInputs() != 0 {
		t.Errorf("Expected all inputs closed, got %d open", b.OpenInputs())
	}
}

func TestRenderFromStart(t *testing.T) {
	b := newBackend()
	cfg := testConfig(b)
	cfg.Start = sec(1)

	sum, err := runJob(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Frames != 25 {
		t.Errorf("Expected 25 frames from 1s, got %d", sum.Frames)
	}
	video := packetsOf(b.Outputs()[0], codec.KindVideo)
	if len(video) != 25 || video[0].PTS != 90000 {
		t.Fatalf("Expected 25 packets from 1s, got %d", len(video))
	}
	frames := encoderOf(b.Outputs()[0], codec.KindAudio).Frames()
	total := 0
	for _, f := range frames {
		total += f.Samples
	}
	if total != 48000 {
		t.Errorf("Expected 48000 audio samples, got %d", total)
	}
}

func TestRenderAudioOnly(t *testing.T) {
	b := newBackend()
	cfg := testConfig(b)
	cfg.Output.Video = nil

	sum, err := runJob(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.AudioChunks != 94 {
		t.Errorf("Expected 94 audio chunks, got %d", sum.AudioChunks)
	}
	if got := len(packetsOf(b.Outputs()[0], codec.KindAudio)); got != 94 {
		t.Errorf("Expected 94 audio packets, got %d", got)
	}
}

func TestRenderRetriesRefusedUnits(t *testing.T) {
	b := newBackend()
	b.StallEvery = 3
	b.EncoderDelay = 1

	sum, err := runJob(t, context.Background(), testConfig(b))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := b.Outputs()[0]
	stalls := 0
	for _, e := range out.Encoders() {
		stalls += e.Stalls()
	}
	if stalls == 0 {
		t.Fatal("Expected the encoder to refuse some units")
	}
	if sum.UnitsEncoded != 144 {
		t.Errorf("Expected every unit encoded once, got %d", sum.UnitsEncoded)
	}
	if got := len(encoderOf(out, codec.KindVideo).Frames()); got != 50 {
		t.Errorf("Expected 50 video frames accepted, got %d", got)
	}
	if got := len(packetsOf(out, codec.KindVideo)); got != 50 {
		t.Errorf("Expected 50 video packets after flush, got %d", got)
	}
}

func TestRenderAbortsOnEncodeError(t *testing.T) {
	b := newBackend()
	b.FailSendAfter = 10

	_, err := runJob(t, context.Background(), testConfig(b))
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("Expected ErrAborted, got %v", err)
	}
	if !errors.Is(err, codectest.ErrSyntheticEncode) {
		t.Errorf("Expected the encode error to be wrapped, got %v", err)
	}
	trailer, closed := b.Outputs()[0].Finished()
	if trailer {
		t.Error("Expected no trailer on an aborted job")
	}
	if !closed {
		t.Error("Expected the output to be released")
	}
	if b.OpenInputs() != 0 {
		t.Errorf("Expected all inputs closed, got %d open", b.OpenInputs())
	}
}

func TestRenderCancelDrainPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy DrainPolicy
	}{
		{"drain always", DrainAlways},
		{"skip on cancel", SkipDrainOnCancel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg := testConfig(b)
			cfg.QueueCapacity = 64
			cfg.DrainPolicy = tt.policy
			cfg.Progress = func(p Progress) {
				if p.Frame == 10 {
					cancel()
				}
			}

			sum, err := runJob(t, ctx, cfg)
			if !errors.Is(err, context.Canceled) {
				t.Fatalf("Expected context.Canceled, got %v", err)
			}
			if sum.Frames != 10 {
				t.Errorf("Expected the producer to stop after 10 frames, got %d", sum.Frames)
			}
			if sum.FinalDrains != 1 {
				t.Errorf("Expected exactly one final drain, got %d", sum.FinalDrains)
			}
			produced := sum.Frames + sum.AudioChunks
			if got := sum.UnitsEncoded + int64(sum.UnitsDiscarded); got != produced {
				t.Errorf("Expected %d units accounted for, got %d", produced, got)
			}
			if tt.policy == DrainAlways && sum.UnitsDiscarded != 0 {
				t.Errorf("Expected nothing discarded, got %d", sum.UnitsDiscarded)
			}
			if trailer, _ := b.Outputs()[0].Finished(); !trailer {
				t.Error("Expected the encoder to be closed cleanly")
			}
		})
	}
}

func TestRenderHardware(t *testing.T) {
	tests := []struct {
		name string
		mode hwaccel.Mode
	}{
		{"native", hwaccel.HardwareNative},
		{"copy", hwaccel.HardwareCopy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			b.EnableDevice("cuda")
			cfg := testConfig(b)
			cfg.HWAccel = hwaccel.Config{Mode: tt.mode, Device: "nvidia"}

			sum, err := runJob(t, context.Background(), cfg)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if sum.Mode != tt.mode {
				t.Errorf("Expected mode %s, got %s", tt.mode, sum.Mode)
			}

			frames := encoderOf(b.Outputs()[0], codec.KindVideo).Frames()
			if len(frames) != 50 {
				t.Fatalf("Expected 50 video frames, got %d", len(frames))
			}
			for i, f := range frames {
				if r := f.Planes[0][0]; r != byte(i) {
					t.Errorf("Expected frame %d to show source frame %d, got %d", i, i, r)
					break
				}
			}
			if n := b.LiveSurfaces(); n != 0 {
				t.Errorf("Expected every surface freed, got %d live", n)
			}
		})
	}
}

// closeFailCompositor composites normally but fails to close.
type closeFailCompositor struct {
	render.Compositor
	closed int
}

func (c *closeFailCompositor) Close() error {
	c.closed++
	c.Compositor.Close()
	return errors.New("close failed")
}

func TestRenderIgnoresCompositorCloseError(t *testing.T) {
	b := newBackend()
	comp := &closeFailCompositor{Compositor: render.NewSoftwareCompositor(b)}
	cfg := testConfig(b)
	cfg.Compositor = comp

	sum, err := runJob(t, context.Background(), cfg)
	if err != nil {
		t.Fatalf("Expected success despite close error, got %v", err)
	}
	if comp.closed != 1 {
		t.Errorf("Expected compositor closed once, got %d", comp.closed)
	}
	if sum.Frames == 0 {
		t.Error("Expected frames to be rendered")
	}
}

func TestNewJobValidation(t *testing.T) {
	b := newBackend()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no profile", func(c *Config) { c.Profile = nil }},
		{"no backend", func(c *Config) { c.Backend = nil }},
		{"no streams", func(c *Config) { c.Output.Video, c.Output.Audio = nil, nil }},
		{"start past end", func(c *Config) { c.Start = sec(2) }},
		{"negative start", func(c *Config) { c.Start = sec(-1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(b)
			tt.mutate(&cfg)
			if _, err := NewJob(cfg); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestJobRunsOnce(t *testing.T) {
	job, err := NewJob(testConfig(newBackend()))
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := job.Run(context.Background()); err == nil {
		t.Error("Expected a second Run to fail")
	}
}

func TestParseDrainPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DrainPolicy
		wantErr bool
	}{
		{"", DrainAlways, false},
		{"always", DrainAlways, false},
		{"true", DrainAlways, false},
		{"skip", SkipDrainOnCancel, false},
		{"Skip-On-Cancel", SkipDrainOnCancel, false},
		{"false", SkipDrainOnCancel, false},
		{"sometimes", DrainAlways, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDrainPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
