package render

import (
	"image"
	"testing"

	"media-render/internal/codec"
	"media-render/internal/codec/codectest"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

func sec(n int64) rational.Rational { return rational.FromInt(n) }

func testProfile() *profile.Render {
	half := 0.5
	return &profile.Render{
		ID:       "p",
		Duration: sec(2),
		Atoms: []profile.Atom{
			{ID: "a0", From: sec(0), To: sec(1), Duration: sec(1), Layers: []profile.Layer{
				{ID: "bg", Video: true, Audio: true, From: sec(0), To: sec(1)},
				{ID: "title", Video: true, From: rational.MustNew(1, 2), To: sec(1), Gain: &half},
			}},
			{ID: "a1", From: sec(1), To: sec(2), Duration: sec(1), Layers: []profile.Layer{
				{ID: "music", Audio: true, From: sec(1), To: sec(2), Gain: &half},
			}},
		},
	}
}

func TestProfileEvaluator(t *testing.T) {
	e := NewProfileEvaluator(testProfile())
	fps := rational.FromInt(4)

	tests := []struct {
		name       string
		playTime   rational.Rational
		window     rational.Rational
		wantPTS    []rational.Rational
		wantLayers [][]string
	}{
		{
			name: "two frames", playTime: sec(0), window: rational.MustNew(1, 2),
			wantPTS:    []rational.Rational{sec(0), rational.MustNew(1, 4)},
			wantLayers: [][]string{{"bg"}, {"bg"}},
		},
		{
			name: "layer enters", playTime: rational.MustNew(1, 2), window: rational.MustNew(1, 2),
			wantPTS:    []rational.Rational{rational.MustNew(1, 2), rational.MustNew(3, 4)},
			wantLayers: [][]string{{"bg", "title"}, {"bg", "title"}},
		},
		{
			name: "between frames rounds up", playTime: rational.MustNew(1, 10), window: rational.MustNew(1, 4),
			wantPTS:    []rational.Rational{rational.MustNew(1, 4)},
			wantLayers: [][]string{{"bg"}},
		},
		{
			name: "clipped at the end", playTime: rational.MustNew(7, 4), window: sec(1),
			wantPTS:    []rational.Rational{rational.MustNew(7, 4)},
			wantLayers: [][]string{{"music"}},
		},
		{
			name: "past the end", playTime: sec(2), window: sec(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.playTime, fps, tt.window)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if len(got) != len(tt.wantPTS) {
				t.Fatalf("Expected %d contexts, got %d", len(tt.wantPTS), len(got))
			}
			for i, fc := range got {
				if !fc.PTS.Equal(tt.wantPTS[i]) {
					t.Errorf("Expected PTS %v, got %v", tt.wantPTS[i], fc.PTS)
				}
				if len(fc.Layers) != len(tt.wantLayers[i]) {
					t.Fatalf("Expected layers %v, got %+v", tt.wantLayers[i], fc.Layers)
				}
				for j, l := range fc.Layers {
					if l.LayerID != tt.wantLayers[i][j] {
						t.Errorf("Expected layer %s at %d, got %s", tt.wantLayers[i][j], j, l.LayerID)
					}
				}
			}
		})
	}

	if _, err := e.Evaluate(sec(0), rational.Zero, sec(1)); err == nil {
		t.Error("Expected zero frame rate to fail")
	}
}

func rgbaFrame(w, h int, r byte) *codec.Frame {
	pix := codectest.FramePixels(w, h, int64(r))
	return &codec.Frame{
		Kind:    codec.KindVideo,
		Video:   codec.VideoSpec{Width: w, Height: h, Format: codec.PixelFormatRGBA},
		Planes:  [][]byte{pix},
		Strides: []int{w * 4},
	}
}

func TestSoftwareCompositor(t *testing.T) {
	b := codectest.New()
	b.EnableDevice("cuda")
	dev, err := b.CreateHardwareDevice("cuda")
	if err != nil {
		t.Fatalf("CreateHardwareDevice failed: %v", err)
	}
	surface, _ := dev.AllocSurface(codec.VideoSpec{Width: 64, Height: 36})
	if err := surface.Upload(rgbaFrame(64, 36, 77)); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	defer surface.Free()

	tests := []struct {
		name    string
		frame   *codec.Frame
		opacity float64
		at      image.Point
		wantR   uint8
	}{
		{"same size", rgbaFrame(64, 36, 200), 1, image.Pt(0, 0), 200},
		{"upscaled", rgbaFrame(32, 18, 120), 1, image.Pt(32, 18), 120},
		{"downscaled", rgbaFrame(128, 72, 90), 1, image.Pt(10, 10), 90},
		{"pillarboxed", rgbaFrame(36, 36, 150), 1, image.Pt(2, 18), 0},
		{"pillar center", rgbaFrame(36, 36, 150), 1, image.Pt(32, 18), 150},
		{"translucent", rgbaFrame(64, 36, 200), 0.5, image.Pt(5, 5), 100},
		{"device surface", &codec.Frame{Kind: codec.KindVideo, Video: codec.VideoSpec{Width: 64, Height: 36, Format: codec.PixelFormatCUDA}, Surface: surface}, 1, image.Pt(3, 3), 77},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSoftwareCompositor(b)
			defer c.Close()
			dst := image.NewRGBA(image.Rect(0, 0, 64, 36))
			fc := FrameContext{Layers: []LayerContext{{LayerID: "l", Video: true, Opacity: tt.opacity}}}

			if err := c.Composite(fc, map[string]*codec.Frame{"l": tt.frame}, dst); err != nil {
				t.Fatalf("Composite failed: %v", err)
			}
			got := dst.RGBAAt(tt.at.X, tt.at.Y).R
			if diff := int(got) - int(tt.wantR); diff > 2 || diff < -2 {
				t.Errorf("Expected red %d at %v, got %d", tt.wantR, tt.at, got)
			}
		})
	}
}

func TestSoftwareCompositorLayerOrder(t *testing.T) {
	c := NewSoftwareCompositor(codectest.New())
	defer c.Close()
	dst := image.NewRGBA(image.Rect(0, 0, 64, 36))
	fc := FrameContext{Layers: []LayerContext{
		{LayerID: "bottom", Video: true, Opacity: 1},
		{LayerID: "audio", Audio: true, Opacity: 1},
		{LayerID: "missing", Video: true, Opacity: 1},
		{LayerID: "top", Video: true, Opacity: 1},
	}}
	frames := map[string]*codec.Frame{
		"bottom": rgbaFrame(64, 36, 10),
		"top":    rgbaFrame(64, 36, 220),
	}
	if err := c.Composite(fc, frames, dst); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if r := dst.RGBAAt(1, 1).R; r != 220 {
		t.Errorf("Expected top layer to win, got red %d", r)
	}
}

func TestSoftwareCompositorRejectsUnconvertible(t *testing.T) {
	c := NewSoftwareCompositor(codectest.New())
	defer c.Close()
	f := rgbaFrame(8, 8, 1)
	f.Video.Format = codec.PixelFormatNV12
	dst := image.NewRGBA(image.Rect(0, 0, 8, 8))
	fc := FrameContext{Layers: []LayerContext{{LayerID: "l", Video: true, Opacity: 1}}}
	if err := c.Composite(fc, map[string]*codec.Frame{"l": f}, dst); err == nil {
		t.Error("Expected an error for a format the backend cannot convert")
	}
}

var mixSpec = codec.AudioSpec{SampleRate: 1000, Channels: 2, Format: codec.SampleFormatFLT}

func constFrame(t *testing.T, n int, v float32) *codec.Frame {
	t.Helper()
	chans := [][]float32{make([]float32, n), make([]float32, n)}
	for c := range chans {
		for i := range chans[c] {
			chans[c][i] = v
		}
	}
	planes, err := codec.EncodeSamples(chans, mixSpec)
	if err != nil {
		t.Fatalf("EncodeSamples failed: %v", err)
	}
	return &codec.Frame{Kind: codec.KindAudio, Audio: mixSpec, Samples: n, Planes: planes}
}

func chunkSamples(t *testing.T, data []byte, n int) []float32 {
	t.Helper()
	f := &codec.Frame{Audio: mixSpec, Samples: n, Planes: [][]byte{data}}
	chans, err := codec.DecodeSamples(f)
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}
	return chans[0]
}

func TestMixer(t *testing.T) {
	m, err := NewMixer(mixSpec, 100, rational.Zero)
	if err != nil {
		t.Fatalf("NewMixer failed: %v", err)
	}

	// a covers [0, 0.15) at half gain, b covers [0.05, 0.25). Their sum clips.
	if err := m.Push("a", rational.Zero, constFrame(t, 150, 0.8), 0.5); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if err := m.Push("b", rational.MustNew(1, 20), constFrame(t, 200, 0.9), 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if got := m.Pull(rational.MustNew(1, 20)); len(got) != 0 {
		t.Fatalf("Expected no complete chunk before 0.1, got %d", len(got))
	}
	chunks := m.Pull(rational.MustNew(1, 5))
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks up to 0.2, got %d", len(chunks))
	}

	first := chunkSamples(t, chunks[0].Data, chunks[0].Samples)
	checks := []struct {
		at   int
		want float32
	}{
		{0, 0.4},
		{49, 0.4},
		{50, 1},
	}
	for _, c := range checks {
		if diff := first[c.at] - c.want; diff > 0.001 || diff < -0.001 {
			t.Errorf("Expected sample %d to be %v, got %v", c.at, c.want, first[c.at])
		}
	}

	second := chunkSamples(t, chunks[1].Data, chunks[1].Samples)
	if diff := second[60] - 0.9; diff > 0.001 || diff < -0.001 {
		t.Errorf("Expected layer b alone after a ends, got %v", second[60])
	}
	if !chunks[1].PTS.Equal(rational.MustNew(1, 10)) {
		t.Errorf("Expected second chunk at 0.1, got %v", chunks[1].PTS)
	}

	tail := m.Flush(rational.MustNew(3, 10))
	if len(tail) != 1 || tail[0].Samples != 100 {
		t.Fatalf("Expected one full chunk on flush, got %d", len(tail))
	}
	last := chunkSamples(t, tail[0].Data, tail[0].Samples)
	if last[40] != 0.9 || last[60] != 0 {
		t.Errorf("Expected audio then silence, got %v and %v", last[40], last[60])
	}
	if !m.Position().Equal(rational.MustNew(3, 10)) {
		t.Errorf("Expected position 0.3, got %v", m.Position())
	}
}

func TestMixerPartialFlushAndOverlap(t *testing.T) {
	m, err := NewMixer(mixSpec, 100, rational.Zero)
	if err != nil {
		t.Fatalf("NewMixer failed: %v", err)
	}
	if err := m.Push("a", rational.Zero, constFrame(t, 50, 0.25), 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	// Only the part past what the layer already buffered is kept.
	if err := m.Push("a", rational.MustNew(1, 50), constFrame(t, 50, 1), 1); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	tail := m.Flush(rational.MustNew(13, 200))
	if len(tail) != 1 || tail[0].Samples != 65 {
		t.Fatalf("Expected one 65-sample chunk, got %+v", tail)
	}
	s := chunkSamples(t, tail[0].Data, tail[0].Samples)
	if s[10] != 0.25 || s[55] != 1 || s[64] != 1 {
		t.Errorf("Expected overlap dropped and remainder kept, got %v %v %v", s[10], s[55], s[64])
	}
}

func TestNewMixerRejectsBadSpec(t *testing.T) {
	tests := []struct {
		name      string
		spec      codec.AudioSpec
		frameSize int
	}{
		{"planar", codec.AudioSpec{SampleRate: 48000, Channels: 2, Format: codec.SampleFormatFLTP}, 1024},
		{"no rate", codec.AudioSpec{Channels: 2, Format: codec.SampleFormatFLT}, 1024},
		{"no frame size", mixSpec, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMixer(tt.spec, tt.frameSize, rational.Zero); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
