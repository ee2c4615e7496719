package codectest

import (
	"context"
	"fmt"
	"sync"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// VideoTimeBase is the time base of every synthetic video stream.
var VideoTimeBase = rational.MustNew(1, 90000)

// Media describes a synthetic input file.
type Media struct {
	Duration rational.Rational
	Video    bool
	Audio    bool

	FPS    int64
	Width  int
	Height int
	// GOP is the keyframe interval in frames. Backward seeks land on keyframes.
	GOP int64

	SampleRate       int
	Channels         int
	SampleFormat     codec.SampleFormat
	SamplesPerPacket int
	AudioValue       float32

	// StartTime is the container start offset in seconds.
	StartTime rational.Rational

	// Latency is the number of packets a decoder buffers before emitting frames.
	Latency int
	// FailAfter makes decoders fail once they have produced this many frames.
	FailAfter int
	// NoHardwareDecode rejects hardware decoder negotiation.
	NoHardwareDecode bool
}

func (m Media) withDefaults() Media {
	if m.FPS == 0 {
		m.FPS = 25
	}
	if m.Width == 0 {
		m.Width = 64
	}
	if m.Height == 0 {
		m.Height = 36
	}
	if m.GOP == 0 {
		m.GOP = 1
	}
	if m.SampleRate == 0 {
		m.SampleRate = 48000
	}
	if m.Channels == 0 {
		m.Channels = 2
	}
	if m.SampleFormat == codec.SampleFormatNone {
		m.SampleFormat = codec.SampleFormatFLTP
	}
	if m.SamplesPerPacket == 0 {
		m.SamplesPerPacket = 1024
	}
	if m.AudioValue == 0 {
		m.AudioValue = 0.5
	}
	return m
}

// CodecSpec describes a synthetic encoder.
type CodecSpec struct {
	CodecName       string
	MediaKind       codec.MediaKind
	Samples         []codec.SampleFormat
	Pixels          []codec.PixelFormat
	FixedFrameSize  int
	HardwareFormats map[string]codec.PixelFormat
}

// Name implements codec.EncoderCodec.
func (c *CodecSpec) Name() string { return c.CodecName }

// Kind implements codec.EncoderCodec.
func (c *CodecSpec) Kind() codec.MediaKind { return c.MediaKind }

// SampleFormats implements codec.EncoderCodec.
func (c *CodecSpec) SampleFormats() []codec.SampleFormat { return c.Samples }

// PixelFormats implements codec.EncoderCodec.
func (c *CodecSpec) PixelFormats() []codec.PixelFormat { return c.Pixels }

// VariableFrameSize implements codec.EncoderCodec.
func (c *CodecSpec) VariableFrameSize() bool { return c.FixedFrameSize == 0 }

// HardwareFormat implements codec.EncoderCodec.
func (c *CodecSpec) HardwareFormat(deviceType string) codec.PixelFormat {
	if f, ok := c.HardwareFormats[deviceType]; ok {
		return f
	}
	return codec.PixelFormatNone
}

// HardwareSurfaceFormat maps a device type to its synthetic surface format.
func HardwareSurfaceFormat(deviceType string) codec.PixelFormat {
	switch deviceType {
	case "cuda":
		return codec.PixelFormatCUDA
	case "vaapi":
		return codec.PixelFormatVAAPI
	case "videotoolbox":
		return codec.PixelFormatVideoToolbox
	case "qsv":
		return codec.PixelFormatQSV
	}
	return codec.PixelFormatNone
}

func allHardware() map[string]codec.PixelFormat {
	m := make(map[string]codec.PixelFormat)
	for _, t := range []string{"cuda", "vaapi", "videotoolbox", "qsv"} {
		m[t] = HardwareSurfaceFormat(t)
	}
	return m
}

// DefaultCodecs returns the encoders known to a new Backend.
func DefaultCodecs() map[string]*CodecSpec {
	return map[string]*CodecSpec{
		"h264": {
			CodecName: "h264", MediaKind: codec.KindVideo,
			Pixels:          []codec.PixelFormat{codec.PixelFormatYUV420P, codec.PixelFormatNV12},
			HardwareFormats: allHardware(),
		},
		"mpeg4": {
			CodecName: "mpeg4", MediaKind: codec.KindVideo,
			Pixels: []codec.PixelFormat{codec.PixelFormatYUV420P},
		},
		"aac": {
			CodecName: "aac", MediaKind: codec.KindAudio,
			Samples:        []codec.SampleFormat{codec.SampleFormatFLTP},
			FixedFrameSize: 1024,
		},
		"libopus": {
			CodecName: "libopus", MediaKind: codec.KindAudio,
			Samples:        []codec.SampleFormat{codec.SampleFormatS16, codec.SampleFormatFLT},
			FixedFrameSize: 960,
		},
		"pcm_s16le": {
			CodecName: "pcm_s16le", MediaKind: codec.KindAudio,
			Samples: []codec.SampleFormat{codec.SampleFormatS16},
		},
	}
}

// Backend is a deterministic codec.Backend.
type Backend struct {
	mu      sync.Mutex
	media   map[string]Media
	codecs  map[string]*CodecSpec
	devices map[string]bool

	// EncoderDelay is the number of packets encoders hold back until flushed.
	EncoderDelay int
	// StallEvery makes every Nth SendFrame attempt return ErrAgain while the
	// encoder holds packets.
	StallEvery int
	// FailSendAfter makes encoders reject every frame once they have
	// accepted this many.
	FailSendAfter int

	outputs      []*Output
	openInputs   int
	liveSurfaces int
}

// New returns a backend with the default codecs and no hardware devices.
func New() *Backend {
	return &Backend{
		media:   make(map[string]Media),
		codecs:  DefaultCodecs(),
		devices: make(map[string]bool),
	}
}

// Add registers synthetic media at path.
func (b *Backend) Add(path string, m Media) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.media[path] = m.withDefaults()
}

// EnableDevice makes CreateHardwareDevice succeed for deviceType.
func (b *Backend) EnableDevice(deviceType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[deviceType] = true
}

// SetCodec registers or replaces an encoder.
func (b *Backend) SetCodec(spec *CodecSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codecs[spec.CodecName] = spec
}

// Outputs returns every output created so far.
func (b *Backend) Outputs() []*Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Output(nil), b.outputs...)
}

// OpenInputs returns the number of inputs opened and not yet closed.
func (b *Backend) OpenInputs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openInputs
}

// LiveSurfaces returns the number of surfaces allocated and not yet freed.
func (b *Backend) LiveSurfaces() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.liveSurfaces
}

func (b *Backend) surfaceAllocated(delta int) {
	b.mu.Lock()
	b.liveSurfaces += delta
	b.mu.Unlock()
}

// OpenInput implements codec.Backend.
func (b *Backend) OpenInput(ctx context.Context, path string) (codec.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	m, ok := b.media[path]
	if ok {
		b.openInputs++
	}
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("open %s: no such file", path)
	}
	return newInput(b, m), nil
}

// FindEncoder implements codec.Backend.
func (b *Backend) FindEncoder(name string) (codec.EncoderCodec, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	spec, ok := b.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", codec.ErrUnknownCodec, name)
	}
	return spec, nil
}

// CreateHardwareDevice implements codec.Backend.
func (b *Backend) CreateHardwareDevice(deviceType string) (codec.HardwareDevice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.devices[deviceType] {
		return nil, fmt.Errorf("%w: device %s", codec.ErrHardwareUnsupported, deviceType)
	}
	return &Device{backend: b, deviceType: deviceType}, nil
}

// NewResampler implements codec.Backend.
func (b *Backend) NewResampler(src, dst codec.AudioSpec) (codec.Resampler, error) {
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", src.SampleRate, dst.SampleRate)
	}
	return &resampler{src: src, dst: dst}, nil
}

// NewScaler implements codec.Backend.
func (b *Backend) NewScaler(src, dst codec.VideoSpec) (codec.Scaler, error) {
	if src.Format != codec.PixelFormatRGBA {
		return nil, fmt.Errorf("synthetic scaler only reads rgba, got %s", src.Format)
	}
	switch dst.Format {
	case codec.PixelFormatRGBA, codec.PixelFormatYUV420P, codec.PixelFormatNV12:
	default:
		return nil, fmt.Errorf("synthetic scaler cannot write %s", dst.Format)
	}
	return &scaler{dst: dst}, nil
}

// CreateOutput implements codec.Backend.
func (b *Backend) CreateOutput(path, format string) (codec.Output, error) {
	out := &Output{Path: path, Format: format, backend: b}
	b.mu.Lock()
	b.outputs = append(b.outputs, out)
	b.mu.Unlock()
	return out, nil
}

// Device is a synthetic hardware device.
type Device struct {
	backend    *Backend
	deviceType string
	closed     bool
}

// Type implements codec.HardwareDevice.
func (d *Device) Type() string { return d.deviceType }

// AllocSurface implements codec.HardwareDevice.
func (d *Device) AllocSurface(spec codec.VideoSpec) (codec.Surface, error) {
	return newSurface(d.backend, HardwareSurfaceFormat(d.deviceType), spec), nil
}

// Close implements codec.HardwareDevice.
func (d *Device) Close() error {
	d.closed = true
	return nil
}

// Surface is a synthetic device surface backed by an RGBA frame.
type Surface struct {
	backend *Backend
	format  codec.PixelFormat
	frame   *codec.Frame
	freed   bool
	// pooled marks surfaces allocated from an encoder's own pool.
	pooled bool
}

func newSurface(b *Backend, format codec.PixelFormat, spec codec.VideoSpec) *Surface {
	b.surfaceAllocated(1)
	spec.Format = codec.PixelFormatRGBA
	return &Surface{
		backend: b,
		format:  format,
		frame: &codec.Frame{
			Kind:    codec.KindVideo,
			Video:   spec,
			Planes:  [][]byte{make([]byte, spec.Width*spec.Height*4)},
			Strides: []int{spec.Width * 4},
		},
	}
}

// Format implements codec.Surface.
func (s *Surface) Format() codec.PixelFormat { return s.format }

// Download implements codec.Surface.
func (s *Surface) Download() (*codec.Frame, error) {
	if s.freed {
		return nil, fmt.Errorf("download from freed surface")
	}
	return cloneFrame(s.frame), nil
}

// Upload implements codec.Surface.
func (s *Surface) Upload(f *codec.Frame) error {
	if s.freed {
		return fmt.Errorf("upload to freed surface")
	}
	if f.Video.Width != s.frame.Video.Width || f.Video.Height != s.frame.Video.Height {
		return fmt.Errorf("upload geometry %v does not match surface %v", f.Video, s.frame.Video)
	}
	s.frame = cloneFrame(f)
	return nil
}

// Free implements codec.Surface.
func (s *Surface) Free() {
	if s.freed {
		return
	}
	s.freed = true
	s.backend.surfaceAllocated(-1)
}

func cloneFrame(f *codec.Frame) *codec.Frame {
	c := *f
	c.Planes = make([][]byte, len(f.Planes))
	for i, p := range f.Planes {
		c.Planes[i] = append([]byte(nil), p...)
	}
	c.Strides = append([]int(nil), f.Strides...)
	c.Surface = nil
	return &c
}
