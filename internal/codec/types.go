package codec

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"media-render/internal/rational"
)

var (
	// ErrAgain means the operation cannot progress until the peer operation runs
	// (receive before send, or send before receive).
	ErrAgain = errors.New("codec: resource temporarily unavailable")

	// ErrHardwareUnsupported is returned when a device type or hardware
	// configuration is not available for a codec.
	ErrHardwareUnsupported = errors.New("codec: hardware acceleration unsupported")

	// ErrNoStream is returned when an input has no stream of a requested kind.
	ErrNoStream = errors.New("codec: no matching stream")

	// ErrUnknownCodec is returned when an encoder name cannot be resolved.
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// NoPTS marks a missing timestamp.
const NoPTS int64 = math.MinInt64

// MediaKind distinguishes video and audio streams.
type MediaKind int

const (
	// KindVideo is a video stream
	KindVideo MediaKind = iota
	// KindAudio is an audio stream
	KindAudio
)

func (k MediaKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PixelFormat identifies a raster layout or a hardware surface type.
type PixelFormat int

// Pixel formats understood by the pipeline.
const (
	PixelFormatNone PixelFormat = iota
	PixelFormatRGBA
	PixelFormatYUV420P
	PixelFormatNV12
	PixelFormatCUDA
	PixelFormatVAAPI
	PixelFormatVideoToolbox
	PixelFormatQSV
)

var pixelFormatNames = map[PixelFormat]string{
	PixelFormatNone:         "none",
	PixelFormatRGBA:         "rgba",
	PixelFormatYUV420P:      "yuv420p",
	PixelFormatNV12:         "nv12",
	PixelFormatCUDA:         "cuda",
	PixelFormatVAAPI:        "vaapi",
	PixelFormatVideoToolbox: "videotoolbox_vld",
	PixelFormatQSV:          "qsv",
}

func (p PixelFormat) String() string {
	if s, ok := pixelFormatNames[p]; ok {
		return s
	}
	return fmt.Sprintf("pix_fmt(%d)", int(p))
}

// Hardware reports whether the format is an opaque device surface.
func (p PixelFormat) Hardware() bool {
	switch p {
	case PixelFormatCUDA, PixelFormatVAAPI, PixelFormatVideoToolbox, PixelFormatQSV:
		return true
	}
	return false
}

// SampleFormat identifies an audio sample encoding and layout.
type SampleFormat int

// Sample formats. The P suffix marks planar layouts.
const (
	SampleFormatNone SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatFLT
	SampleFormatDBL
	SampleFormatU8P
	SampleFormatS16P
	SampleFormatS32P
	SampleFormatFLTP
	SampleFormatDBLP
)

var sampleFormatNames = map[SampleFormat]string{
	SampleFormatNone: "none",
	SampleFormatU8:   "u8",
	SampleFormatS16:  "s16",
	SampleFormatS32:  "s32",
	SampleFormatFLT:  "flt",
	SampleFormatDBL:  "dbl",
	SampleFormatU8P:  "u8p",
	SampleFormatS16P: "s16p",
	SampleFormatS32P: "s32p",
	SampleFormatFLTP: "fltp",
	SampleFormatDBLP: "dblp",
}

func (f SampleFormat) String() string {
	if s, ok := sampleFormatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("sample_fmt(%d)", int(f))
}

// ParseSampleFormat resolves a format name such as "fltp" or "s16".
func ParseSampleFormat(s string) (SampleFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range sampleFormatNames {
		if name == s && f != SampleFormatNone {
			return f, nil
		}
	}
	return SampleFormatNone, fmt.Errorf("unknown sample format %q", s)
}

// Planar reports whether each channel is stored in its own plane.
func (f SampleFormat) Planar() bool {
	return f >= SampleFormatU8P && f <= SampleFormatDBLP
}

// Packed returns the interleaved counterpart of f.
func (f SampleFormat) Packed() SampleFormat {
	if f.Planar() {
		return f - (SampleFormatU8P - SampleFormatU8)
	}
	return f
}

// PlanarForm returns the planar counterpart of f.
func (f SampleFormat) PlanarForm() SampleFormat {
	if f != SampleFormatNone && !f.Planar() {
		return f + (SampleFormatU8P - SampleFormatU8)
	}
	return f
}

// Alternate returns the planar counterpart of a packed format and vice versa.
func (f SampleFormat) Alternate() SampleFormat {
	if f == SampleFormatNone {
		return SampleFormatNone
	}
	if f.Planar() {
		return f.Packed()
	}
	return f.PlanarForm()
}

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f.Packed() {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatFLT:
		return 4
	case SampleFormatDBL:
		return 8
	}
	return 0
}

// AudioSpec describes a PCM layout.
type AudioSpec struct {
	SampleRate int
	Channels   int
	Format     SampleFormat
}

func (a AudioSpec) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", a.SampleRate, a.Channels, a.Format)
}

// FrameBytes returns the byte size of n samples per channel across all planes.
func (a AudioSpec) FrameBytes(n int) int {
	return n * a.Channels * a.Format.BytesPerSample()
}

// VideoSpec describes raster geometry and layout.
type VideoSpec struct {
	Width  int
	Height int
	Format PixelFormat
}

func (v VideoSpec) String() string {
	return fmt.Sprintf("%dx%d/%s", v.Width, v.Height, v.Format)
}

// StreamInfo describes one elementary stream of an input.
type StreamInfo struct {
	Index     int
	Kind      MediaKind
	Codec     string
	TimeBase  rational.Rational
	StartTime int64 // in TimeBase, NoPTS when unknown
	Duration  rational.Rational
	FrameRate rational.Rational
	Video     VideoSpec
	Audio     AudioSpec
}

// Frame is one decoded picture or block of audio samples.
type Frame struct {
	Kind     MediaKind
	PTS      int64 // in TimeBase
	Duration int64 // in TimeBase, 0 when unknown
	TimeBase rational.Rational

	Video   VideoSpec
	Audio   AudioSpec
	Samples int // per channel

	Planes  [][]byte
	Strides []int

	// Surface is set instead of Planes for hardware frames.
	Surface Surface
}

// Size returns the total number of bytes held in Planes.
func (f *Frame) Size() int {
	n := 0
	for _, p := range f.Planes {
		n += len(p)
	}
	return n
}

// Packet is one compressed unit.
type Packet struct {
	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	TimeBase    rational.Rational
	Key         bool
	Data        []byte
}

// Rescale converts a timestamp between time bases, preserving NoPTS.
func Rescale(ts int64, from, to rational.Rational) int64 {
	if ts == NoPTS {
		return NoPTS
	}
	return rational.FromTicks(ts, from).Ticks(to)
}
