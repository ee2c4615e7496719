package codec

import (
	"context"

	"media-render/internal/rational"
)

// Backend opens inputs and outputs and creates conversion and hardware contexts.
type Backend interface {
	OpenInput(ctx context.Context, path string) (Input, error)
	FindEncoder(name string) (EncoderCodec, error)
	CreateHardwareDevice(deviceType string) (HardwareDevice, error)
	NewResampler(src, dst AudioSpec) (Resampler, error)
	NewScaler(src, dst VideoSpec) (Scaler, error)
	CreateOutput(path, format string) (Output, error)
}

// DecoderOptions configures a stream decoder.
type DecoderOptions struct {
	Threads int
	// Device requests hardware decoding on the given device. Implementations
	// return ErrHardwareUnsupported when the codec cannot use it.
	Device HardwareDevice
}

// Input is an opened, demuxable media source.
type Input interface {
	Streams() []StreamInfo
	OpenDecoder(index int, opts DecoderOptions) (Decoder, error)
	// ReadPacket returns the next packet of any stream, or io.EOF.
	ReadPacket() (*Packet, error)
	// Seek positions the demuxer near ts, expressed in the time base of
	// stream index. With backward set it lands on the closest keyframe at or
	// before ts.
	Seek(index int, ts int64, backward bool) error
	Close() error
}

// Decoder turns packets of one stream into frames.
type Decoder interface {
	// SendPacket submits a packet. A nil packet starts draining.
	SendPacket(pkt *Packet) error
	// ReceiveFrame returns a decoded frame, ErrAgain when more input is
	// needed, or io.EOF once draining completes.
	ReceiveFrame() (*Frame, error)
	// Flush discards buffered state after a seek.
	Flush()
	Hardware() bool
	Close() error
}

// Resampler converts audio frames between sample specs.
type Resampler interface {
	Convert(src *Frame) (*Frame, error)
	Close() error
}

// Scaler converts video frames between geometries and pixel formats.
type Scaler interface {
	Scale(src *Frame) (*Frame, error)
	Close() error
}

// EncoderCodec describes an encoder implementation and its capabilities.
type EncoderCodec interface {
	Name() string
	Kind() MediaKind
	// SampleFormats lists accepted sample formats. Empty means unrestricted.
	SampleFormats() []SampleFormat
	PixelFormats() []PixelFormat
	// VariableFrameSize reports whether audio frames may have any length.
	VariableFrameSize() bool
	// HardwareFormat returns the surface format used with deviceType, or
	// PixelFormatNone when the codec cannot encode from that device.
	HardwareFormat(deviceType string) PixelFormat
}

// StreamConfig configures an output stream and its encoder.
type StreamConfig struct {
	Video     VideoSpec
	FrameRate rational.Rational
	Audio     AudioSpec
	Options   map[string]string
	Threads   int
	// Device enables hardware encoding; Video.Format is then the surface
	// format and SoftwareFormat the upload format of the surface pool.
	Device         HardwareDevice
	SoftwareFormat PixelFormat
}

// Output is a container writer.
type Output interface {
	AddStream(codec EncoderCodec, cfg StreamConfig) (Encoder, error)
	WriteHeader(options map[string]string) error
	// WritePacket interleaves pkt, whose timestamps are already in the
	// stream time base.
	WritePacket(pkt *Packet) error
	WriteTrailer() error
	Close() error
}

// Encoder turns frames of one output stream into packets.
type Encoder interface {
	StreamIndex() int
	TimeBase() rational.Rational
	// StreamTimeBase is the container's time base for the stream. It is only
	// final after the header has been written.
	StreamTimeBase() rational.Rational
	// FrameSize is the required audio frame size, 0 when variable.
	FrameSize() int
	// SendFrame submits a frame. A nil frame starts flushing.
	SendFrame(f *Frame) error
	// ReceivePacket returns an encoded packet, ErrAgain, or io.EOF after a flush.
	ReceivePacket() (*Packet, error)
	// AllocSurface returns a surface from the encoder's own pool.
	AllocSurface() (Surface, error)
	// TransferSurface copies src into a surface of the encoder's pool.
	TransferSurface(src Surface) (Surface, error)
	Close() error
}

// HardwareDevice is an opened acceleration device.
type HardwareDevice interface {
	Type() string
	// AllocSurface returns a surface from a device pool sized for spec.
	AllocSurface(spec VideoSpec) (Surface, error)
	Close() error
}

// Surface is a frame living in device memory.
type Surface interface {
	Format() PixelFormat
	// Download copies the surface into a software frame.
	Download() (*Frame, error)
	// Upload fills the surface from a software frame.
	Upload(f *Frame) error
	Free()
}
