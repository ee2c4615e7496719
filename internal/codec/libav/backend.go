package libav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"media-render/internal/codec"
	"media-render/internal/logging"
	"media-render/internal/rational"
)

var log = logging.For("libav")

var logOnce sync.Once

// Backend implements codec.Backend on FFmpeg.
type Backend struct{}

// New returns the FFmpeg backend. FFmpeg's own log output is routed through
// the application logger at warning level and above.
func New() *Backend {
	logOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelWarning)
		astiav.SetLogCallback(func(_ astiav.Classer, l astiav.LogLevel, _, msg string) {
			msg = strings.TrimSpace(msg)
			if msg == "" {
				return
			}
			switch {
			case l <= astiav.LogLevelError:
				log.Error("%s", msg)
			case l <= astiav.LogLevelWarning:
				log.Warn("%s", msg)
			default:
				log.Debug("%s", msg)
			}
		})
	})
	return &Backend{}
}

// OpenInput implements codec.Backend.
func (b *Backend) OpenInput(ctx context.Context, path string) (codec.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("alloc format context")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return newInput(path, fc), nil
}

// FindEncoder implements codec.Backend.
func (b *Backend) FindEncoder(name string) (codec.EncoderCodec, error) {
	c := astiav.FindEncoderByName(name)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", codec.ErrUnknownCodec, name)
	}
	return &encoderCodec{c: c}, nil
}

// CreateHardwareDevice implements codec.Backend.
func (b *Backend) CreateHardwareDevice(deviceType string) (codec.HardwareDevice, error) {
	t := astiav.FindHardwareDeviceTypeByName(deviceType)
	if t == astiav.HardwareDeviceTypeNone {
		return nil, fmt.Errorf("%w: device %s", codec.ErrHardwareUnsupported, deviceType)
	}
	hdc, err := astiav.CreateHardwareDeviceContext(t, "", nil, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %w", codec.ErrHardwareUnsupported, deviceType, err)
	}
	return &device{deviceType: deviceType, hdc: hdc, pools: make(map[codec.VideoSpec]*astiav.HardwareFramesContext)}, nil
}

// NewResampler implements codec.Backend.
func (b *Backend) NewResampler(src, dst codec.AudioSpec) (codec.Resampler, error) {
	if src.SampleRate <= 0 || dst.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", src.SampleRate, dst.SampleRate)
	}
	if _, err := channelLayout(dst.Channels); err != nil {
		return nil, err
	}
	if toSampleFormat(dst.Format) == astiav.SampleFormatNone {
		return nil, fmt.Errorf("unsupported sample format %s", dst.Format)
	}
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, errors.New("alloc resample context")
	}
	return &resampler{swr: swr, dst: dst}, nil
}

// NewScaler implements codec.Backend.
func (b *Backend) NewScaler(src, dst codec.VideoSpec) (codec.Scaler, error) {
	sf, df := toPixelFormat(src.Format), toPixelFormat(dst.Format)
	if sf == astiav.PixelFormatNone || df == astiav.PixelFormatNone || src.Format.Hardware() || dst.Format.Hardware() {
		return nil, fmt.Errorf("cannot scale %s to %s", src, dst)
	}
	ssc, err := astiav.CreateSoftwareScaleContext(src.Width, src.Height, sf, dst.Width, dst.Height, df,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
	if err != nil {
		return nil, fmt.Errorf("scale context %s -> %s: %w", src, dst, err)
	}
	return &scaler{ssc: ssc, src: src, dst: dst}, nil
}

// CreateOutput implements codec.Backend.
func (b *Backend) CreateOutput(path, format string) (codec.Output, error) {
	return newOutput(path, format)
}

// mapErr translates FFmpeg's EAGAIN and EOF into the codec package's
// sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, astiav.ErrEagain):
		return codec.ErrAgain
	case errors.Is(err, astiav.ErrEof):
		return io.EOF
	}
	return err
}

func toRational(r astiav.Rational) rational.Rational {
	if r.Den() == 0 {
		return rational.Zero
	}
	v, err := rational.New(int64(r.Num()), int64(r.Den()))
	if err != nil {
		return rational.Zero
	}
	return v
}

func fromRational(r rational.Rational) astiav.Rational {
	return astiav.NewRational(int(r.Num()), int(r.Den()))
}

func toPTS(ts int64) int64 {
	if ts == astiav.NoPtsValue {
		return codec.NoPTS
	}
	return ts
}

func fromPTS(ts int64) int64 {
	if ts == codec.NoPTS {
		return astiav.NoPtsValue
	}
	return ts
}

var pixelFormats = []struct {
	ours   codec.PixelFormat
	theirs astiav.PixelFormat
}{
	{codec.PixelFormatRGBA, astiav.PixelFormatRgba},
	{codec.PixelFormatYUV420P, astiav.PixelFormatYuv420P},
	{codec.PixelFormatNV12, astiav.PixelFormatNv12},
	{codec.PixelFormatCUDA, astiav.PixelFormatCuda},
	{codec.PixelFormatVAAPI, astiav.PixelFormatVaapi},
	{codec.PixelFormatVideoToolbox, astiav.PixelFormatVideotoolbox},
	{codec.PixelFormatQSV, astiav.PixelFormatQsv},
}

func toPixelFormat(p codec.PixelFormat) astiav.PixelFormat {
	for _, m := range pixelFormats {
		if m.ours == p {
			return m.theirs
		}
	}
	return astiav.PixelFormatNone
}

func fromPixelFormat(p astiav.PixelFormat) codec.PixelFormat {
	for _, m := range pixelFormats {
		if m.theirs == p {
			return m.ours
		}
	}
	return codec.PixelFormatNone
}

var sampleFormats = []struct {
	ours   codec.SampleFormat
	theirs astiav.SampleFormat
}{
	{codec.SampleFormatU8, astiav.SampleFormatU8},
	{codec.SampleFormatS16, astiav.SampleFormatS16},
	{codec.SampleFormatS32, astiav.SampleFormatS32},
	{codec.SampleFormatFLT, astiav.SampleFormatFlt},
	{codec.SampleFormatDBL, astiav.SampleFormatDbl},
	{codec.SampleFormatU8P, astiav.SampleFormatU8P},
	{codec.SampleFormatS16P, astiav.SampleFormatS16P},
	{codec.SampleFormatS32P, astiav.SampleFormatS32P},
	{codec.SampleFormatFLTP, astiav.SampleFormatFltp},
	{codec.SampleFormatDBLP, astiav.SampleFormatDblp},
}

func toSampleFormat(f codec.SampleFormat) astiav.SampleFormat {
	for _, m := range sampleFormats {
		if m.ours == f {
			return m.theirs
		}
	}
	return astiav.SampleFormatNone
}

func fromSampleFormat(f astiav.SampleFormat) codec.SampleFormat {
	for _, m := range sampleFormats {
		if m.theirs == f {
			return m.ours
		}
	}
	return codec.SampleFormatNone
}

// hardwareFormats maps backend device types to their surface formats.
var hardwareFormats = map[string]astiav.PixelFormat{
	"cuda":         astiav.PixelFormatCuda,
	"vaapi":        astiav.PixelFormatVaapi,
	"videotoolbox": astiav.PixelFormatVideotoolbox,
	"qsv":          astiav.PixelFormatQsv,
}

func channelLayout(channels int) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	case 6:
		return astiav.ChannelLayout5Point1, nil
	}
	return astiav.ChannelLayout{}, fmt.Errorf("unsupported channel count %d", channels)
}
