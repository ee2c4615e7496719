package libav

import (
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// microseconds is FFmpeg's AV_TIME_BASE.
var microseconds = rational.MustNew(1, 1000000)

// kindOther marks data and subtitle streams, which nothing decodes.
const kindOther codec.MediaKind = -1

var errDecoderClosed = errors.New("decoder is closed")

type input struct {
	path    string
	fc      *astiav.FormatContext
	streams []codec.StreamInfo
	pkt     *astiav.Packet
}

func newInput(path string, fc *astiav.FormatContext) *input {
	in := &input{path: path, fc: fc, pkt: astiav.AllocPacket()}
	for _, s := range fc.Streams() {
		in.streams = append(in.streams, streamInfo(fc, s))
	}
	return in
}

func streamInfo(fc *astiav.FormatContext, s *astiav.Stream) codec.StreamInfo {
	cp := s.CodecParameters()
	tb := toRational(s.TimeBase())
	info := codec.StreamInfo{
		Index:     s.Index(),
		Codec:     cp.CodecID().Name(),
		TimeBase:  tb,
		StartTime: toPTS(s.StartTime()),
		FrameRate: toRational(s.AvgFrameRate()),
	}
	if d := s.Duration(); d > 0 && !tb.IsZero() {
		info.Duration = rational.FromTicks(d, tb)
	} else if d := fc.Duration(); d > 0 {
		info.Duration = rational.FromTicks(d, microseconds)
	}

	switch cp.MediaType() {
	case astiav.MediaTypeVideo:
		info.Kind = codec.KindVideo
		info.Video = codec.VideoSpec{Width: cp.Width(), Height: cp.Height(), Format: fromPixelFormat(cp.PixelFormat())}
	case astiav.MediaTypeAudio:
		info.Kind = codec.KindAudio
		info.Audio = codec.AudioSpec{
			SampleRate: cp.SampleRate(),
			Channels:   cp.ChannelLayout().Channels(),
			Format:     fromSampleFormat(cp.SampleFormat()),
		}
	default:
		info.Kind = kindOther
	}
	return info
}

func (in *input) Streams() []codec.StreamInfo { return in.streams }

func (in *input) stream(index int) (*astiav.Stream, codec.StreamInfo, error) {
	streams := in.fc.Streams()
	if index < 0 || index >= len(streams) {
		return nil, codec.StreamInfo{}, fmt.Errorf("%w: %s has no stream %d", codec.ErrNoStream, in.path, index)
	}
	return streams[index], in.streams[index], nil
}

func (in *input) OpenDecoder(index int, opts codec.DecoderOptions) (codec.Decoder, error) {
	s, info, err := in.stream(index)
	if err != nil {
		return nil, err
	}
	if info.Kind != codec.KindVideo && info.Kind != codec.KindAudio {
		return nil, fmt.Errorf("%w: stream %d of %s is neither audio nor video", codec.ErrNoStream, index, in.path)
	}
	c := astiav.FindDecoder(s.CodecParameters().CodecID())
	if c == nil {
		return nil, fmt.Errorf("%w: no decoder for %s", codec.ErrUnknownCodec, info.Codec)
	}

	d := &decoder{codec: c, params: s.CodecParameters(), info: info, threads: opts.Threads}
	if opts.Device != nil {
		dev, ok := opts.Device.(*device)
		if !ok {
			return nil, fmt.Errorf("%w: foreign device %s", codec.ErrHardwareUnsupported, opts.Device.Type())
		}
		hwFormat, ok := decoderHardwareFormat(c, dev.hdc.Type())
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", codec.ErrHardwareUnsupported, c.Name(), dev.deviceType)
		}
		d.device, d.hwFormat = dev, hwFormat
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

// decoderHardwareFormat finds the surface format c produces on t.
func decoderHardwareFormat(c *astiav.Codec, t astiav.HardwareDeviceType) (astiav.PixelFormat, bool) {
	for _, hc := range c.HardwareConfigs() {
		if hc.MethodFlags().Has(astiav.CodecHardwareConfigMethodFlagHwDeviceCtx) && hc.HardwareDeviceType() == t {
			return hc.PixelFormat(), true
		}
	}
	return astiav.PixelFormatNone, false
}

func (in *input) ReadPacket() (*codec.Packet, error) {
	defer in.pkt.Unref()
	if err := in.fc.ReadFrame(in.pkt); err != nil {
		if errors.Is(err, astiav.ErrEof) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read %s: %w", in.path, err)
	}
	idx := in.pkt.StreamIndex()
	var tb rational.Rational
	if idx >= 0 && idx < len(in.streams) {
		tb = in.streams[idx].TimeBase
	}
	return &codec.Packet{
		StreamIndex: idx,
		PTS:         toPTS(in.pkt.Pts()),
		DTS:         toPTS(in.pkt.Dts()),
		Duration:    in.pkt.Duration(),
		TimeBase:    tb,
		Key:         in.pkt.Flags().Has(astiav.PacketFlagKey),
		Data:        append([]byte(nil), in.pkt.Data()...),
	}, nil
}

func (in *input) Seek(index int, ts int64, backward bool) error {
	if _, _, err := in.stream(index); err != nil {
		return err
	}
	flags := astiav.NewSeekFlags()
	if backward {
		flags = astiav.NewSeekFlags(astiav.SeekFlagBackward)
	}
	if err := in.fc.SeekFrame(index, ts, flags); err != nil {
		return fmt.Errorf("seek %s stream %d to %d: %w", in.path, index, ts, err)
	}
	return nil
}

func (in *input) Close() error {
	if in.fc == nil {
		return nil
	}
	in.pkt.Free()
	in.fc.CloseInput()
	in.fc.Free()
	in.fc = nil
	return nil
}

type decoder struct {
	codec   *astiav.Codec
	params  *astiav.CodecParameters
	info    codec.StreamInfo
	threads int

	device   *device
	hwFormat astiav.PixelFormat

	cc  *astiav.CodecContext
	pkt *astiav.Packet
	// toRGBA converts frames whose pixel format has no codec equivalent.
	toRGBA *astiav.SoftwareScaleContext
}

func (d *decoder) open() error {
	cc := astiav.AllocCodecContext(d.codec)
	if cc == nil {
		return errors.New("alloc codec context")
	}
	if err := d.params.ToCodecContext(cc); err != nil {
		cc.Free()
		return fmt.Errorf("decoder parameters: %w", err)
	}
	cc.SetTimeBase(fromRational(d.info.TimeBase))
	if d.threads > 0 {
		cc.SetThreadCount(d.threads)
	}
	if d.device != nil {
		cc.SetHardwareDeviceContext(d.device.hdc)
		hw := d.hwFormat
		cc.SetPixelFormatCallback(func(pfs []astiav.PixelFormat) astiav.PixelFormat {
			for _, pf := range pfs {
				if pf == hw {
					return pf
				}
			}
			return astiav.PixelFormatNone
		})
	}
	if err := cc.Open(d.codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("open decoder %s: %w", d.codec.Name(), err)
	}
	d.cc = cc
	if d.pkt == nil {
		d.pkt = astiav.AllocPacket()
	}
	return nil
}

func (d *decoder) SendPacket(pkt *codec.Packet) error {
	if d.cc == nil {
		return errDecoderClosed
	}
	if pkt == nil {
		return mapErr(d.cc.SendPacket(nil))
	}
	defer d.pkt.Unref()
	if err := d.pkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("packet data: %w", err)
	}
	d.pkt.SetPts(fromPTS(pkt.PTS))
	d.pkt.SetDts(fromPTS(pkt.DTS))
	d.pkt.SetDuration(pkt.Duration)
	d.pkt.SetStreamIndex(pkt.StreamIndex)
	if pkt.Key {
		d.pkt.SetFlags(astiav.NewPacketFlags(astiav.PacketFlagKey))
	}
	return mapErr(d.cc.SendPacket(d.pkt))
}

func (d *decoder) ReceiveFrame() (*codec.Frame, error) {
	if d.cc == nil {
		return nil, errDecoderClosed
	}
	f := astiav.AllocFrame()
	if err := d.cc.ReceiveFrame(f); err != nil {
		f.Free()
		return nil, mapErr(err)
	}

	if d.device != nil && f.PixelFormat() == d.hwFormat {
		s := &surface{frame: f, format: fromPixelFormat(d.hwFormat)}
		return &codec.Frame{
			Kind:     codec.KindVideo,
			PTS:      toPTS(f.Pts()),
			TimeBase: d.info.TimeBase,
			Video:    codec.VideoSpec{Width: f.Width(), Height: f.Height(), Format: s.format},
			Surface:  s,
		}, nil
	}
	defer f.Free()

	if d.info.Kind == codec.KindVideo && fromPixelFormat(f.PixelFormat()) == codec.PixelFormatNone {
		return d.convertRGBA(f)
	}
	return fromFrame(f, d.info.Kind, d.info.TimeBase)
}

// convertRGBA handles decoders that output formats such as 10-bit YUV.
func (d *decoder) convertRGBA(f *astiav.Frame) (*codec.Frame, error) {
	if d.toRGBA == nil {
		ssc, err := astiav.CreateSoftwareScaleContext(f.Width(), f.Height(), f.PixelFormat(),
			f.Width(), f.Height(), astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", f.PixelFormat(), err)
		}
		d.toRGBA = ssc
	}
	out := astiav.AllocFrame()
	defer out.Free()
	out.SetWidth(f.Width())
	out.SetHeight(f.Height())
	out.SetPixelFormat(astiav.PixelFormatRgba)
	if err := out.AllocBuffer(0); err != nil {
		return nil, err
	}
	if err := d.toRGBA.ScaleFrame(f, out); err != nil {
		return nil, fmt.Errorf("convert %s: %w", f.PixelFormat(), err)
	}
	out.SetPts(f.Pts())
	return fromFrame(out, codec.KindVideo, d.info.TimeBase)
}

// Flush reopens the codec context, which drops every buffered frame.
func (d *decoder) Flush() {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if err := d.open(); err != nil {
		log.Warn("Reopening %s decoder after seek: %v", d.codec.Name(), err)
	}
}

func (d *decoder) Hardware() bool { return d.device != nil }

func (d *decoder) Close() error {
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.toRGBA != nil {
		d.toRGBA.Free()
		d.toRGBA = nil
	}
	return nil
}
