package libav

import (
	"errors"
	"fmt"
	"sort"

	"github.com/asticode/go-astiav"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

type encoderCodec struct {
	c *astiav.Codec
}

func (e *encoderCodec) Name() string { return e.c.Name() }

func (e *encoderCodec) Kind() codec.MediaKind {
	if e.c.MediaType() == astiav.MediaTypeAudio {
		return codec.KindAudio
	}
	return codec.KindVideo
}

func (e *encoderCodec) SampleFormats() []codec.SampleFormat {
	var out []codec.SampleFormat
	for _, f := range e.c.SampleFormats() {
		if sf := fromSampleFormat(f); sf != codec.SampleFormatNone {
			out = append(out, sf)
		}
	}
	return out
}

func (e *encoderCodec) PixelFormats() []codec.PixelFormat {
	var out []codec.PixelFormat
	for _, f := range e.c.PixelFormats() {
		if pf := fromPixelFormat(f); pf != codec.PixelFormatNone {
			out = append(out, pf)
		}
	}
	return out
}

func (e *encoderCodec) VariableFrameSize() bool {
	return e.c.Capabilities().Has(astiav.CodecCapabilityVariableFrameSize)
}

func (e *encoderCodec) HardwareFormat(deviceType string) codec.PixelFormat {
	t := astiav.FindHardwareDeviceTypeByName(deviceType)
	if t == astiav.HardwareDeviceTypeNone {
		return codec.PixelFormatNone
	}
	for _, hc := range e.c.HardwareConfigs() {
		if hc.HardwareDeviceType() != t {
			continue
		}
		if pf := fromPixelFormat(hc.PixelFormat()); pf.Hardware() {
			return pf
		}
	}
	// Some encoders only advertise the surface format.
	if hw, ok := hardwareFormats[deviceType]; ok {
		for _, pf := range e.c.PixelFormats() {
			if pf == hw {
				return fromPixelFormat(hw)
			}
		}
	}
	return codec.PixelFormatNone
}

type output struct {
	path string
	fc   *astiav.FormatContext
	ioc  *astiav.IOContext

	encoders      []*encoder
	headerWritten bool
	pkt           *astiav.Packet
}

func newOutput(path, format string) (*output, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, format, path)
	if err != nil {
		return nil, fmt.Errorf("output format %q for %s: %w", format, path, err)
	}
	if fc == nil {
		return nil, fmt.Errorf("no output format %q for %s", format, path)
	}
	o := &output{path: path, fc: fc, pkt: astiav.AllocPacket()}
	if !fc.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioc, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
		if err != nil {
			o.pkt.Free()
			fc.Free()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		fc.SetPb(ioc)
		o.ioc = ioc
	}
	return o, nil
}

func dictionary(options map[string]string) (*astiav.Dictionary, error) {
	if len(options) == 0 {
		return nil, nil
	}
	d := astiav.NewDictionary()
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := d.Set(k, options[k], 0); err != nil {
			d.Free()
			return nil, fmt.Errorf("option %s=%s: %w", k, options[k], err)
		}
	}
	return d, nil
}

func (o *output) AddStream(c codec.EncoderCodec, cfg codec.StreamConfig) (codec.Encoder, error) {
	if o.headerWritten {
		return nil, errors.New("add stream after header")
	}
	ec, ok := c.(*encoderCodec)
	if !ok {
		return nil, fmt.Errorf("foreign codec %s", c.Name())
	}

	cc := astiav.AllocCodecContext(ec.c)
	if cc == nil {
		return nil, errors.New("alloc codec context")
	}
	e := &encoder{output: o, kind: ec.Kind(), cc: cc, variable: ec.VariableFrameSize(), pkt: astiav.AllocPacket()}
	if err := e.configure(cfg); err != nil {
		_ = e.Close()
		return nil, err
	}
	if o.fc.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		cc.SetFlags(cc.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	opts, err := dictionary(cfg.Options)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	err = cc.Open(ec.c, opts)
	if opts != nil {
		opts.Free()
	}
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("open encoder %s: %w", ec.Name(), err)
	}

	st := o.fc.NewStream(ec.c)
	if st == nil {
		_ = e.Close()
		return nil, errors.New("new output stream")
	}
	if err := cc.ToCodecParameters(st.CodecParameters()); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("stream parameters: %w", err)
	}
	st.SetTimeBase(cc.TimeBase())
	e.stream = st
	o.encoders = append(o.encoders, e)
	return e, nil
}

func (o *output) WriteHeader(options map[string]string) error {
	opts, err := dictionary(options)
	if err != nil {
		return err
	}
	if opts != nil {
		defer opts.Free()
	}
	if err := o.fc.WriteHeader(opts); err != nil {
		return fmt.Errorf("write header of %s: %w", o.path, err)
	}
	o.headerWritten = true
	return nil
}

func (o *output) WritePacket(pkt *codec.Packet) error {
	defer o.pkt.Unref()
	if err := o.pkt.FromData(pkt.Data); err != nil {
		return fmt.Errorf("packet data: %w", err)
	}
	o.pkt.SetStreamIndex(pkt.StreamIndex)
	o.pkt.SetPts(fromPTS(pkt.PTS))
	o.pkt.SetDts(fromPTS(pkt.DTS))
	o.pkt.SetDuration(pkt.Duration)
	if pkt.Key {
		o.pkt.SetFlags(astiav.NewPacketFlags(astiav.PacketFlagKey))
	}
	if err := o.fc.WriteInterleavedFrame(o.pkt); err != nil {
		return fmt.Errorf("write packet to %s: %w", o.path, err)
	}
	return nil
}

func (o *output) WriteTrailer() error {
	if err := o.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("write trailer of %s: %w", o.path, err)
	}
	return nil
}

func (o *output) Close() error {
	if o.fc == nil {
		return nil
	}
	var err error
	if o.ioc != nil {
		err = o.ioc.Close()
		o.ioc = nil
	}
	o.pkt.Free()
	o.fc.Free()
	o.fc = nil
	return err
}

type encoder struct {
	output   *output
	kind     codec.MediaKind
	cc       *astiav.CodecContext
	stream   *astiav.Stream
	variable bool
	pkt      *astiav.Packet

	// Hardware encoders own a surface pool.
	hfc      *astiav.HardwareFramesContext
	spec     codec.VideoSpec
	uploader uploader
}

func (e *encoder) configure(cfg codec.StreamConfig) error {
	if cfg.Threads > 0 {
		e.cc.SetThreadCount(cfg.Threads)
	}
	switch e.kind {
	case codec.KindVideo:
		if cfg.FrameRate.IsZero() {
			return errors.New("video stream needs a frame rate")
		}
		inv, _ := cfg.FrameRate.Inv()
		e.cc.SetWidth(cfg.Video.Width)
		e.cc.SetHeight(cfg.Video.Height)
		e.cc.SetTimeBase(fromRational(inv))
		e.cc.SetFramerate(fromRational(cfg.FrameRate))
		e.spec = cfg.Video
		if cfg.Device == nil {
			e.cc.SetPixelFormat(toPixelFormat(cfg.Video.Format))
			return nil
		}
		dev, ok := cfg.Device.(*device)
		if !ok {
			return fmt.Errorf("%w: foreign device %s", codec.ErrHardwareUnsupported, cfg.Device.Type())
		}
		sw := cfg.SoftwareFormat
		if sw == codec.PixelFormatNone {
			sw = codec.PixelFormatNV12
		}
		hfc, err := newFramesContext(dev.hdc, toPixelFormat(cfg.Video.Format), toPixelFormat(sw), cfg.Video.Width, cfg.Video.Height)
		if err != nil {
			return err
		}
		e.hfc = hfc
		e.cc.SetPixelFormat(toPixelFormat(cfg.Video.Format))
		e.cc.SetHardwareFramesContext(hfc)
	case codec.KindAudio:
		layout, err := channelLayout(cfg.Audio.Channels)
		if err != nil {
			return err
		}
		if cfg.Audio.SampleRate <= 0 {
			return errors.New("audio stream needs a sample rate")
		}
		e.cc.SetSampleRate(cfg.Audio.SampleRate)
		e.cc.SetSampleFormat(toSampleFormat(cfg.Audio.Format))
		e.cc.SetChannelLayout(layout)
		e.cc.SetTimeBase(astiav.NewRational(1, cfg.Audio.SampleRate))
	}
	return nil
}

func (e *encoder) StreamIndex() int { return e.stream.Index() }

func (e *encoder) TimeBase() rational.Rational { return toRational(e.cc.TimeBase()) }

func (e *encoder) StreamTimeBase() rational.Rational { return toRational(e.stream.TimeBase()) }

func (e *encoder) FrameSize() int {
	if e.kind != codec.KindAudio || e.variable {
		return 0
	}
	return e.cc.FrameSize()
}

func (e *encoder) SendFrame(f *codec.Frame) error {
	if f == nil {
		return mapErr(e.cc.SendFrame(nil))
	}
	if f.Surface != nil {
		s, ok := f.Surface.(*surface)
		if !ok {
			return fmt.Errorf("%w: foreign surface", codec.ErrHardwareUnsupported)
		}
		s.frame.SetPts(fromPTS(f.PTS))
		return mapErr(e.cc.SendFrame(s.frame))
	}
	af, err := toFrame(f)
	if err != nil {
		return err
	}
	defer af.Free()
	return mapErr(e.cc.SendFrame(af))
}

func (e *encoder) ReceivePacket() (*codec.Packet, error) {
	defer e.pkt.Unref()
	if err := e.cc.ReceivePacket(e.pkt); err != nil {
		return nil, mapErr(err)
	}
	return &codec.Packet{
		StreamIndex: e.stream.Index(),
		PTS:         toPTS(e.pkt.Pts()),
		DTS:         toPTS(e.pkt.Dts()),
		Duration:    e.pkt.Duration(),
		TimeBase:    e.TimeBase(),
		Key:         e.pkt.Flags().Has(astiav.PacketFlagKey),
		Data:        append([]byte(nil), e.pkt.Data()...),
	}, nil
}

func (e *encoder) AllocSurface() (codec.Surface, error) {
	if e.hfc == nil {
		return nil, fmt.Errorf("%w: encoder has no surface pool", codec.ErrHardwareUnsupported)
	}
	return allocSurface(e.hfc, e.spec, &e.uploader)
}

// TransferSurface downloads src and uploads it into the encoder's pool.
func (e *encoder) TransferSurface(src codec.Surface) (codec.Surface, error) {
	sw, err := src.Download()
	if err != nil {
		return nil, err
	}
	dst, err := e.AllocSurface()
	if err != nil {
		return nil, err
	}
	if err := dst.Upload(sw); err != nil {
		dst.Free()
		return nil, err
	}
	return dst, nil
}

func (e *encoder) Close() error {
	if e.cc != nil {
		e.cc.Free()
		e.cc = nil
	}
	if e.hfc != nil {
		e.hfc.Free()
		e.hfc = nil
	}
	if e.pkt != nil {
		e.pkt.Free()
		e.pkt = nil
	}
	e.uploader.close()
	return nil
}
