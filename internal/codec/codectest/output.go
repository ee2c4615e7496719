package codectest

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// ErrSyntheticEncode is returned by encoders configured with FailSendAfter.
var ErrSyntheticEncode = errors.New("synthetic encode failure")

// Output records what an encoder pipeline writes.
type Output struct {
	Path   string
	Format string

	backend *Backend

	mu             sync.Mutex
	encoders       []*Encoder
	packets        []*codec.Packet
	headerOptions  map[string]string
	headerWritten  bool
	trailerWritten bool
	closed         bool
}

// AddStream implements codec.Output.
func (o *Output) AddStream(c codec.EncoderCodec, cfg codec.StreamConfig) (codec.Encoder, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.headerWritten {
		return nil, fmt.Errorf("add stream after header")
	}
	spec, ok := c.(*CodecSpec)
	if !ok {
		return nil, fmt.Errorf("foreign codec %s", c.Name())
	}

	enc := &Encoder{
		output:     o,
		index:      len(o.encoders),
		spec:       spec,
		cfg:        cfg,
		delay:      o.backend.EncoderDelay,
		stallEvery: o.backend.StallEvery,
		failAfter:  o.backend.FailSendAfter,
	}
	switch spec.MediaKind {
	case codec.KindVideo:
		if cfg.FrameRate.IsZero() {
			return nil, fmt.Errorf("video stream needs a frame rate")
		}
		inv, _ := cfg.FrameRate.Inv()
		enc.timeBase = inv
		enc.streamTimeBase = VideoTimeBase
		if cfg.Device != nil {
			if spec.HardwareFormat(cfg.Device.Type()) == codec.PixelFormatNone {
				return nil, fmt.Errorf("%w: %s on %s", codec.ErrHardwareUnsupported, spec.CodecName, cfg.Device.Type())
			}
		} else if !containsPixel(spec.Pixels, cfg.Video.Format) {
			return nil, fmt.Errorf("%s does not accept %s", spec.CodecName, cfg.Video.Format)
		}
	case codec.KindAudio:
		if cfg.Audio.SampleRate <= 0 {
			return nil, fmt.Errorf("audio stream needs a sample rate")
		}
		enc.timeBase = rational.MustNew(1, int64(cfg.Audio.SampleRate))
		enc.streamTimeBase = enc.timeBase
		if len(spec.Samples) > 0 && !containsSample(spec.Samples, cfg.Audio.Format) {
			return nil, fmt.Errorf("%s does not accept %s", spec.CodecName, cfg.Audio.Format)
		}
	}
	o.encoders = append(o.encoders, enc)
	return enc, nil
}

func containsPixel(list []codec.PixelFormat, f codec.PixelFormat) bool {
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}

func containsSample(list []codec.SampleFormat, f codec.SampleFormat) bool {
	for _, v := range list {
		if v == f {
			return true
		}
	}
	return false
}

// WriteHeader implements codec.Output.
func (o *Output) WriteHeader(options map[string]string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.encoders) == 0 {
		return fmt.Errorf("no streams")
	}
	o.headerOptions = options
	o.headerWritten = true
	return nil
}

// WritePacket implements codec.Output.
func (o *Output) WritePacket(pkt *codec.Packet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.headerWritten || o.trailerWritten {
		return fmt.Errorf("write packet outside header/trailer")
	}
	o.packets = append(o.packets, pkt)
	return nil
}

// WriteTrailer implements codec.Output.
func (o *Output) WriteTrailer() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.headerWritten {
		return fmt.Errorf("trailer without header")
	}
	o.trailerWritten = true
	return nil
}

// Close implements codec.Output.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// Packets returns the packets written so far.
func (o *Output) Packets() []*codec.Packet {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*codec.Packet(nil), o.packets...)
}

// Encoders returns the encoders added to the output.
func (o *Output) Encoders() []*Encoder {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Encoder(nil), o.encoders...)
}

// HeaderOptions returns the options passed to WriteHeader.
func (o *Output) HeaderOptions() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.headerOptions
}

// Finished reports whether the trailer was written and the output closed.
func (o *Output) Finished() (trailer, closed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.trailerWritten, o.closed
}

// Encoder is a synthetic stream encoder that records received frames.
type Encoder struct {
	output         *Output
	index          int
	spec           *CodecSpec
	cfg            codec.StreamConfig
	timeBase       rational.Rational
	streamTimeBase rational.Rational
	delay          int
	stallEvery     int
	failAfter      int

	mu       sync.Mutex
	frames   []*codec.Frame
	pending  []*codec.Packet
	attempts int
	stalls   int
	flushing bool
	closed   bool
}

// StreamIndex implements codec.Encoder.
func (e *Encoder) StreamIndex() int { return e.index }

// TimeBase implements codec.Encoder.
func (e *Encoder) TimeBase() rational.Rational { return e.timeBase }

// StreamTimeBase implements codec.Encoder.
func (e *Encoder) StreamTimeBase() rational.Rational { return e.streamTimeBase }

// FrameSize implements codec.Encoder.
func (e *Encoder) FrameSize() int { return e.spec.FixedFrameSize }

// Kind returns the encoder's media kind.
func (e *Encoder) Kind() codec.MediaKind { return e.spec.MediaKind }

// SendFrame implements codec.Encoder.
func (e *Encoder) SendFrame(f *codec.Frame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.flushing {
		return fmt.Errorf("send after flush")
	}
	if f == nil {
		e.flushing = true
		return nil
	}

	e.attempts++
	if e.stallEvery > 0 && e.attempts%e.stallEvery == 0 && len(e.pending) > 0 {
		e.stalls++
		return codec.ErrAgain
	}
	if e.failAfter > 0 && len(e.frames) >= e.failAfter {
		return ErrSyntheticEncode
	}

	recorded, err := e.accept(f)
	if err != nil {
		return err
	}
	e.frames = append(e.frames, recorded)

	dur := recorded.Duration
	if e.spec.MediaKind == codec.KindAudio {
		dur = int64(recorded.Samples)
	} else if dur == 0 {
		dur = 1
	}
	e.pending = append(e.pending, &codec.Packet{
		StreamIndex: e.index,
		PTS:         f.PTS,
		DTS:         f.PTS,
		Duration:    dur,
		TimeBase:    e.timeBase,
		Key:         true,
		Data:        []byte{byte(len(e.frames))},
	})
	return nil
}

func (e *Encoder) accept(f *codec.Frame) (*codec.Frame, error) {
	switch e.spec.MediaKind {
	case codec.KindAudio:
		if f.Audio.Format != e.cfg.Audio.Format {
			return nil, fmt.Errorf("audio frame format %s, encoder expects %s", f.Audio.Format, e.cfg.Audio.Format)
		}
		if e.spec.FixedFrameSize > 0 && f.Samples > e.spec.FixedFrameSize {
			return nil, fmt.Errorf("audio frame of %d samples exceeds frame size %d", f.Samples, e.spec.FixedFrameSize)
		}
		return cloneFrame(f), nil
	default:
		if e.cfg.Device != nil {
			if f.Surface == nil {
				return nil, fmt.Errorf("hardware encoder needs a surface")
			}
			if f.Surface.Format() != e.cfg.Video.Format {
				return nil, fmt.Errorf("surface format %s, encoder pool uses %s", f.Surface.Format(), e.cfg.Video.Format)
			}
			sf, ok := f.Surface.(*Surface)
			if !ok || !sf.pooled {
				return nil, fmt.Errorf("surface is not from the encoder pool")
			}
			data, err := f.Surface.Download()
			if err != nil {
				return nil, err
			}
			data.PTS = f.PTS
			return data, nil
		}
		if f.Video.Format != e.cfg.Video.Format {
			return nil, fmt.Errorf("video frame format %s, encoder expects %s", f.Video.Format, e.cfg.Video.Format)
		}
		return cloneFrame(f), nil
	}
}

// ReceivePacket implements codec.Encoder.
func (e *Encoder) ReceivePacket() (*codec.Packet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) > e.delay || (e.flushing && len(e.pending) > 0) {
		pkt := e.pending[0]
		e.pending = e.pending[1:]
		return pkt, nil
	}
	if e.flushing {
		return nil, io.EOF
	}
	return nil, codec.ErrAgain
}

// AllocSurface implements codec.Encoder.
func (e *Encoder) AllocSurface() (codec.Surface, error) {
	if e.cfg.Device == nil {
		return nil, fmt.Errorf("%w: encoder has no device", codec.ErrHardwareUnsupported)
	}
	s := newSurface(e.output.backend, e.cfg.Video.Format, e.cfg.Video)
	s.pooled = true
	return s, nil
}

// TransferSurface implements codec.Encoder.
func (e *Encoder) TransferSurface(src codec.Surface) (codec.Surface, error) {
	data, err := src.Download()
	if err != nil {
		return nil, err
	}
	dst, err := e.AllocSurface()
	if err != nil {
		return nil, err
	}
	if err := dst.Upload(data); err != nil {
		dst.Free()
		return nil, err
	}
	return dst, nil
}

// Close implements codec.Encoder.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Frames returns the frames accepted so far.
func (e *Encoder) Frames() []*codec.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*codec.Frame(nil), e.frames...)
}

// Stalls returns how many SendFrame calls returned ErrAgain.
func (e *Encoder) Stalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stalls
}

// Flushed reports whether a nil frame was sent.
func (e *Encoder) Flushed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushing
}

// Config returns the stream configuration the encoder was created with.
func (e *Encoder) Config() codec.StreamConfig { return e.cfg }
