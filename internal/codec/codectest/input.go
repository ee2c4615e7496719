package codectest

import (
	"errors"
	"fmt"
	"io"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// ErrSyntheticDecode is returned by decoders configured with FailAfter.
var ErrSyntheticDecode = errors.New("synthetic decode failure")

type stream struct {
	info     codec.StreamInfo
	start    int64 // ticks
	pktTicks int64
	count    int64
	next     int64
}

func (s *stream) packetTime(i int64) rational.Rational {
	return rational.FromTicks(i*s.pktTicks, s.info.TimeBase)
}

type input struct {
	backend *Backend
	media   Media
	streams []*stream
	closed  bool
}

func newInput(b *Backend, m Media) *input {
	in := &input{backend: b, media: m}
	if m.Video {
		tb := VideoTimeBase
		frameDur := rational.MustNew(1, m.FPS)
		in.streams = append(in.streams, &stream{
			info: codec.StreamInfo{
				Index:     len(in.streams),
				Kind:      codec.KindVideo,
				Codec:     "rawvideo",
				TimeBase:  tb,
				Duration:  m.Duration,
				FrameRate: rational.FromInt(m.FPS),
				Video:     codec.VideoSpec{Width: m.Width, Height: m.Height, Format: codec.PixelFormatRGBA},
			},
			start:    m.StartTime.Ticks(tb),
			pktTicks: frameDur.Ticks(tb),
			count:    ceilDiv(m.Duration, frameDur),
		})
	}
	if m.Audio {
		tb := rational.MustNew(1, int64(m.SampleRate))
		pktDur := rational.MustNew(int64(m.SamplesPerPacket), int64(m.SampleRate))
		in.streams = append(in.streams, &stream{
			info: codec.StreamInfo{
				Index:    len(in.streams),
				Kind:     codec.KindAudio,
				Codec:    "pcm",
				TimeBase: tb,
				Duration: m.Duration,
				Audio:    codec.AudioSpec{SampleRate: m.SampleRate, Channels: m.Channels, Format: m.SampleFormat},
			},
			start:    m.StartTime.Ticks(tb),
			pktTicks: int64(m.SamplesPerPacket),
			count:    ceilDiv(m.Duration, pktDur),
		})
	}
	for _, s := range in.streams {
		s.info.StartTime = s.start
	}
	return in
}

func ceilDiv(total, step rational.Rational) int64 {
	q, err := total.Div(step)
	if err != nil {
		return 0
	}
	n := q.Floor()
	if !rational.FromInt(n).Equal(q) {
		n++
	}
	return n
}

func (in *input) Streams() []codec.StreamInfo {
	out := make([]codec.StreamInfo, len(in.streams))
	for i, s := range in.streams {
		out[i] = s.info
	}
	return out
}

func (in *input) OpenDecoder(index int, opts codec.DecoderOptions) (codec.Decoder, error) {
	if index < 0 || index >= len(in.streams) {
		return nil, fmt.Errorf("%w: index %d", codec.ErrNoStream, index)
	}
	s := in.streams[index]
	d := &decoder{backend: in.backend, media: in.media, stream: s}
	if opts.Device != nil {
		if in.media.NoHardwareDecode || s.info.Kind != codec.KindVideo {
			return nil, fmt.Errorf("%w: stream %d", codec.ErrHardwareUnsupported, index)
		}
		d.device = opts.Device
	}
	return d, nil
}

func (in *input) ReadPacket() (*codec.Packet, error) {
	if in.closed {
		return nil, fmt.Errorf("read from closed input")
	}
	var best *stream
	for _, s := range in.streams {
		if s.next >= s.count {
			continue
		}
		if best == nil || s.packetTime(s.next).Less(best.packetTime(best.next)) {
			best = s
		}
	}
	if best == nil {
		return nil, io.EOF
	}
	i := best.next
	best.next++
	pts := best.start + i*best.pktTicks
	return &codec.Packet{
		StreamIndex: best.info.Index,
		PTS:         pts,
		DTS:         pts,
		Duration:    best.pktTicks,
		TimeBase:    best.info.TimeBase,
		Key:         best.info.Kind == codec.KindAudio || i%in.media.GOP == 0,
		Data:        []byte{byte(i), byte(i >> 8), byte(i >> 16)},
	}, nil
}

func (in *input) Seek(index int, ts int64, backward bool) error {
	if index < 0 || index >= len(in.streams) {
		return fmt.Errorf("%w: index %d", codec.ErrNoStream, index)
	}
	ref := in.streams[index]
	target := rational.FromTicks(ts-ref.start, ref.info.TimeBase)
	if target.Sign() < 0 {
		target = rational.Zero
	}
	for _, s := range in.streams {
		q, _ := target.Div(s.packetTime(1))
		i := q.Floor()
		if s.info.Kind == codec.KindVideo {
			if backward {
				i -= i % in.media.GOP
			} else if i%in.media.GOP != 0 {
				i += in.media.GOP - i%in.media.GOP
			}
		}
		if i > s.count {
			i = s.count
		}
		s.next = i
	}
	return nil
}

func (in *input) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	in.backend.mu.Lock()
	in.backend.openInputs--
	in.backend.mu.Unlock()
	return nil
}

type decoder struct {
	backend  *Backend
	media    Media
	stream   *stream
	device   codec.HardwareDevice
	queue    []*codec.Packet
	draining bool
	frames   int
}

func (d *decoder) SendPacket(pkt *codec.Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	if d.draining {
		return fmt.Errorf("send after drain without flush")
	}
	if len(d.queue) > d.media.Latency+1 {
		return codec.ErrAgain
	}
	d.queue = append(d.queue, pkt)
	return nil
}

func (d *decoder) ReceiveFrame() (*codec.Frame, error) {
	if len(d.queue) == 0 || (!d.draining && len(d.queue) <= d.media.Latency) {
		if d.draining {
			return nil, io.EOF
		}
		return nil, codec.ErrAgain
	}
	if d.media.FailAfter > 0 && d.frames >= d.media.FailAfter {
		return nil, ErrSyntheticDecode
	}
	pkt := d.queue[0]
	d.queue = d.queue[1:]
	d.frames++
	return d.frameFor(pkt)
}

func (d *decoder) frameFor(pkt *codec.Packet) (*codec.Frame, error) {
	s := d.stream
	index := (pkt.PTS - s.start) / s.pktTicks
	f := &codec.Frame{
		Kind:     s.info.Kind,
		PTS:      pkt.PTS,
		Duration: pkt.Duration,
		TimeBase: s.info.TimeBase,
	}

	if s.info.Kind == codec.KindAudio {
		spec := s.info.Audio
		chans := make([][]float32, spec.Channels)
		for c := range chans {
			chans[c] = make([]float32, d.media.SamplesPerPacket)
			for i := range chans[c] {
				chans[c][i] = d.media.AudioValue
			}
		}
		planes, err := codec.EncodeSamples(chans, spec)
		if err != nil {
			return nil, err
		}
		f.Audio = spec
		f.Samples = d.media.SamplesPerPacket
		f.Planes = planes
		return f, nil
	}

	spec := s.info.Video
	f.Video = spec
	f.Planes = [][]byte{FramePixels(spec.Width, spec.Height, index)}
	f.Strides = []int{spec.Width * 4}
	if d.device != nil {
		sf := newSurface(d.backend, HardwareSurfaceFormat(d.device.Type()), spec)
		sf.frame = cloneFrame(f)
		f.Planes = nil
		f.Strides = nil
		f.Surface = sf
		f.Video.Format = sf.format
	}
	return f, nil
}

// FramePixels returns the RGBA raster of synthetic frame index. The red
// channel of every pixel holds the low byte of the index.
func FramePixels(width, height int, index int64) []byte {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i] = byte(index)
		pix[i+1] = 0x40
		pix[i+2] = 0x80
		pix[i+3] = 0xff
	}
	return pix
}

func (d *decoder) Flush() {
	d.queue = nil
	d.draining = false
}

func (d *decoder) Hardware() bool { return d.device != nil }

func (d *decoder) Close() error {
	d.queue = nil
	return nil
}
