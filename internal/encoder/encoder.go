package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"media-render/internal/codec"
	"media-render/internal/hwaccel"
	"media-render/internal/logging"
	"media-render/internal/metrics"
	"media-render/internal/queue"
	"media-render/internal/rational"
)

var log = logging.For("encoder")

const defaultFrameSize = 1024

// ErrNotOpen is returned when sending to or writing from an encoder that
// has not been opened or was already released.
var ErrNotOpen = errors.New("encoder: not open")

// SendStatus is the outcome of Send.
type SendStatus int

const (
	SendOK SendStatus = iota
	// SendAgain means the codec is full: call Write and resubmit the same unit.
	SendAgain
	SendError
)

func (s SendStatus) String() string {
	switch s {
	case SendOK:
		return "ok"
	case SendAgain:
		return "send_again"
	default:
		return "error"
	}
}

// WriteStatus is the outcome of Write.
type WriteStatus int

const (
	WriteOK WriteStatus = iota
	// RecvAgain means the codec needs more frames before it emits a packet.
	RecvAgain
	// RecvEOF means the stream is fully flushed.
	RecvEOF
	WriteError
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "ok"
	case RecvAgain:
		return "recv_again"
	case RecvEOF:
		return "recv_eof"
	default:
		return "error"
	}
}

// VideoConfig configures the video stream.
type VideoConfig struct {
	Codec     string
	Options   map[string]string
	Width     int
	Height    int
	FrameRate rational.Rational
}

// AudioConfig configures the audio stream. Spec.Format is the requested
// sample format; the codec may settle on its planar or packed counterpart.
type AudioConfig struct {
	Codec   string
	Options map[string]string
	Spec    codec.AudioSpec
}

// Config describes one output container.
type Config struct {
	Path             string
	Format           string
	Video            *VideoConfig
	Audio            *AudioConfig
	ContainerOptions map[string]string
	Threads          int
	// Mix is the layout of audio units handed to Send.
	Mix codec.AudioSpec
}

type stream struct {
	kind      codec.MediaKind
	codec     codec.EncoderCodec
	enc       codec.Encoder
	scaler    codec.Scaler
	resampler codec.Resampler
	video     codec.VideoSpec
	audio     codec.AudioSpec
	path      videoPath
	flushed   bool
}

// Encoder owns the output container and one encode context per stream.
// Send and Write for one stream must not be called concurrently; distinct
// streams are independent.
type Encoder struct {
	cfg      Config
	backend  codec.Backend
	strategy *hwaccel.Strategy

	output codec.Output
	video  *stream
	audio  *stream
	opened bool
	closed bool
}

// New resolves the configured codecs. Nothing is allocated until Open.
func New(backend codec.Backend, strategy *hwaccel.Strategy, cfg Config) (*Encoder, error) {
	if cfg.Video == nil && cfg.Audio == nil {
		return nil, fmt.Errorf("output %s has no streams", cfg.Path)
	}
	e := &Encoder{cfg: cfg, backend: backend, strategy: strategy}
	if cfg.Video != nil {
		c, err := backend.FindEncoder(cfg.Video.Codec)
		if err != nil {
			return nil, fmt.Errorf("video codec: %w", err)
		}
		if c.Kind() != codec.KindVideo {
			return nil, fmt.Errorf("%s is not a video codec", cfg.Video.Codec)
		}
		e.video = &stream{kind: codec.KindVideo, codec: c}
	}
	if cfg.Audio != nil {
		c, err := backend.FindEncoder(cfg.Audio.Codec)
		if err != nil {
			return nil, fmt.Errorf("audio codec: %w", err)
		}
		if c.Kind() != codec.KindAudio {
			return nil, fmt.Errorf("%s is not an audio codec", cfg.Audio.Codec)
		}
		e.audio = &stream{kind: codec.KindAudio, codec: c}
	}
	return e, nil
}

// Open creates the container, opens the encoders and writes the header.
func (e *Encoder) Open(ctx context.Context) error {
	if e.opened {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out, err := e.backend.CreateOutput(e.cfg.Path, e.cfg.Format)
	if err != nil {
		return fmt.Errorf("create output %s: %w", e.cfg.Path, err)
	}
	e.output = out

	if e.video != nil {
		if err := e.openVideo(); err != nil {
			e.Release()
			return err
		}
	}
	if e.audio != nil {
		if err := e.openAudio(); err != nil {
			e.Release()
			return err
		}
	}
	if err := e.output.WriteHeader(e.cfg.ContainerOptions); err != nil {
		e.Release()
		return fmt.Errorf("write header: %w", err)
	}

	e.opened = true
	log.Info("Opened %s (%s)", e.cfg.Path, e.describe())
	return nil
}

func (e *Encoder) describe() string {
	s := ""
	if e.video != nil {
		mode := e.video.path.mode().String()
		if dev := e.strategy.DeviceType(); dev != "" && e.HardwareVideo() {
			mode = fmt.Sprintf("%s (%s)", mode, dev)
		}
		s = fmt.Sprintf("video %s %s %s", e.video.codec.Name(), e.video.video, mode)
	}
	if e.audio != nil {
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("audio %s %s", e.audio.codec.Name(), e.audio.audio)
	}
	return s
}

func (e *Encoder) openVideo() error {
	vc := e.cfg.Video
	st := e.video
	base := codec.StreamConfig{
		FrameRate: vc.FrameRate,
		Options:   vc.Options,
		Threads:   e.cfg.Threads,
	}

	if e.strategy.Hardware() {
		enc, spec, err := e.addHardwareVideo(base)
		if err == nil {
			st.enc, st.video = enc, spec
			if e.strategy.NeedsTransfer() {
				st.path = copyPath{st: st, device: e.strategy.Device(), width: vc.Width, height: vc.Height}
			} else {
				st.path = nativePath{st: st, width: vc.Width, height: vc.Height}
			}
			return nil
		}
		e.strategy.Demote("encoder", err)
	}

	spec := codec.VideoSpec{Width: vc.Width, Height: vc.Height, Format: pickPixelFormat(st.codec)}
	cfg := base
	cfg.Video = spec
	enc, err := e.output.AddStream(st.codec, cfg)
	if err != nil {
		return fmt.Errorf("open video encoder %s: %w", st.codec.Name(), err)
	}
	scaler, err := e.backend.NewScaler(
		codec.VideoSpec{Width: vc.Width, Height: vc.Height, Format: codec.PixelFormatRGBA}, spec)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("video converter: %w", err)
	}
	st.enc, st.scaler, st.video = enc, scaler, spec
	st.path = softwarePath{st: st, width: vc.Width, height: vc.Height}
	return nil
}

func (e *Encoder) addHardwareVideo(base codec.StreamConfig) (codec.Encoder, codec.VideoSpec, error) {
	vc := e.cfg.Video
	device := e.strategy.Device()
	format := e.video.codec.HardwareFormat(device.Type())
	if format == codec.PixelFormatNone {
		return nil, codec.VideoSpec{}, fmt.Errorf("%w: %s cannot encode from %s",
			codec.ErrHardwareUnsupported, e.video.codec.Name(), device.Type())
	}
	spec := codec.VideoSpec{Width: vc.Width, Height: vc.Height, Format: format}
	cfg := base
	cfg.Video = spec
	cfg.Device = device
	cfg.SoftwareFormat = codec.PixelFormatNV12
	enc, err := e.output.AddStream(e.video.codec, cfg)
	if err != nil {
		return nil, spec, err
	}
	return enc, spec, nil
}

func (e *Encoder) openAudio() error {
	ac := e.cfg.Audio
	st := e.audio
	format := e.ValidateAudioFormat(ac.Spec.Format)
	if format == codec.SampleFormatNone {
		return fmt.Errorf("audio codec %s supports neither %s nor %s",
			st.codec.Name(), ac.Spec.Format, ac.Spec.Format.Alternate())
	}
	if format != ac.Spec.Format {
		log.Debug("Audio codec %s negotiated %s for requested %s", st.codec.Name(), format, ac.Spec.Format)
	}
	spec := ac.Spec
	spec.Format = format

	enc, err := e.output.AddStream(st.codec, codec.StreamConfig{
		Audio:   spec,
		Options: ac.Options,
		Threads: e.cfg.Threads,
	})
	if err != nil {
		return fmt.Errorf("open audio encoder %s: %w", st.codec.Name(), err)
	}
	mix := e.cfg.Mix
	if mix.SampleRate == 0 {
		mix = codec.AudioSpec{SampleRate: spec.SampleRate, Channels: spec.Channels, Format: codec.SampleFormatFLT}
		e.cfg.Mix = mix
	}
	resampler, err := e.backend.NewResampler(mix, spec)
	if err != nil {
		_ = enc.Close()
		return fmt.Errorf("audio converter: %w", err)
	}
	st.enc, st.resampler, st.audio = enc, resampler, spec
	return nil
}

// HasVideo reports whether the output carries video.
func (e *Encoder) HasVideo() bool { return e.video != nil }

// HasAudio reports whether the output carries audio.
func (e *Encoder) HasAudio() bool { return e.audio != nil }

// Geometry returns the output frame size.
func (e *Encoder) Geometry() (width, height int) {
	if e.cfg.Video == nil {
		return 0, 0
	}
	return e.cfg.Video.Width, e.cfg.Video.Height
}

// FrameRate returns the output frame rate.
func (e *Encoder) FrameRate() rational.Rational {
	if e.cfg.Video == nil {
		return rational.Zero
	}
	return e.cfg.Video.FrameRate
}

// MixSpec returns the layout audio units must be in.
func (e *Encoder) MixSpec() codec.AudioSpec { return e.cfg.Mix }

// AudioSpec returns the negotiated encoder audio layout.
func (e *Encoder) AudioSpec() codec.AudioSpec {
	if e.audio == nil {
		return codec.AudioSpec{}
	}
	return e.audio.audio
}

// HardwareVideo reports whether video frames are sent as device surfaces.
func (e *Encoder) HardwareVideo() bool {
	return e.video != nil && e.video.path != nil && e.video.path.mode() != hwaccel.Software
}

// ValidateAudioFormat returns the format the audio codec will accept for
// requested, checking the planar/packed counterpart, or SampleFormatNone.
func (e *Encoder) ValidateAudioFormat(requested codec.SampleFormat) codec.SampleFormat {
	if e.audio == nil {
		return codec.SampleFormatNone
	}
	return NegotiateSampleFormat(e.audio.codec, requested)
}

// NbSamplesPerFrame returns the number of samples each audio unit should
// carry: the codec's fixed frame size, or one video frame period of samples
// when the codec accepts any size.
func (e *Encoder) NbSamplesPerFrame() int {
	if e.audio == nil {
		return 0
	}
	if e.audio.enc != nil {
		if n := e.audio.enc.FrameSize(); n > 0 {
			return n
		}
	}
	rate := e.cfg.Audio.Spec.SampleRate
	if !e.audio.codec.VariableFrameSize() {
		return defaultFrameSize
	}
	return samplesPerVideoFrame(rate, e.FrameRate())
}

// AllocSurface returns a device surface for the compositor to fill. In
// hardware-native mode it comes straight from the encoder pool; in
// hardware-copy mode from the device, and Send transfers it.
func (e *Encoder) AllocSurface() (codec.Surface, error) {
	if e.video == nil || e.video.path == nil {
		return nil, fmt.Errorf("%w: output has no open video stream", codec.ErrHardwareUnsupported)
	}
	return e.video.path.alloc()
}

func (e *Encoder) streamFor(kind codec.MediaKind) *stream {
	if kind == codec.KindVideo {
		return e.video
	}
	return e.audio
}

// Send submits one unit. On SendOK and SendError the unit's surface is
// released; on SendAgain the unit is untouched and must be resubmitted
// after a Write.
func (e *Encoder) Send(u *queue.Unit) (SendStatus, error) {
	if !e.opened || e.closed {
		return SendError, ErrNotOpen
	}
	st := e.streamFor(u.Kind)
	if st == nil {
		u.Release()
		return SendError, fmt.Errorf("output has no %s stream", u.Kind)
	}

	frame, scratch, err := e.frameFor(st, u)
	if err == nil {
		err = st.enc.SendFrame(frame)
	}
	if scratch != nil {
		scratch.Free()
	}

	switch {
	case err == nil:
		u.Release()
		return SendOK, nil
	case errors.Is(err, codec.ErrAgain):
		metrics.EncoderStalls.WithLabelValues(st.kind.String()).Inc()
		return SendAgain, nil
	default:
		metrics.EncodeErrors.WithLabelValues(st.kind.String()).Inc()
		log.Warn("Dropping %s frame at %s: %v", st.kind, u.PTS, err)
		u.Release()
		return SendError, fmt.Errorf("send %s frame: %w", st.kind, err)
	}
}

// frameFor builds the native frame for u. scratch is a surface created for
// this call only, freed by the caller once the frame has been submitted.
func (e *Encoder) frameFor(st *stream, u *queue.Unit) (frame *codec.Frame, scratch codec.Surface, err error) {
	tb := st.enc.TimeBase()
	pts := u.PTS.Ticks(tb)

	if st.kind == codec.KindAudio {
		src := &codec.Frame{
			Kind:     codec.KindAudio,
			PTS:      pts,
			TimeBase: tb,
			Audio:    e.cfg.Mix,
			Samples:  u.Samples,
			Planes:   [][]byte{u.Data[:u.Size]},
		}
		out, err := st.resampler.Convert(src)
		if err != nil {
			return nil, nil, err
		}
		out.PTS = pts
		out.TimeBase = tb
		return out, nil, nil
	}

	return st.path.frame(u, pts, tb)
}

// Write pulls at most one packet from the kind's encoder and appends it to
// the container.
func (e *Encoder) Write(kind codec.MediaKind) (WriteStatus, error) {
	if !e.opened || e.closed {
		return WriteError, ErrNotOpen
	}
	st := e.streamFor(kind)
	if st == nil {
		return WriteError, fmt.Errorf("output has no %s stream", kind)
	}

	pkt, err := st.enc.ReceivePacket()
	switch {
	case errors.Is(err, codec.ErrAgain):
		return RecvAgain, nil
	case errors.Is(err, io.EOF):
		return RecvEOF, nil
	case err != nil:
		metrics.EncodeErrors.WithLabelValues(kind.String()).Inc()
		return WriteError, fmt.Errorf("receive %s packet: %w", kind, err)
	}

	from := pkt.TimeBase
	if from.IsZero() {
		from = st.enc.TimeBase()
	}
	to := st.enc.StreamTimeBase()
	pkt.PTS = codec.Rescale(pkt.PTS, from, to)
	pkt.DTS = codec.Rescale(pkt.DTS, from, to)
	if pkt.Duration > 0 {
		pkt.Duration = rational.FromTicks(pkt.Duration, from).Ticks(to)
	}
	pkt.TimeBase = to
	pkt.StreamIndex = st.enc.StreamIndex()

	size := len(pkt.Data)
	if err := e.output.WritePacket(pkt); err != nil {
		metrics.EncodeErrors.WithLabelValues(kind.String()).Inc()
		return WriteError, fmt.Errorf("write %s packet: %w", kind, err)
	}
	metrics.PacketsWritten.WithLabelValues(kind.String()).Inc()
	metrics.BytesWritten.WithLabelValues(kind.String()).Add(float64(size))
	return WriteOK, nil
}

// Drain writes packets of kind until the encoder has none ready.
func (e *Encoder) Drain(kind codec.MediaKind) error {
	for {
		status, err := e.Write(kind)
		if err != nil {
			return err
		}
		if status != WriteOK {
			return nil
		}
	}
}

// Close flushes every encoder, writes the trailer and releases all
// resources. It is safe to call more than once.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	if !e.opened {
		e.Release()
		return nil
	}

	var errs []error
	for _, st := range []*stream{e.video, e.audio} {
		if st == nil {
			continue
		}
		if err := e.flush(st); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.output.WriteTrailer(); err != nil {
		errs = append(errs, fmt.Errorf("write trailer: %w", err))
	}
	e.Release()
	if len(errs) == 0 {
		log.Info("Finished %s", e.cfg.Path)
	}
	return errors.Join(errs...)
}

func (e *Encoder) flush(st *stream) error {
	if st.flushed {
		return nil
	}
	st.flushed = true
	if err := st.enc.SendFrame(nil); err != nil {
		return fmt.Errorf("flush %s: %w", st.kind, err)
	}
	for {
		status, err := e.Write(st.kind)
		if err != nil {
			return err
		}
		switch status {
		case RecvEOF:
			return nil
		case RecvAgain:
			return fmt.Errorf("flush %s: encoder stalled while draining", st.kind)
		}
	}
}

// Release frees converters, encoders and the container without writing a
// trailer. A job aborted on a fatal error leaves its partial output as is.
func (e *Encoder) Release() {
	for _, st := range []*stream{e.video, e.audio} {
		if st == nil {
			continue
		}
		if st.scaler != nil {
			_ = st.scaler.Close()
			st.scaler = nil
		}
		if st.resampler != nil {
			_ = st.resampler.Close()
			st.resampler = nil
		}
		if st.enc != nil {
			if err := st.enc.Close(); err != nil {
				log.Debug("Closing %s encoder: %v", st.kind, err)
			}
			st.enc = nil
		}
	}
	if e.output != nil {
		if err := e.output.Close(); err != nil {
			log.Debug("Closing output %s: %v", e.cfg.Path, err)
		}
		e.output = nil
	}
	e.closed = true
}
