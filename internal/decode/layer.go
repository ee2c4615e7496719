package decode

import (
	"context"
	"errors"
	"fmt"
	"io"

	"media-render/internal/codec"
	"media-render/internal/hwaccel"
	"media-render/internal/logging"
	"media-render/internal/metrics"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

var log = logging.For("decode")

// Env carries the job-wide collaborators every layer decodes with.
type Env struct {
	Backend  codec.Backend
	Strategy *hwaccel.Strategy
	// Audio is the sample format decoded audio is converted to. A zero SampleRate
	// means the output has no audio and audio streams are not opened.
	Audio   codec.AudioSpec
	Threads int
}

// decodeStream is the per-input-stream decode state.
type decodeStream struct {
	info          codec.StreamInfo
	decoder       codec.Decoder
	resampler     codec.Resampler
	resamplerInit bool
	firstPTSSeen  bool
	startOffset   int64

	// lowerBound is the monotone current decode PTS. Units ending at or
	// before it are skipped.
	lowerBound  rational.Rational
	hasAccepted bool
	lastPTS     rational.Rational
	front       rational.Rational

	lastRaw    int64
	lastRawDur int64

	pending  *codec.Packet
	draining bool
	drained  bool
	wrapped  bool
	done     bool
	failed   bool
}

func (s *decodeStream) live() bool { return !s.done && !s.failed }

func (s *decodeStream) decodeFront() rational.Rational {
	if s.hasAccepted {
		return s.front
	}
	return s.lowerBound
}

func (s *decodeStream) resetLoop() {
	s.pending = nil
	s.draining = false
	s.drained = false
	s.wrapped = false
}

// LayerSource decodes one layer's input and places its frames on the
// timeline, looping the trim window to fill the layer's slot.
type LayerSource struct {
	layer profile.Layer
	env   Env

	input   codec.Input
	streams []*decodeStream
	byIndex map[int]*decodeStream

	end       rational.Rational
	activeDur rational.Rational
	loop      int64
	loopUnits int
	eof       bool
	ended     bool
}

// NewLayerSource returns an uninitialized source for layer.
func NewLayerSource(layer profile.Layer, env Env) *LayerSource {
	return &LayerSource{
		layer:   layer,
		env:     env,
		byIndex: make(map[int]*decodeStream),
	}
}

// Init opens the input and positions every stream at decodeStart.
func (l *LayerSource) Init(ctx context.Context, decodeStart rational.Rational) error {
	in, err := l.env.Backend.OpenInput(ctx, l.layer.Source)
	if err != nil {
		return fmt.Errorf("layer %s: open %s: %w", l.layer.ID, l.layer.Source, err)
	}
	l.input = in

	sourceDur, err := l.openStreams()
	if err != nil {
		l.Close()
		return err
	}
	if err := l.window(sourceDur); err != nil {
		l.Close()
		return err
	}
	if err := l.position(decodeStart, false); err != nil {
		l.Close()
		return err
	}
	log.Debug("Layer %s: %d streams, trim [%s, %s), loop %d", l.layer.ID, len(l.streams), l.layer.Start, l.end, l.loop)
	return nil
}

func (l *LayerSource) openStreams() (rational.Rational, error) {
	var haveVideo, haveAudio bool
	var sourceDur rational.Rational

	for _, info := range l.input.Streams() {
		switch {
		case info.Kind == codec.KindVideo && l.layer.Video && !haveVideo:
			haveVideo = true
		case info.Kind == codec.KindAudio && l.layer.Audio && !haveAudio && l.env.Audio.SampleRate > 0:
			haveAudio = true
		default:
			continue
		}

		dec, err := l.openDecoder(info)
		if err != nil {
			return sourceDur, fmt.Errorf("layer %s: stream %d: %w", l.layer.ID, info.Index, err)
		}
		s := &decodeStream{info: info, decoder: dec}
		if info.StartTime != codec.NoPTS {
			s.startOffset = info.StartTime
		}
		l.streams = append(l.streams, s)
		l.byIndex[info.Index] = s
		sourceDur = rational.Max(sourceDur, info.Duration)
	}

	if len(l.streams) == 0 {
		return sourceDur, fmt.Errorf("layer %s: %w in %s", l.layer.ID, codec.ErrNoStream, l.layer.Source)
	}
	if l.layer.Video && !haveVideo {
		log.Debug("Layer %s: %s has no video stream", l.layer.ID, l.layer.Source)
	}
	return sourceDur, nil
}

func (l *LayerSource) openDecoder(info codec.StreamInfo) (codec.Decoder, error) {
	opts := l.env.Strategy.DecoderOptions(info.Kind, l.env.Threads)
	dec, err := l.input.OpenDecoder(info.Index, opts)
	if err != nil && opts.Device != nil {
		log.Warn("Layer %s: hardware decode of %s unavailable, using software: %v", l.layer.ID, info.Codec, err)
		metrics.HWAccelFallbacks.WithLabelValues("decoder").Inc()
		opts.Device = nil
		dec, err = l.input.OpenDecoder(info.Index, opts)
	}
	return dec, err
}

// window resolves the effective trim end. An unset end uses the source
// duration; when that is unknown too the source plays through once.
func (l *LayerSource) window(sourceDur rational.Rational) error {
	l.end = l.layer.End
	switch {
	case l.end.IsZero() && sourceDur.IsZero():
		l.end = l.layer.Start.Add(l.layer.To.Sub(l.layer.From))
	case l.end.IsZero():
		l.end = sourceDur
	case !sourceDur.IsZero() && sourceDur.Less(l.end):
		log.Debug("Layer %s: trim end %s past source duration %s", l.layer.ID, l.end, sourceDur)
		l.end = sourceDur
	}
	l.activeDur = l.end.Sub(l.layer.Start)
	if l.activeDur.Sign() <= 0 {
		return fmt.Errorf("layer %s: empty trim window [%s, %s)", l.layer.ID, l.layer.Start, l.end)
	}
	return nil
}

func (l *LayerSource) loopStart(n int64) rational.Rational {
	return l.layer.From.Add(l.activeDur.Mul(rational.FromInt(n)))
}

// position sets the loop count and lower bounds for pts and seeks to the
// matching trim offset. Without force the seek is skipped at offset zero.
func (l *LayerSource) position(pts rational.Rational, force bool) error {
	lower := rational.Max(pts, l.layer.From)
	if !lower.Less(l.layer.To) {
		l.ended = true
		return nil
	}

	q, err := lower.Sub(l.layer.From).Div(l.activeDur)
	if err != nil {
		return err
	}
	l.loop = q.Floor()
	within := lower.Sub(l.loopStart(l.loop))
	target := l.layer.Start.Add(within)

	for _, s := range l.streams {
		s.lowerBound = lower
	}
	if target.Sign() > 0 || force {
		return l.seekNative(target)
	}
	return nil
}

func (l *LayerSource) seekNative(rpts rational.Rational) error {
	ref := l.streams[0]
	ts := rpts.Ticks(ref.info.TimeBase) + ref.startOffset
	if err := l.input.Seek(ref.info.Index, ts, true); err != nil {
		return fmt.Errorf("layer %s: seek to %s: %w", l.layer.ID, rpts, err)
	}
	for _, s := range l.streams {
		s.decoder.Flush()
		s.resetLoop()
	}
	l.eof = false
	return nil
}

// Seek repositions the layer so the next accepted units start at pts.
func (l *LayerSource) Seek(pts rational.Rational) error {
	if len(l.streams) == 0 {
		return fmt.Errorf("layer %s: seek on closed source", l.layer.ID)
	}
	for _, s := range l.streams {
		s.hasAccepted = false
		s.done = false
	}
	l.ended = false
	l.loopUnits = 0
	return l.position(pts, true)
}

// CanDecode reports whether the layer may still produce units.
func (l *LayerSource) CanDecode() bool {
	return !l.ended
}

// Loop returns the current loop count.
func (l *LayerSource) Loop() int64 {
	return l.loop
}

// DecodeFront returns the earliest timeline time any live stream has
// decoded up to. ok is false once no stream can decode.
func (l *LayerSource) DecodeFront() (front rational.Rational, ok bool) {
	if l.ended {
		return l.layer.To, false
	}
	for _, s := range l.streams {
		if !s.live() {
			continue
		}
		f := s.decodeFront()
		if !ok || f.Less(front) {
			front, ok = f, true
		}
	}
	if !ok {
		return l.layer.To, false
	}
	return front, true
}

// Decode performs one step: it feeds at most one packet and receives at
// most one frame.
func (l *LayerSource) Decode(_ Args) Result {
	if l.ended {
		return l.result(LayerEnded)
	}

	for _, s := range l.streams {
		if s.pending == nil || !s.live() {
			continue
		}
		if err := s.decoder.SendPacket(s.pending); err == nil {
			s.pending = nil
		} else if !errors.Is(err, codec.ErrAgain) {
			s.pending = nil
			return l.streamFailed(s, err)
		}
		return l.receive(s)
	}

	if l.eof {
		for _, s := range l.streams {
			if s.live() && s.draining && !s.drained {
				return l.receive(s)
			}
		}
		return l.settle(Retry)
	}

	pkt, err := l.input.ReadPacket()
	if errors.Is(err, io.EOF) {
		return l.startDrain()
	}
	if err != nil {
		l.ended = true
		return Result{Code: Error, LayerID: l.layer.ID, Err: fmt.Errorf("layer %s: read: %w", l.layer.ID, err)}
	}

	s := l.byIndex[pkt.StreamIndex]
	if s == nil || !s.live() || s.wrapped {
		return l.settle(Skip)
	}
	if err := s.decoder.SendPacket(pkt); err != nil {
		if !errors.Is(err, codec.ErrAgain) {
			return l.streamFailed(s, err)
		}
		s.pending = pkt
	}
	return l.receive(s)
}

// startDrain puts every live stream into draining. A stream that refuses
// the drain fails alone; the others still drain.
func (l *LayerSource) startDrain() Result {
	l.eof = true
	var failed *Result
	for _, s := range l.streams {
		if !s.live() || s.wrapped {
			continue
		}
		if err := s.decoder.SendPacket(nil); err != nil {
			if failed == nil {
				r := l.streamFailed(s, err)
				failed = &r
			} else {
				l.streamFailed(s, err)
			}
			continue
		}
		s.draining = true
	}
	if failed != nil {
		return *failed
	}
	return l.result(Retry)
}

func (l *LayerSource) receive(s *decodeStream) Result {
	f, err := s.decoder.ReceiveFrame()
	switch {
	case err == nil:
		return l.accept(s, f)
	case errors.Is(err, codec.ErrAgain):
		return l.result(Retry)
	case errors.Is(err, io.EOF):
		s.drained = true
		return l.settle(Retry)
	default:
		return l.streamFailed(s, err)
	}
}

func (l *LayerSource) streamFailed(s *decodeStream, err error) Result {
	s.failed = true
	s.pending = nil
	log.Error("Layer %s: %s stream %d failed: %v", l.layer.ID, s.info.Kind, s.info.Index, err)

	live := false
	for _, o := range l.streams {
		live = live || o.live()
	}
	if !live {
		l.ended = true
	}
	return Result{Code: StreamEnded, LayerID: l.layer.ID, Err: err}
}

// settle decides what happens once streams stop at the trim end or end of
// file: loop back to the trim start, or end the layer. pass is returned
// while some stream is still decoding the current loop.
func (l *LayerSource) settle(pass ResultCode) Result {
	live, waiting := 0, 0
	for _, s := range l.streams {
		if !s.live() {
			continue
		}
		live++
		if s.wrapped || s.drained {
			waiting++
		}
	}
	if live == 0 {
		l.ended = true
		return l.result(LayerEnded)
	}
	if waiting < live {
		return l.result(pass)
	}
	return l.nextLoop()
}

func (l *LayerSource) nextLoop() Result {
	next := l.loopStart(l.loop + 1)
	if !next.Less(l.layer.To) || l.loopUnits == 0 {
		if l.loopUnits == 0 && next.Less(l.layer.To) {
			log.Debug("Layer %s: no units decoded in loop %d, not looping", l.layer.ID, l.loop)
		}
		l.ended = true
		return l.result(LayerEOF)
	}

	if err := l.seekNative(l.layer.Start); err != nil {
		l.ended = true
		return Result{Code: Error, LayerID: l.layer.ID, Err: err}
	}
	l.loop++
	l.loopUnits = 0
	metrics.LayerLoops.Inc()
	log.Debug("Layer %s: loop %d starts at %s", l.layer.ID, l.loop, next)
	return l.result(Retry)
}

func (l *LayerSource) accept(s *decodeStream, f *codec.Frame) Result {
	raw := f.PTS
	if raw == codec.NoPTS {
		raw = s.startOffset
		if s.firstPTSSeen {
			raw = s.lastRaw + s.lastRawDur
		}
	}
	if !s.firstPTSSeen {
		s.firstPTSSeen = true
		if s.info.StartTime == codec.NoPTS {
			s.startOffset = raw
		}
	}
	s.lastRaw, s.lastRawDur = raw, f.Duration

	tb := f.TimeBase
	if tb.IsZero() {
		tb = s.info.TimeBase
	}
	rpts := rational.FromTicks(raw-s.startOffset, tb)
	loopStart := l.loopStart(l.loop)
	pts := loopStart.Add(rpts.Sub(l.layer.Start))
	end := pts.Add(l.frameDuration(s, f, tb))

	if !rpts.Less(l.end) {
		releaseFrame(f)
		s.wrapped = true
		return l.settle(Skip)
	}
	if !pts.Less(l.layer.To) {
		releaseFrame(f)
		s.done = true
		return l.settle(Skip)
	}

	lo := rational.Max(s.lowerBound, loopStart)
	hi := rational.Min(l.layer.To, loopStart.Add(l.activeDur))
	if !lo.Less(end) {
		releaseFrame(f)
		return l.result(Skip)
	}
	start := rational.Max(pts, lo)
	stop := rational.Min(end, hi)
	if start.Sign() < 0 || (s.hasAccepted && !s.lastPTS.Less(start)) {
		releaseFrame(f)
		return l.result(Skip)
	}

	unit := &Unit{Kind: s.info.Kind, PTS: start, Duration: stop.Sub(start), LayerID: l.layer.ID}
	if s.info.Kind == codec.KindAudio {
		out, err := l.convertAudio(s, f, start.Sub(pts), end.Sub(stop))
		if err != nil {
			return l.streamFailed(s, err)
		}
		if out == nil {
			return l.result(Skip)
		}
		unit.Frame = out
		unit.Duration = rational.MustNew(int64(out.Samples), int64(out.Audio.SampleRate))
		stop = start.Add(unit.Duration)
		s.lowerBound = stop
	} else {
		unit.Frame = f
		s.lowerBound = start
	}

	s.lastPTS = start
	s.hasAccepted = true
	s.front = stop
	l.loopUnits++
	return Result{Code: OK, Unit: unit, LayerID: l.layer.ID}
}

func (l *LayerSource) frameDuration(s *decodeStream, f *codec.Frame, tb rational.Rational) rational.Rational {
	if s.info.Kind == codec.KindAudio && f.Samples > 0 && f.Audio.SampleRate > 0 {
		return rational.MustNew(int64(f.Samples), int64(f.Audio.SampleRate))
	}
	if f.Duration > 0 {
		return rational.FromTicks(f.Duration, tb)
	}
	if !s.info.FrameRate.IsZero() {
		if d, err := s.info.FrameRate.Inv(); err == nil {
			return d
		}
	}
	return rational.MustNew(1, 1000)
}

// convertAudio resamples f to the mix spec and trims head and tail, given
// as timeline durations. It returns nil when nothing is left.
func (l *LayerSource) convertAudio(s *decodeStream, f *codec.Frame, head, tail rational.Rational) (*codec.Frame, error) {
	if !s.resamplerInit {
		r, err := l.env.Backend.NewResampler(f.Audio, l.env.Audio)
		if err != nil {
			return nil, err
		}
		s.resampler = r
		s.resamplerInit = true
	}
	out, err := s.resampler.Convert(f)
	if err != nil {
		return nil, err
	}

	tb := rational.MustNew(1, int64(out.Audio.SampleRate))
	trimAudio(out, int(head.Ticks(tb)), int(tail.Ticks(tb)))
	if out.Samples <= 0 {
		return nil, nil
	}
	return out, nil
}

// trimAudio drops head samples from the front and tail samples from the end.
func trimAudio(f *codec.Frame, head, tail int) {
	if head < 0 {
		head = 0
	}
	if tail < 0 {
		tail = 0
	}
	if head+tail >= f.Samples {
		f.Samples = 0
		for i := range f.Planes {
			f.Planes[i] = f.Planes[i][:0]
		}
		return
	}
	if head == 0 && tail == 0 {
		return
	}

	width := f.Audio.Format.BytesPerSample()
	if !f.Audio.Format.Planar() {
		width *= f.Audio.Channels
	}
	keep := f.Samples - head - tail
	for i, p := range f.Planes {
		f.Planes[i] = p[head*width : (head+keep)*width]
	}
	f.Samples = keep
	f.Duration = int64(keep)
	f.TimeBase = rational.MustNew(1, int64(f.Audio.SampleRate))
}

func (l *LayerSource) result(code ResultCode) Result {
	return Result{Code: code, LayerID: l.layer.ID}
}

// Close releases decoders, resamplers and the input.
func (l *LayerSource) Close() {
	for _, s := range l.streams {
		if s.decoder != nil {
			if err := s.decoder.Close(); err != nil {
				log.Debug("Layer %s: closing decoder: %v", l.layer.ID, err)
			}
			s.decoder = nil
		}
		if s.resampler != nil {
			if err := s.resampler.Close(); err != nil {
				log.Debug("Layer %s: closing resampler: %v", l.layer.ID, err)
			}
			s.resampler = nil
		}
	}
	l.streams = nil
	l.byIndex = make(map[int]*decodeStream)
	if l.input != nil {
		if err := l.input.Close(); err != nil {
			log.Debug("Layer %s: closing input: %v", l.layer.ID, err)
		}
		l.input = nil
	}
	l.ended = true
}
