package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"media-render/internal/codec"
	"media-render/internal/decode"
	"media-render/internal/metrics"
	"media-render/internal/queue"
	"media-render/internal/rational"
	"media-render/internal/render"
)

// producer is the state of the produce loop. It is only touched by the
// producer goroutine.
type producer struct {
	job   *Job
	fps   rational.Rational
	total int64
	gains map[string]float64
	// frames holds decoded video units per layer, oldest first.
	frames map[string][]*decode.Unit
	ended  bool
}

// outputRate returns the step of the produce loop: the video frame rate, or
// one audio frame per step for audio-only output.
func (j *Job) outputRate() (rational.Rational, error) {
	if fps := j.encoder.FrameRate(); fps.Sign() > 0 {
		return fps, nil
	}
	if j.encoder.HasAudio() {
		n := j.encoder.NbSamplesPerFrame()
		if n > 0 {
			return rational.New(int64(j.encoder.MixSpec().SampleRate), int64(n))
		}
	}
	return rational.Zero, errors.New("output has neither a frame rate nor an audio frame size")
}

func ceil(r rational.Rational) int64 {
	return -r.Neg().Floor()
}

func audioGains(j *Job) map[string]float64 {
	gains := make(map[string]float64)
	for _, a := range j.cfg.Profile.Atoms {
		for _, l := range a.Layers {
			if l.Audio {
				gains[l.ID] = l.LinearGain()
			}
		}
	}
	return gains
}

// produce runs one step per output frame: decode until the frame's inputs
// are ready, composite, mix audio up to the next frame and enqueue.
func (j *Job) produce(ctx context.Context) error {
	fps, err := j.outputRate()
	if err != nil {
		return err
	}
	p := &producer{
		job:    j,
		fps:    fps,
		gains:  audioGains(j),
		frames: make(map[string][]*decode.Unit),
	}
	defer p.releaseFrames()

	p.total = ceil(j.cfg.Profile.Duration.Mul(fps)) - ceil(j.cfg.Start.Mul(fps))

	period, err := fps.Inv()
	if err != nil {
		return err
	}
	window := period.Add(period)

	t := j.cfg.Start
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !j.cfg.Monitor.WaitIfPaused(ctx) && ctx.Err() != nil {
			return ctx.Err()
		}

		contexts, err := j.cfg.Evaluator.Evaluate(t, fps, window)
		if err != nil {
			return fmt.Errorf("evaluate at %s: %w", t, err)
		}
		if len(contexts) == 0 {
			break
		}
		current := contexts[0]
		next := j.cfg.Profile.Duration
		if len(contexts) > 1 {
			next = contexts[1].PTS
		}

		if err := j.waitNotFull(ctx); err != nil {
			return err
		}
		if err := p.decodeUntil(ctx, next); err != nil {
			return err
		}
		if err := p.emitVideo(current); err != nil {
			return err
		}
		if j.mixer != nil {
			p.emitAudio(j.mixer.Pull(next))
		}

		j.summary.Frames++
		if p.total > 0 {
			metrics.JobProgress.Set(float64(j.summary.Frames) / float64(p.total))
		}
		if j.cfg.Progress != nil {
			j.cfg.Progress(Progress{Frame: j.summary.Frames, Total: p.total, PTS: current.PTS})
		}
		t = current.PTS.Add(period)
	}

	if j.mixer != nil {
		p.emitAudio(j.mixer.Flush(j.cfg.Profile.Duration))
	}
	log.Debug("Producer finished at %s after %d frames", t, j.summary.Frames)
	return nil
}

// waitNotFull blocks until the queue has room, polling so cancellation is
// noticed.
func (j *Job) waitNotFull(ctx context.Context) error {
	start := time.Now()
	for !j.queue.WaitForNotFull(j.cfg.PollInterval) {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	metrics.QueueWaitDuration.WithLabelValues("producer").Observe(time.Since(start).Seconds())
	return nil
}

// decodeUntil steps the timeline decoder until every active layer has
// decoded up to until. One output frame may need several decode steps.
func (p *producer) decodeUntil(ctx context.Context, until rational.Rational) error {
	if p.ended {
		return nil
	}
	dec := p.job.decoder
	for !dec.Ready(until) {
		res := dec.Decode(ctx, decode.UpTo(until))
		switch res.Code {
		case decode.OK:
			if err := p.accept(res.Unit); err != nil {
				return err
			}
		case decode.Error:
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("decode atom %s layer %s: %w", res.AtomID, res.LayerID, res.Err)
		case decode.StreamEnded:
			if res.Err != nil {
				log.Warn("Layer %s lost a stream: %v", res.LayerID, res.Err)
			}
		case decode.TimelineEnded:
			p.ended = true
			return nil
		}
	}
	return nil
}

func (p *producer) accept(u *decode.Unit) error {
	switch u.Kind {
	case codec.KindVideo:
		if !p.job.encoder.HasVideo() {
			u.Release()
			return nil
		}
		p.frames[u.LayerID] = append(p.frames[u.LayerID], u)
	case codec.KindAudio:
		gain, ok := p.gains[u.LayerID]
		if p.job.mixer == nil || !ok {
			return nil
		}
		if err := p.job.mixer.Push(u.LayerID, u.PTS, u.Frame, gain); err != nil {
			return fmt.Errorf("mix layer %s: %w", u.LayerID, err)
		}
	}
	return nil
}

// pick returns the newest frame of each layer at or before pts, releasing
// the frames it supersedes.
func (p *producer) pick(pts rational.Rational) map[string]*codec.Frame {
	out := make(map[string]*codec.Frame, len(p.frames))
	for id, units := range p.frames {
		chosen := -1
		for i, u := range units {
			if pts.Less(u.PTS) {
				break
			}
			chosen = i
		}
		if chosen < 0 {
			continue
		}
		for _, u := range units[:chosen] {
			u.Release()
		}
		units = units[chosen:]
		p.frames[id] = units
		out[id] = units[0].Frame
	}
	return out
}

func (p *producer) emitVideo(fc render.FrameContext) error {
	j := p.job
	if !j.encoder.HasVideo() {
		return nil
	}
	started := time.Now()
	w, h := j.encoder.Geometry()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := j.cfg.Compositor.Composite(fc, p.pick(fc.PTS), dst); err != nil {
		return fmt.Errorf("composite frame %d: %w", fc.Index, err)
	}

	u := &queue.Unit{PTS: fc.PTS, Kind: codec.KindVideo}
	if j.encoder.HardwareVideo() {
		s, err := j.encoder.AllocSurface()
		if err != nil {
			return fmt.Errorf("allocate surface: %w", err)
		}
		raster := &codec.Frame{
			Kind:    codec.KindVideo,
			Video:   codec.VideoSpec{Width: w, Height: h, Format: codec.PixelFormatRGBA},
			Planes:  [][]byte{dst.Pix},
			Strides: []int{dst.Stride},
		}
		if err := s.Upload(raster); err != nil {
			s.Free()
			return fmt.Errorf("upload frame %d: %w", fc.Index, err)
		}
		u.Surface = s
	} else {
		u.Data = dst.Pix
		u.Size = len(dst.Pix)
	}

	j.queue.Enqueue(u)
	metrics.FramesRendered.WithLabelValues("video").Inc()
	metrics.RenderDuration.WithLabelValues("video").Observe(time.Since(started).Seconds())
	return nil
}

func (p *producer) emitAudio(chunks []*queue.Unit) {
	for _, u := range chunks {
		p.job.queue.Enqueue(u)
		p.job.summary.AudioChunks++
		metrics.FramesRendered.WithLabelValues("audio").Inc()
	}
}

func (p *producer) releaseFrames() {
	for id, units := range p.frames {
		for _, u := range units {
			u.Release()
		}
		delete(p.frames, id)
	}
}
