package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"media-render/internal/codec"
	"media-render/internal/decode"
	"media-render/internal/encoder"
	"media-render/internal/gate"
	"media-render/internal/hwaccel"
	"media-render/internal/logging"
	"media-render/internal/memory"
	"media-render/internal/metrics"
	"media-render/internal/profile"
	"media-render/internal/queue"
	"media-render/internal/rational"
	"media-render/internal/render"
	"media-render/internal/workers"
)

var log = logging.For("pipeline")

// ErrAborted is returned when the encoder rejects a unit. The output is left
// without a trailer.
var ErrAborted = errors.New("render aborted")

const (
	defaultQueueCapacity = 8
	defaultPollInterval  = 50 * time.Millisecond
)

// DrainPolicy decides what the consumer does with queued units once the job
// has been cancelled.
type DrainPolicy int

const (
	// DrainAlways encodes every queued unit before closing the encoder,
	// cancelled or not.
	DrainAlways DrainPolicy = iota
	// SkipDrainOnCancel discards queued units when the job was cancelled.
	// The encoder is still flushed and the trailer written.
	SkipDrainOnCancel
)

func (p DrainPolicy) String() string {
	if p == SkipDrainOnCancel {
		return "skip_on_cancel"
	}
	return "always"
}

// ParseDrainPolicy accepts "always" and "skip" (or "skip-on-cancel"). Boolean
// forms map true to always.
func ParseDrainPolicy(s string) (DrainPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always", "true", "1", "yes":
		return DrainAlways, nil
	case "skip", "skip-on-cancel", "skip_on_cancel", "false", "0", "no":
		return SkipDrainOnCancel, nil
	}
	return DrainAlways, fmt.Errorf("unknown drain policy %q", s)
}

// Progress is reported after every output frame.
type Progress struct {
	Frame int64
	Total int64
	PTS   rational.Rational
}

// Config describes one render job.
type Config struct {
	Profile *profile.Render
	Backend codec.Backend
	Output  encoder.Config
	HWAccel hwaccel.Config

	// QueueCapacity bounds the encode queue. It is further capped by the
	// memory budget.
	QueueCapacity int
	DrainPolicy   DrainPolicy
	DecodeThreads int
	// Start is the timeline time rendering begins at.
	Start rational.Rational

	// Evaluator and Compositor default to the profile evaluator and the
	// software compositor.
	Evaluator  render.Evaluator
	Compositor render.Compositor

	Progress func(Progress)
	Monitor  *memory.Monitor
	// PollInterval bounds every gate wait so cancellation is noticed.
	PollInterval time.Duration
}

// Summary describes a finished job.
type Summary struct {
	Frames         int64
	AudioChunks    int64
	UnitsEncoded   int64
	UnitsDiscarded int
	FinalDrains    int
	Mode           hwaccel.Mode
	Duration       time.Duration
}

// Job is the controller of one render: it owns the decoder, the encoder and
// the queue between the producer and the consumer.
type Job struct {
	cfg Config

	strategy *hwaccel.Strategy
	encoder  *encoder.Encoder
	decoder  *decode.TimelineDecoder
	queue    *queue.Queue
	mixer    *render.Mixer

	producerFinished *gate.Value[bool]
	consumerFinished *gate.Value[bool]

	summary Summary
	ran     bool
}

// NewJob validates cfg and fills in defaults. Nothing is opened until Run.
func NewJob(cfg Config) (*Job, error) {
	if cfg.Profile == nil {
		return nil, errors.New("job has no render profile")
	}
	if cfg.Backend == nil {
		return nil, errors.New("job has no codec backend")
	}
	if cfg.Output.Video == nil && cfg.Output.Audio == nil {
		return nil, fmt.Errorf("output %s has no streams", cfg.Output.Path)
	}
	if cfg.Start.Sign() < 0 || !cfg.Start.Less(cfg.Profile.Duration) {
		return nil, fmt.Errorf("start %s outside timeline of %s", cfg.Start, cfg.Profile.Duration)
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DecodeThreads <= 0 {
		cfg.DecodeThreads = workers.ForDecoders(maxLayers(cfg.Profile))
	}
	if cfg.Output.Threads <= 0 {
		cfg.Output.Threads = workers.ForEncoder()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = render.NewProfileEvaluator(cfg.Profile)
	}
	if cfg.Compositor == nil {
		cfg.Compositor = render.NewSoftwareCompositor(cfg.Backend)
	}

	capacity := cfg.QueueCapacity
	if v := cfg.Output.Video; v != nil {
		capacity = memory.QueueCapacity(capacity, int64(v.Width)*int64(v.Height)*4, 0)
	}

	return &Job{
		cfg:              cfg,
		queue:            queue.New(capacity),
		producerFinished: gate.New(false),
		consumerFinished: gate.New(false),
	}, nil
}

func maxLayers(r *profile.Render) int {
	n := 1
	for _, a := range r.Atoms {
		if len(a.Layers) > n {
			n = len(a.Layers)
		}
	}
	return n
}

// Run renders the timeline into the output. It returns once both loops have
// finished and every resource is released. A Job runs once.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	if j.ran {
		return j.summary, errors.New("job already ran")
	}
	j.ran = true

	started := time.Now()
	metrics.JobsInProgress.Inc()
	defer metrics.JobsInProgress.Dec()

	err := j.run(ctx)
	j.release()

	j.summary.Duration = time.Since(started)
	status := jobStatus(err)
	metrics.JobsTotal.WithLabelValues(status).Inc()
	metrics.JobDuration.Observe(j.summary.Duration.Seconds())

	switch status {
	case "success":
		log.Info("Rendered %s: %d frames, %d audio chunks in %v",
			j.cfg.Output.Path, j.summary.Frames, j.summary.AudioChunks, j.summary.Duration.Round(time.Millisecond))
	case "canceled":
		log.Warn("Render of %s cancelled after %d frames", j.cfg.Output.Path, j.summary.Frames)
	default:
		log.Error("Render of %s failed: %v", j.cfg.Output.Path, err)
	}
	return j.summary, err
}

func jobStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (j *Job) run(ctx context.Context) error {
	j.strategy = hwaccel.Select(ctx, j.cfg.Backend, j.cfg.HWAccel)

	enc, err := encoder.New(j.cfg.Backend, j.strategy, j.cfg.Output)
	if err != nil {
		return err
	}
	j.encoder = enc
	// The encoder opens first so a hardware demotion applies to every decoder.
	if err := enc.Open(ctx); err != nil {
		return err
	}
	j.summary.Mode = j.strategy.Mode()

	env := decode.Env{
		Backend:  j.cfg.Backend,
		Strategy: j.strategy,
		Threads:  j.cfg.DecodeThreads,
	}
	if enc.HasAudio() {
		env.Audio = enc.MixSpec()
		j.mixer, err = render.NewMixer(enc.MixSpec(), enc.NbSamplesPerFrame(), j.cfg.Start)
		if err != nil {
			return err
		}
	}
	j.decoder = decode.NewTimelineDecoder(j.cfg.Profile, env, j.cfg.Start)

	log.Info("Rendering %s [%s, %s) to %s, queue %d, drain %s, %s",
		j.cfg.Profile.ID, j.cfg.Start, j.cfg.Profile.Duration, j.cfg.Output.Path,
		j.queue.Cap(), j.cfg.DrainPolicy, j.strategy)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer j.producerFinished.Set(true)
		return j.produce(gctx)
	})
	g.Go(func() error {
		defer j.consumerFinished.Set(true)
		return j.consume(gctx)
	})
	err = g.Wait()

	// Both flags are set by now; waiting on them keeps the release ordered
	// after the loops even if one returned early.
	_ = j.producerFinished.WaitUntilContext(context.Background(), isSet)
	_ = j.consumerFinished.WaitUntilContext(context.Background(), isSet)

	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return err
}

func isSet(v bool) bool { return v }

// release frees everything the job owns. It runs once, after both loops.
func (j *Job) release() {
	if j.decoder != nil {
		j.decoder.Close()
	}
	if n := j.queue.Discard(); n > 0 {
		j.summary.UnitsDiscarded += n
		metrics.UnitsDiscarded.Add(float64(n))
	}
	if j.encoder != nil {
		j.encoder.Release()
	}
	if j.cfg.Compositor != nil {
		if err := j.cfg.Compositor.Close(); err != nil {
			log.Debug("Closing compositor: %v", err)
		}
	}
	if err := j.strategy.Close(); err != nil {
		log.Debug("Closing hardware device: %v", err)
	}
}
