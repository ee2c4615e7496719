package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-render/internal/encoder"
	"media-render/internal/metrics"
	"media-render/internal/queue"
)

// maxStalls bounds consecutive SendAgain results without an accepted unit.
const maxStalls = 64

var errEncoderStalled = errors.New("encoder refuses input after draining")

// consumer is the state of the consume loop.
type consumer struct {
	job *Job
	// pending is a unit the encoder refused with SendAgain. It is resubmitted
	// before anything else is dequeued.
	pending *queue.Unit
	stalls  int
}

// consume feeds queued units to the encoder until the producer is done,
// performs one final drain and closes the encoder.
func (j *Job) consume(ctx context.Context) error {
	c := &consumer{job: j}

	for !j.producerFinished.Get() {
		if ctx.Err() != nil {
			break
		}
		if c.pending == nil && !c.waitNotEmpty() {
			continue
		}
		if _, err := c.drain(); err != nil {
			return c.abort(err)
		}
	}

	// On cancellation the producer exits at its next iteration boundary.
	// Nothing is enqueued after this returns.
	_ = j.producerFinished.WaitUntilContext(context.Background(), isSet)

	if err := c.finalDrain(ctx); err != nil {
		return c.abort(err)
	}
	if err := j.encoder.Close(); err != nil {
		return fmt.Errorf("close encoder: %w", err)
	}
	return nil
}

func (c *consumer) waitNotEmpty() bool {
	start := time.Now()
	ok := c.job.queue.WaitForNotEmpty(c.job.cfg.PollInterval)
	if ok {
		metrics.QueueWaitDuration.WithLabelValues("consumer").Observe(time.Since(start).Seconds())
	}
	return ok
}

// drain sends queued units until the queue is empty or the encoder asks to
// be drained first. stalled reports the latter.
func (c *consumer) drain() (stalled bool, err error) {
	enc := c.job.encoder
	for {
		u := c.pending
		if u == nil {
			var ok bool
			if u, ok = c.job.queue.Dequeue(); !ok {
				return false, nil
			}
		}

		status, err := enc.Send(u)
		switch status {
		case encoder.SendOK:
			c.pending = nil
			c.stalls = 0
			c.job.summary.UnitsEncoded++
			if err := enc.Drain(u.Kind); err != nil {
				return false, err
			}
		case encoder.SendAgain:
			c.pending = u
			c.stalls++
			if c.stalls > maxStalls {
				return true, errEncoderStalled
			}
			if err := enc.Drain(u.Kind); err != nil {
				return true, err
			}
			return true, nil
		default:
			c.pending = nil
			return false, err
		}
	}
}

// finalDrain empties the queue once after the producer has finished. A
// cancelled job under SkipDrainOnCancel drops the queue instead.
func (c *consumer) finalDrain(ctx context.Context) error {
	j := c.job
	j.summary.FinalDrains++

	if ctx.Err() != nil && j.cfg.DrainPolicy == SkipDrainOnCancel {
		n := j.queue.Discard()
		if c.pending != nil {
			c.pending.Release()
			c.pending = nil
			n++
		}
		j.summary.UnitsDiscarded += n
		metrics.UnitsDiscarded.Add(float64(n))
		log.Info("Cancelled, discarded %d queued units", n)
		return nil
	}

	for c.pending != nil || j.queue.Len() > 0 {
		if _, err := c.drain(); err != nil {
			return err
		}
	}
	return nil
}

// abort drops the pending unit. The encoder is left open so the producer
// can finish its step; the controller releases it without a trailer.
func (c *consumer) abort(err error) error {
	if c.pending != nil {
		c.pending.Release()
		c.pending = nil
	}
	return fmt.Errorf("%w: %w", ErrAborted, err)
}
