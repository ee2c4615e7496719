package decode

import (
	"context"
	"fmt"

	"media-render/internal/metrics"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

// State is the position of a TimelineDecoder.
type State int

const (
	// NotStarted means no atom has been visited yet.
	NotStarted State = iota
	// Decoding means the atom at Index is current.
	Decoding
	// Ended is terminal.
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Decoding:
		return "decoding"
	default:
		return "ended"
	}
}

// TimelineDecoder walks the atoms of a render profile in order. It is used
// by a single goroutine.
type TimelineDecoder struct {
	render      *profile.Render
	env         Env
	decodeStart rational.Rational

	state   State
	index   int
	current *AtomSource
}

// NewTimelineDecoder positions a decoder at the atom containing decodeStart.
// A start at or past the profile's end yields an ended decoder.
func NewTimelineDecoder(render *profile.Render, env Env, decodeStart rational.Rational) *TimelineDecoder {
	d := &TimelineDecoder{render: render, env: env, decodeStart: decodeStart}
	d.index = len(render.Atoms)
	for i, atom := range render.Atoms {
		if atom.Contains(decodeStart) {
			d.index = i
			break
		}
	}
	if d.index >= len(render.Atoms) {
		d.state = Ended
	}
	return d
}

// State returns the decoder state and the current atom index.
func (d *TimelineDecoder) State() (State, int) {
	return d.state, d.index
}

// Decode advances the timeline by one step. Atoms with nothing left to
// decode are closed and skipped in a loop; once the last one is exhausted
// every call returns TimelineEnded.
func (d *TimelineDecoder) Decode(ctx context.Context, args Args) Result {
	res := d.step(ctx, args)
	metrics.DecodeResults.WithLabelValues(res.Code.String()).Inc()
	switch res.Code {
	case Retry, Skip:
		log.Debug("Timeline step: %s (layer %s, atom %s)", res.Code, res.LayerID, res.AtomID)
	}
	return res
}

func (d *TimelineDecoder) step(ctx context.Context, args Args) Result {
	for d.state != Ended {
		if err := ctx.Err(); err != nil {
			return Result{Code: Error, Err: err}
		}

		if d.current == nil {
			atom := d.render.Atoms[d.index]
			src := NewAtomSource(atom, d.env)
			if err := src.Init(ctx, rational.Max(d.decodeStart, atom.From)); err != nil {
				return Result{Code: Error, AtomID: atom.ID, Err: err}
			}
			d.current = src
			d.state = Decoding
			log.Debug("Atom %s opened [%s, %s)", atom.ID, atom.From, atom.To)
		}

		if d.current.IsLayersActive() {
			res := d.current.Decode(args)
			if res.Code != AtomEnded {
				return res
			}
		}

		log.Debug("Atom %s exhausted", d.current.Atom().ID)
		d.current.Close()
		d.current = nil
		d.index++
		if d.index >= len(d.render.Atoms) {
			d.state = Ended
			log.Debug("Timeline %s ended", d.render.ID)
			return Result{Code: TimelineEnded}
		}
	}
	return Result{Code: TimelineEnded}
}

// Ready reports whether decoded units cover the timeline up to until, so a
// frame at until can be rendered. Past the current atom's end the caller
// must keep decoding to advance atoms.
func (d *TimelineDecoder) Ready(until rational.Rational) bool {
	switch d.state {
	case Ended:
		return true
	case NotStarted:
		return false
	}
	if d.current == nil {
		return false
	}
	atom := d.current.Atom()
	front, ok := d.current.DecodeFront()
	if !ok {
		return !atom.To.Less(until)
	}
	return !front.Less(until)
}

// Seek repositions the decoder at pts, reopening the containing atom.
func (d *TimelineDecoder) Seek(pts rational.Rational) error {
	idx := d.render.AtomIndex(pts)
	if idx < 0 {
		return fmt.Errorf("seek %s: outside timeline of %s", pts, d.render.Duration)
	}
	if d.current != nil && d.index == idx {
		return d.current.Seek(pts)
	}
	if d.current != nil {
		d.current.Close()
		d.current = nil
	}
	d.index = idx
	d.decodeStart = pts
	d.state = NotStarted
	return nil
}

// Close releases the current atom. The decoder is ended afterwards.
func (d *TimelineDecoder) Close() {
	if d.current != nil {
		d.current.Close()
		d.current = nil
	}
	d.state = Ended
}
