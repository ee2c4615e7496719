package decode

import (
	"context"
	"fmt"

	"media-render/internal/metrics"
	"media-render/internal/profile"
	"media-render/internal/rational"
)

// AtomSource multiplexes the layers of one atom. Layers are advanced round
// robin, skipping those already decoded past the caller's bound.
type AtomSource struct {
	atom   profile.Atom
	env    Env
	layers []*LayerSource
	next   int
}

// NewAtomSource returns an uninitialized source for atom.
func NewAtomSource(atom profile.Atom, env Env) *AtomSource {
	return &AtomSource{atom: atom, env: env}
}

// Init opens every layer positioned at decodeStart.
func (a *AtomSource) Init(ctx context.Context, decodeStart rational.Rational) error {
	for _, layer := range a.atom.Layers {
		src := NewLayerSource(layer, a.env)
		if err := src.Init(ctx, decodeStart); err != nil {
			a.Close()
			return fmt.Errorf("atom %s: %w", a.atom.ID, err)
		}
		a.layers = append(a.layers, src)
	}
	metrics.AtomsOpened.Inc()
	return nil
}

// Atom returns the atom being decoded.
func (a *AtomSource) Atom() profile.Atom {
	return a.atom
}

// Decode advances one layer by one step.
func (a *AtomSource) Decode(args Args) Result {
	if len(a.layers) == 0 {
		return Result{Code: AtomEnded, AtomID: a.atom.ID}
	}

	active := false
	for i := 0; i < len(a.layers); i++ {
		idx := (a.next + i) % len(a.layers)
		l := a.layers[idx]
		if !l.CanDecode() {
			continue
		}
		active = true
		if args.Bounded {
			if front, ok := l.DecodeFront(); ok && !front.Less(args.Until) {
				continue
			}
		}
		a.next = (idx + 1) % len(a.layers)
		res := l.Decode(args)
		res.AtomID = a.atom.ID
		return res
	}

	if !active {
		return Result{Code: AtomEnded, AtomID: a.atom.ID}
	}
	return Result{Code: Retry, AtomID: a.atom.ID}
}

// IsLayersActive reports whether any layer can still decode.
func (a *AtomSource) IsLayersActive() bool {
	for _, l := range a.layers {
		if l.CanDecode() {
			return true
		}
	}
	return false
}

// DecodeFront returns the minimum decode front over active layers.
func (a *AtomSource) DecodeFront() (front rational.Rational, ok bool) {
	for _, l := range a.layers {
		f, live := l.DecodeFront()
		if !live {
			continue
		}
		if !ok || f.Less(front) {
			front, ok = f, true
		}
	}
	return front, ok
}

// Seek repositions every layer.
func (a *AtomSource) Seek(pts rational.Rational) error {
	for _, l := range a.layers {
		if err := l.Seek(pts); err != nil {
			return err
		}
	}
	return nil
}

// Close releases all layers.
func (a *AtomSource) Close() {
	for _, l := range a.layers {
		l.Close()
	}
	a.layers = nil
}
