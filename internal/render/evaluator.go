package render

import (
	"errors"

	"media-render/internal/profile"
	"media-render/internal/rational"
)

// LayerContext describes one layer visible at an instant. Layers are listed
// bottom to top.
type LayerContext struct {
	LayerID string
	Video   bool
	Audio   bool
	Gain    float64
	// Opacity in [0, 1] used when compositing over lower layers.
	Opacity float64
}

// FrameContext is the evaluated state of the timeline at one output frame.
type FrameContext struct {
	Index  int64
	PTS    rational.Rational
	Layers []LayerContext
}

// Evaluator computes frame contexts for a window of the timeline.
type Evaluator interface {
	// Evaluate returns one context per output frame in
	// [playTime, playTime+window), clipped to the timeline duration.
	Evaluate(playTime, fps, window rational.Rational) ([]FrameContext, error)
}

// ProfileEvaluator places every layer of a render profile full frame, in
// profile order.
type ProfileEvaluator struct {
	Render *profile.Render
}

// NewProfileEvaluator returns an evaluator over r.
func NewProfileEvaluator(r *profile.Render) *ProfileEvaluator {
	return &ProfileEvaluator{Render: r}
}

// Evaluate implements Evaluator.
func (e *ProfileEvaluator) Evaluate(playTime, fps, window rational.Rational) ([]FrameContext, error) {
	if fps.Sign() <= 0 {
		return nil, errors.New("evaluate: frame rate must be positive")
	}
	period, err := fps.Inv()
	if err != nil {
		return nil, err
	}

	q, err := playTime.Div(period)
	if err != nil {
		return nil, err
	}
	index := q.Floor()
	end := rational.Min(playTime.Add(window), e.Render.Duration)

	var out []FrameContext
	for {
		pts := period.Mul(rational.FromInt(index))
		if pts.Less(playTime) {
			index++
			continue
		}
		if !pts.Less(end) {
			break
		}
		out = append(out, FrameContext{Index: index, PTS: pts, Layers: e.layersAt(pts)})
		index++
	}
	return out, nil
}

func (e *ProfileEvaluator) layersAt(t rational.Rational) []LayerContext {
	idx := e.Render.AtomIndex(t)
	if idx < 0 {
		return nil
	}
	var layers []LayerContext
	for _, l := range e.Render.Atoms[idx].Layers {
		if t.Less(l.From) || !t.Less(l.To) {
			continue
		}
		layers = append(layers, LayerContext{
			LayerID: l.ID,
			Video:   l.Video,
			Audio:   l.Audio,
			Gain:    l.LinearGain(),
			Opacity: 1,
		})
	}
	return layers
}
