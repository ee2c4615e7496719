package decode

import (
	"media-render/internal/codec"
	"media-render/internal/rational"
)

// ResultCode classifies the outcome of one decode step.
type ResultCode int

const (
	// OK carries a decoded unit.
	OK ResultCode = iota
	// LayerEOF means the source reached end of file with its window exhausted.
	LayerEOF
	// LayerEnded means the layer has nothing more to decode.
	LayerEnded
	// StreamEnded means one stream of a layer failed; the others continue.
	StreamEnded
	// AtomEnded means no layer of the atom can decode.
	AtomEnded
	// TimelineEnded is terminal for the whole profile.
	TimelineEnded
	// Retry means no unit is available yet; call again.
	Retry
	// Skip means a unit was decoded and discarded.
	Skip
	// Error is fatal for the job.
	Error
)

var codeNames = [...]string{
	OK:            "ok",
	LayerEOF:      "layer_eof",
	LayerEnded:    "layer_ended",
	StreamEnded:   "stream_ended",
	AtomEnded:     "atom_ended",
	TimelineEnded: "timeline_ended",
	Retry:         "retry",
	Skip:          "skip",
	Error:         "error",
}

func (c ResultCode) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}

// Unit is a decoded frame placed on the output timeline.
type Unit struct {
	Kind     codec.MediaKind
	PTS      rational.Rational
	Duration rational.Rational
	// Frame holds raster planes, converted audio samples, or a device surface.
	Frame   *codec.Frame
	LayerID string
}

// End returns PTS + Duration.
func (u *Unit) End() rational.Rational {
	return u.PTS.Add(u.Duration)
}

// Release frees a device surface held by the unit.
func (u *Unit) Release() {
	if u == nil || u.Frame == nil {
		return
	}
	releaseFrame(u.Frame)
}

func releaseFrame(f *codec.Frame) {
	if f != nil && f.Surface != nil {
		f.Surface.Free()
		f.Surface = nil
	}
}

// Result is the outcome of one decode step.
type Result struct {
	Code    ResultCode
	Unit    *Unit
	LayerID string
	AtomID  string
	Err     error
}

// Args bounds a decode step. The zero value is unbounded.
type Args struct {
	// Until is the timeline time the caller needs decoded. When Bounded is
	// set, layers already at or past it are not advanced.
	Until   rational.Rational
	Bounded bool
}

// UpTo returns Args bounded at until. A zero until is a real bound.
func UpTo(until rational.Rational) Args {
	return Args{Until: until, Bounded: true}
}
