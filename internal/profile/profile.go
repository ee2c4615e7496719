package profile

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/blake2b"

	"media-render/internal/rational"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid render profile")

// Layer places one trimmed source clip on the timeline.
type Layer struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Video  bool   `json:"video"`
	Audio  bool   `json:"audio"`

	// From and To are absolute timeline positions in seconds.
	From rational.Rational `json:"from"`
	To   rational.Rational `json:"to"`
	// Offset is From relative to the owning atom's From.
	Offset rational.Rational `json:"offset"`

	// Start and End bound the trim window in source seconds. A zero End
	// means the window runs to the end of the source.
	Start rational.Rational `json:"start"`
	End   rational.Rational `json:"end"`

	// Gain is a linear audio multiplier. Nil means unity.
	Gain *float64 `json:"gain,omitempty"`
}

// LinearGain returns the audio gain, defaulting to 1.
func (l Layer) LinearGain() float64 {
	if l.Gain == nil {
		return 1
	}
	return *l.Gain
}

// Trimmed reports whether an explicit trim end is set.
func (l Layer) Trimmed() bool {
	return !l.End.IsZero()
}

// Atom is a contiguous timeline segment.
type Atom struct {
	ID       string            `json:"id"`
	From     rational.Rational `json:"from"`
	To       rational.Rational `json:"to"`
	Duration rational.Rational `json:"duration"`
	Layers   []Layer           `json:"layers"`
}

// Contains reports whether t falls in [From, To).
func (a Atom) Contains(t rational.Rational) bool {
	return !t.Less(a.From) && t.Less(a.To)
}

// Render is a complete composition.
type Render struct {
	ID       string            `json:"id"`
	Duration rational.Rational `json:"duration"`
	Atoms    []Atom            `json:"atoms"`
}

// Load reads, normalizes and validates a profile from a JSON file.
func Load(path string) (*Render, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates a JSON profile.
func Parse(data []byte) (*Render, error) {
	var r Render
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if err := r.Normalize(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Normalize fills derived fields: atom durations, layer offsets and
// placements, and the total duration.
func (r *Render) Normalize() error {
	for i := range r.Atoms {
		a := &r.Atoms[i]
		if a.To.IsZero() && !a.Duration.IsZero() {
			a.To = a.From.Add(a.Duration)
		}
		if a.Duration.IsZero() {
			a.Duration = a.To.Sub(a.From)
		}
		for j := range a.Layers {
			l := &a.Layers[j]
			if l.From.IsZero() {
				l.From = a.From.Add(l.Offset)
			}
			if l.To.IsZero() {
				l.To = a.To
			}
			offset := l.From.Sub(a.From)
			if !l.Offset.IsZero() && !l.Offset.Equal(offset) {
				return fmt.Errorf("%w: layer %q offset %v does not match from %v in atom %q", ErrInvalid, l.ID, l.Offset, l.From, a.ID)
			}
			l.Offset = offset
		}
	}
	if r.Duration.IsZero() && len(r.Atoms) > 0 {
		r.Duration = r.Atoms[len(r.Atoms)-1].To
	}
	return nil
}

// Validate checks the structural invariants of the profile.
func (r *Render) Validate() error {
	var prevTo rational.Rational
	atomIDs := make(map[string]bool)

	for i, a := range r.Atoms {
		if atomIDs[a.ID] {
			return fmt.Errorf("%w: duplicate atom id %q", ErrInvalid, a.ID)
		}
		atomIDs[a.ID] = true

		if !a.From.Equal(prevTo) {
			return fmt.Errorf("%w: atom %d (%q) starts at %v, expected %v", ErrInvalid, i, a.ID, a.From, prevTo)
		}
		if !a.From.Less(a.To) {
			return fmt.Errorf("%w: atom %q has empty range [%v, %v)", ErrInvalid, a.ID, a.From, a.To)
		}
		if !a.Duration.Equal(a.To.Sub(a.From)) {
			return fmt.Errorf("%w: atom %q duration %v does not match range", ErrInvalid, a.ID, a.Duration)
		}
		prevTo = a.To

		layerIDs := make(map[string]bool)
		for _, l := range a.Layers {
			if layerIDs[l.ID] {
				return fmt.Errorf("%w: duplicate layer id %q in atom %q", ErrInvalid, l.ID, a.ID)
			}
			layerIDs[l.ID] = true
			if err := validateLayer(a, l); err != nil {
				return err
			}
		}
	}

	if !r.Duration.Equal(prevTo) {
		return fmt.Errorf("%w: duration %v does not match last atom end %v", ErrInvalid, r.Duration, prevTo)
	}
	return nil
}

func validateLayer(a Atom, l Layer) error {
	switch {
	case l.Source == "":
		return fmt.Errorf("%w: layer %q has no source", ErrInvalid, l.ID)
	case !l.Video && !l.Audio:
		return fmt.Errorf("%w: layer %q selects neither video nor audio", ErrInvalid, l.ID)
	case !l.From.Less(l.To):
		return fmt.Errorf("%w: layer %q has empty range [%v, %v)", ErrInvalid, l.ID, l.From, l.To)
	case l.From.Less(a.From) || a.To.Less(l.To):
		return fmt.Errorf("%w: layer %q [%v, %v) outside atom %q [%v, %v)", ErrInvalid, l.ID, l.From, l.To, a.ID, a.From, a.To)
	case l.Start.Sign() < 0:
		return fmt.Errorf("%w: layer %q trim start is negative", ErrInvalid, l.ID)
	case l.Trimmed() && !l.Start.Less(l.End):
		return fmt.Errorf("%w: layer %q trim window [%v, %v) is empty", ErrInvalid, l.ID, l.Start, l.End)
	case l.Gain != nil && *l.Gain < 0:
		return fmt.Errorf("%w: layer %q gain is negative", ErrInvalid, l.ID)
	}
	return nil
}

// AtomIndex returns the index of the atom containing t, or -1.
func (r *Render) AtomIndex(t rational.Rational) int {
	for i, a := range r.Atoms {
		if a.Contains(t) {
			return i
		}
	}
	return -1
}

// Sources returns every distinct layer source in profile order.
func (r *Render) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range r.Atoms {
		for _, l := range a.Layers {
			if !seen[l.Source] {
				seen[l.Source] = true
				out = append(out, l.Source)
			}
		}
	}
	return out
}

// HasVideo reports whether any layer contributes video.
func (r *Render) HasVideo() bool {
	for _, a := range r.Atoms {
		for _, l := range a.Layers {
			if l.Video {
				return true
			}
		}
	}
	return false
}

// HasAudio reports whether any layer contributes audio.
func (r *Render) HasAudio() bool {
	for _, a := range r.Atoms {
		for _, l := range a.Layers {
			if l.Audio {
				return true
			}
		}
	}
	return false
}

// Digest returns the BLAKE2b-256 digest of the canonical JSON form.
func (r *Render) Digest() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
