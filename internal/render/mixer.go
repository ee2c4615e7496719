package render

import (
	"fmt"

	"media-render/internal/codec"
	"media-render/internal/queue"
	"media-render/internal/rational"
)

// track holds the pending samples of one layer. start is the timeline
// sample index of the first buffered sample.
type track struct {
	gain  float32
	start int64
	data  [][]float32
}

func (t *track) end() int64 {
	if len(t.data) == 0 {
		return t.start
	}
	return t.start + int64(len(t.data[0]))
}

// Mixer sums the audio of every layer into fixed-size chunks. Samples are
// placed by timeline PTS; gaps between units and layers that contribute
// nothing are silence.
type Mixer struct {
	spec      codec.AudioSpec
	frameSize int
	tb        rational.Rational
	tracks    map[string]*track
	pos       int64
}

// NewMixer returns a mixer producing chunks of frameSize samples in spec,
// starting at timeline position start.
func NewMixer(spec codec.AudioSpec, frameSize int, start rational.Rational) (*Mixer, error) {
	if spec.SampleRate <= 0 || spec.Channels <= 0 {
		return nil, fmt.Errorf("mixer: invalid spec %v", spec)
	}
	if spec.Format.Planar() || spec.Format.BytesPerSample() == 0 {
		return nil, fmt.Errorf("mixer: output must be a packed format, got %s", spec.Format)
	}
	if frameSize <= 0 {
		return nil, fmt.Errorf("mixer: frame size must be positive")
	}
	tb := rational.MustNew(1, int64(spec.SampleRate))
	return &Mixer{
		spec:      spec,
		frameSize: frameSize,
		tb:        tb,
		tracks:    make(map[string]*track),
		pos:       start.Ticks(tb),
	}, nil
}

// Position returns the timeline time of the next chunk.
func (m *Mixer) Position() rational.Rational {
	return rational.FromTicks(m.pos, m.tb)
}

// Push buffers an audio frame of layer at pts. Samples before the mixer
// position or overlapping what the layer already buffered are dropped.
func (m *Mixer) Push(layer string, pts rational.Rational, f *codec.Frame, gain float64) error {
	if f.Audio.SampleRate != m.spec.SampleRate || f.Audio.Channels != m.spec.Channels {
		return fmt.Errorf("mixer: frame %v does not match %v", f.Audio, m.spec)
	}
	chans, err := codec.DecodeSamples(f)
	if err != nil {
		return err
	}

	t := m.tracks[layer]
	if t == nil {
		t = &track{start: m.pos, data: make([][]float32, m.spec.Channels)}
		m.tracks[layer] = t
	}
	t.gain = float32(gain)

	at := pts.Ticks(m.tb)
	skip := int64(0)
	if end := t.end(); at < end {
		skip = end - at
	} else if at > end {
		pad := int(at - end)
		for c := range t.data {
			t.data[c] = append(t.data[c], make([]float32, pad)...)
		}
	}
	if skip >= int64(f.Samples) {
		return nil
	}
	for c := range t.data {
		t.data[c] = append(t.data[c], chans[c][skip:]...)
	}
	return nil
}

// Pull returns every complete chunk ending at or before ceiling.
func (m *Mixer) Pull(ceiling rational.Rational) []*queue.Unit {
	limit := ceiling.Ticks(m.tb)
	var out []*queue.Unit
	for m.pos+int64(m.frameSize) <= limit {
		out = append(out, m.mix(m.frameSize))
	}
	return out
}

// Flush returns the remaining audio up to end, the last chunk possibly
// shorter than the frame size.
func (m *Mixer) Flush(end rational.Rational) []*queue.Unit {
	out := m.Pull(end)
	if rest := end.Ticks(m.tb) - m.pos; rest > 0 {
		out = append(out, m.mix(int(rest)))
	}
	return out
}

func (m *Mixer) mix(n int) *queue.Unit {
	sum := make([][]float32, m.spec.Channels)
	for c := range sum {
		sum[c] = make([]float32, n)
	}

	for id, t := range m.tracks {
		for c := range sum {
			for i := 0; i < n; i++ {
				idx := m.pos + int64(i) - t.start
				if idx < 0 || idx >= int64(len(t.data[c])) {
					continue
				}
				sum[c][i] += t.data[c][idx] * t.gain
			}
		}
		consumed := m.pos + int64(n) - t.start
		if consumed >= int64(len(t.data[0])) {
			delete(m.tracks, id)
			continue
		}
		if consumed > 0 {
			for c := range t.data {
				t.data[c] = t.data[c][consumed:]
			}
			t.start += consumed
		}
	}

	for c := range sum {
		for i, v := range sum[c] {
			switch {
			case v > 1:
				sum[c][i] = 1
			case v < -1:
				sum[c][i] = -1
			}
		}
	}

	// NewMixer only accepts packed formats EncodeSamples can write.
	planes, _ := codec.EncodeSamples(sum, m.spec)
	u := &queue.Unit{
		PTS:     rational.FromTicks(m.pos, m.tb),
		Kind:    codec.KindAudio,
		Data:    planes[0],
		Size:    len(planes[0]),
		Samples: n,
	}
	m.pos += int64(n)
	return u
}
