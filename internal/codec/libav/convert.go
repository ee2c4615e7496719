package libav

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// align is the buffer alignment used when copying frame data in and out of
// FFmpeg. 1 keeps planes contiguous without row padding.
const align = 1

// fromFrame copies a software frame out of FFmpeg.
func fromFrame(f *astiav.Frame, kind codec.MediaKind, tb rational.Rational) (*codec.Frame, error) {
	out := &codec.Frame{
		Kind:     kind,
		PTS:      toPTS(f.Pts()),
		TimeBase: tb,
	}
	data, err := f.Data().Bytes(align)
	if err != nil {
		return nil, fmt.Errorf("read frame data: %w", err)
	}

	switch kind {
	case codec.KindVideo:
		out.Video = codec.VideoSpec{Width: f.Width(), Height: f.Height(), Format: fromPixelFormat(f.PixelFormat())}
		out.Planes = [][]byte{data}
		if out.Video.Format == codec.PixelFormatRGBA {
			out.Strides = []int{f.Width() * 4}
		}
	case codec.KindAudio:
		out.Audio = codec.AudioSpec{
			SampleRate: f.SampleRate(),
			Channels:   f.ChannelLayout().Channels(),
			Format:     fromSampleFormat(f.SampleFormat()),
		}
		out.Samples = f.NbSamples()
		if out.Audio.Format.Planar() {
			plane := out.Samples * out.Audio.Format.BytesPerSample()
			for c := 0; c < out.Audio.Channels; c++ {
				if (c+1)*plane > len(data) {
					return nil, fmt.Errorf("audio plane %d past %d bytes", c, len(data))
				}
				out.Planes = append(out.Planes, data[c*plane:(c+1)*plane])
			}
		} else {
			out.Planes = [][]byte{data}
		}
	}
	return out, nil
}

// toFrame copies a software frame into a newly allocated FFmpeg frame.
func toFrame(f *codec.Frame) (*astiav.Frame, error) {
	af := astiav.AllocFrame()
	af.SetPts(fromPTS(f.PTS))

	switch f.Kind {
	case codec.KindVideo:
		af.SetWidth(f.Video.Width)
		af.SetHeight(f.Video.Height)
		af.SetPixelFormat(toPixelFormat(f.Video.Format))
	case codec.KindAudio:
		layout, err := channelLayout(f.Audio.Channels)
		if err != nil {
			af.Free()
			return nil, err
		}
		af.SetNbSamples(f.Samples)
		af.SetSampleRate(f.Audio.SampleRate)
		af.SetSampleFormat(toSampleFormat(f.Audio.Format))
		af.SetChannelLayout(layout)
	}

	if err := af.AllocBuffer(0); err != nil {
		af.Free()
		return nil, fmt.Errorf("alloc frame buffer: %w", err)
	}
	if err := af.Data().SetBytes(packed(f), align); err != nil {
		af.Free()
		return nil, fmt.Errorf("fill frame buffer: %w", err)
	}
	return af, nil
}

// packed returns the frame's planes as one buffer without row padding.
func packed(f *codec.Frame) []byte {
	if f.Kind == codec.KindVideo && f.Video.Format == codec.PixelFormatRGBA && len(f.Planes) == 1 {
		row := f.Video.Width * 4
		if len(f.Strides) > 0 && f.Strides[0] > row {
			out := make([]byte, 0, row*f.Video.Height)
			for y := 0; y < f.Video.Height; y++ {
				off := y * f.Strides[0]
				out = append(out, f.Planes[0][off:off+row]...)
			}
			return out
		}
		return f.Planes[0][:row*f.Video.Height]
	}
	if len(f.Planes) == 1 {
		return f.Planes[0]
	}
	out := make([]byte, 0, f.Size())
	for _, p := range f.Planes {
		out = append(out, p...)
	}
	return out
}

type scaler struct {
	ssc      *astiav.SoftwareScaleContext
	src, dst codec.VideoSpec
}

func (s *scaler) Scale(src *codec.Frame) (*codec.Frame, error) {
	if src.Video != s.src {
		return nil, fmt.Errorf("scaler for %s got %s", s.src, src.Video)
	}
	in, err := toFrame(src)
	if err != nil {
		return nil, err
	}
	defer in.Free()

	out := astiav.AllocFrame()
	defer out.Free()
	out.SetWidth(s.dst.Width)
	out.SetHeight(s.dst.Height)
	out.SetPixelFormat(toPixelFormat(s.dst.Format))
	if err := out.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("alloc scaled frame: %w", err)
	}
	if err := s.ssc.ScaleFrame(in, out); err != nil {
		return nil, fmt.Errorf("scale %s to %s: %w", s.src, s.dst, err)
	}
	out.SetPts(in.Pts())

	f, err := fromFrame(out, codec.KindVideo, src.TimeBase)
	if err != nil {
		return nil, err
	}
	f.PTS, f.Duration = src.PTS, src.Duration
	return f, nil
}

func (s *scaler) Close() error {
	s.ssc.Free()
	return nil
}

type resampler struct {
	swr *astiav.SoftwareResampleContext
	dst codec.AudioSpec
}

func (r *resampler) Convert(src *codec.Frame) (*codec.Frame, error) {
	in, err := toFrame(src)
	if err != nil {
		return nil, err
	}
	defer in.Free()

	layout, _ := channelLayout(r.dst.Channels)
	out := astiav.AllocFrame()
	defer out.Free()
	out.SetSampleRate(r.dst.SampleRate)
	out.SetSampleFormat(toSampleFormat(r.dst.Format))
	out.SetChannelLayout(layout)

	if err := r.swr.ConvertFrame(in, out); err != nil {
		return nil, fmt.Errorf("resample %s to %s: %w", src.Audio, r.dst, err)
	}

	tb := rational.MustNew(1, int64(r.dst.SampleRate))
	f, err := fromFrame(out, codec.KindAudio, tb)
	if err != nil {
		return nil, err
	}
	f.PTS = codec.Rescale(src.PTS, src.TimeBase, tb)
	f.Duration = int64(f.Samples)
	return f, nil
}

func (r *resampler) Close() error {
	r.swr.Free()
	return nil
}
