package codectest

import (
	"fmt"
	"image/color"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// resampler converts channel layout, sample format and rate. Rate changes
// use nearest-sample picking with running counters so chunk boundaries do
// not drift.
type resampler struct {
	src, dst codec.AudioSpec
	inTotal  int64
	outTotal int64
}

func (r *resampler) Convert(f *codec.Frame) (*codec.Frame, error) {
	chans, err := codec.DecodeSamples(f)
	if err != nil {
		return nil, err
	}
	srcRate := int64(f.Audio.SampleRate)
	dstRate := int64(r.dst.SampleRate)

	mapped := make([][]float32, r.dst.Channels)
	for c := range mapped {
		mapped[c] = chans[c%len(chans)]
	}

	n := int64(f.Samples)
	var out [][]float32
	if srcRate == dstRate {
		out = mapped
	} else {
		out = make([][]float32, r.dst.Channels)
		for j := r.outTotal; j*srcRate/dstRate < r.inTotal+n; j++ {
			idx := j*srcRate/dstRate - r.inTotal
			for c := range out {
				out[c] = append(out[c], mapped[c][idx])
			}
		}
	}
	r.inTotal += n
	produced := 0
	if len(out) > 0 {
		produced = len(out[0])
	}
	r.outTotal += int64(produced)

	planes, err := codec.EncodeSamples(out, r.dst)
	if err != nil {
		return nil, err
	}
	tb := rational.MustNew(1, dstRate)
	return &codec.Frame{
		Kind:     codec.KindAudio,
		PTS:      codec.Rescale(f.PTS, f.TimeBase, tb),
		Duration: int64(produced),
		TimeBase: tb,
		Audio:    r.dst,
		Samples:  produced,
		Planes:   planes,
	}, nil
}

func (r *resampler) Close() error { return nil }

type scaler struct {
	dst codec.VideoSpec
}

func (s *scaler) Scale(f *codec.Frame) (*codec.Frame, error) {
	if len(f.Planes) == 0 {
		return nil, fmt.Errorf("scale: frame has no pixel data")
	}
	sw, sh := f.Video.Width, f.Video.Height
	dw, dh := s.dst.Width, s.dst.Height
	stride := sw * 4
	if len(f.Strides) > 0 && f.Strides[0] > 0 {
		stride = f.Strides[0]
	}
	src := f.Planes[0]

	rgba := make([]byte, dw*dh*4)
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			copy(rgba[(y*dw+x)*4:(y*dw+x)*4+4], src[sy*stride+sx*4:sy*stride+sx*4+4])
		}
	}

	out := &codec.Frame{
		Kind:     codec.KindVideo,
		PTS:      f.PTS,
		Duration: f.Duration,
		TimeBase: f.TimeBase,
		Video:    s.dst,
	}

	switch s.dst.Format {
	case codec.PixelFormatRGBA:
		out.Planes = [][]byte{rgba}
		out.Strides = []int{dw * 4}
	case codec.PixelFormatYUV420P, codec.PixelFormatNV12:
		cw, ch := (dw+1)/2, (dh+1)/2
		yp := make([]byte, dw*dh)
		up := make([]byte, cw*ch)
		vp := make([]byte, cw*ch)
		for y := 0; y < dh; y++ {
			for x := 0; x < dw; x++ {
				p := rgba[(y*dw+x)*4:]
				yy, cb, cr := color.RGBToYCbCr(p[0], p[1], p[2])
				yp[y*dw+x] = yy
				if y%2 == 0 && x%2 == 0 {
					up[(y/2)*cw+x/2] = cb
					vp[(y/2)*cw+x/2] = cr
				}
			}
		}
		if s.dst.Format == codec.PixelFormatYUV420P {
			out.Planes = [][]byte{yp, up, vp}
			out.Strides = []int{dw, cw, cw}
		} else {
			uv := make([]byte, cw*ch*2)
			for i := range up {
				uv[2*i] = up[i]
				uv[2*i+1] = vp[i]
			}
			out.Planes = [][]byte{yp, uv}
			out.Strides = []int{dw, cw * 2}
		}
	}
	return out, nil
}

func (s *scaler) Close() error { return nil }
