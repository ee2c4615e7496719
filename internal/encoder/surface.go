package encoder

import (
	"fmt"

	"media-render/internal/codec"
	"media-render/internal/hwaccel"
	"media-render/internal/queue"
	"media-render/internal/rational"
)

// videoPath turns composited units into encoder frames. One is chosen per
// video stream at Open and kept for the life of the encoder, so a later
// Demote of the strategy does not change how surfaces already handed out
// are consumed.
type videoPath interface {
	// alloc returns a surface for the compositor to fill.
	alloc() (codec.Surface, error)
	// frame builds the frame for u. scratch is freed by the caller once the
	// frame has been submitted.
	frame(u *queue.Unit, pts int64, tb rational.Rational) (f *codec.Frame, scratch codec.Surface, err error)
	mode() hwaccel.Mode
}

// softwarePath scales RGBA rasters into the encoder's pixel format.
type softwarePath struct {
	st            *stream
	width, height int
}

func (p softwarePath) alloc() (codec.Surface, error) {
	return nil, fmt.Errorf("%w: video is encoded in software", codec.ErrHardwareUnsupported)
}

func (p softwarePath) frame(u *queue.Unit, pts int64, tb rational.Rational) (*codec.Frame, codec.Surface, error) {
	w, h := p.width, p.height
	if u.Size < w*h*4 {
		return nil, nil, fmt.Errorf("raster of %d bytes for %dx%d", u.Size, w, h)
	}
	src := &codec.Frame{
		Kind:     codec.KindVideo,
		PTS:      pts,
		Duration: 1,
		TimeBase: tb,
		Video:    codec.VideoSpec{Width: w, Height: h, Format: codec.PixelFormatRGBA},
		Planes:   [][]byte{u.Data[:u.Size]},
		Strides:  []int{w * 4},
	}
	out, err := p.st.scaler.Scale(src)
	if err != nil {
		return nil, nil, err
	}
	out.PTS = pts
	out.Duration = 1
	out.TimeBase = tb
	return out, nil, nil
}

func (p softwarePath) mode() hwaccel.Mode { return hwaccel.Software }

// nativePath hands out surfaces from the encoder pool and submits them as is.
type nativePath struct {
	st            *stream
	width, height int
}

func (p nativePath) alloc() (codec.Surface, error) {
	return p.st.enc.AllocSurface()
}

func (p nativePath) frame(u *queue.Unit, pts int64, tb rational.Rational) (*codec.Frame, codec.Surface, error) {
	if u.Surface == nil {
		return uploadRaster(p.st, u, pts, tb, p.width, p.height)
	}
	return surfaceFrame(p.st, u.Surface, pts, tb), nil, nil
}

func (p nativePath) mode() hwaccel.Mode { return hwaccel.HardwareNative }

// copyPath hands out device surfaces and copies each one into the encoder
// pool on submit.
type copyPath struct {
	st            *stream
	device        codec.HardwareDevice
	width, height int
}

func (p copyPath) alloc() (codec.Surface, error) {
	return p.device.AllocSurface(p.st.video)
}

func (p copyPath) frame(u *queue.Unit, pts int64, tb rational.Rational) (*codec.Frame, codec.Surface, error) {
	if u.Surface == nil {
		return uploadRaster(p.st, u, pts, tb, p.width, p.height)
	}
	s, err := p.st.enc.TransferSurface(u.Surface)
	if err != nil {
		return nil, nil, err
	}
	return surfaceFrame(p.st, s, pts, tb), s, nil
}

func (p copyPath) mode() hwaccel.Mode { return hwaccel.HardwareCopy }

// uploadRaster copies a raster that reached a hardware stream into a pool
// surface.
func uploadRaster(st *stream, u *queue.Unit, pts int64, tb rational.Rational, w, h int) (*codec.Frame, codec.Surface, error) {
	s, err := st.enc.AllocSurface()
	if err != nil {
		return nil, nil, err
	}
	err = s.Upload(&codec.Frame{
		Kind:    codec.KindVideo,
		Video:   codec.VideoSpec{Width: w, Height: h, Format: codec.PixelFormatRGBA},
		Planes:  [][]byte{u.Data[:u.Size]},
		Strides: []int{w * 4},
	})
	if err != nil {
		s.Free()
		return nil, nil, err
	}
	return surfaceFrame(st, s, pts, tb), s, nil
}

func surfaceFrame(st *stream, s codec.Surface, pts int64, tb rational.Rational) *codec.Frame {
	return &codec.Frame{
		Kind:     codec.KindVideo,
		PTS:      pts,
		Duration: 1,
		TimeBase: tb,
		Video:    st.video,
		Surface:  s,
	}
}
