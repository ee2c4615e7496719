package libav

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"media-render/internal/codec"
	"media-render/internal/rational"
)

// poolSize is the initial surface count of every frames context.
const poolSize = 20

type device struct {
	deviceType string
	hdc        *astiav.HardwareDeviceContext

	mu       sync.Mutex
	pools    map[codec.VideoSpec]*astiav.HardwareFramesContext
	uploader uploader
}

func (d *device) Type() string { return d.deviceType }

// AllocSurface returns a surface of spec's geometry. spec.Format is the
// device's surface format; uploads go through NV12.
func (d *device) AllocSurface(spec codec.VideoSpec) (codec.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pools == nil {
		return nil, errors.New("device is closed")
	}
	hfc, ok := d.pools[spec]
	if !ok {
		hw, known := hardwareFormats[d.deviceType]
		if !known {
			return nil, fmt.Errorf("%w: no surface format for %s", codec.ErrHardwareUnsupported, d.deviceType)
		}
		var err error
		hfc, err = newFramesContext(d.hdc, hw, astiav.PixelFormatNv12, spec.Width, spec.Height)
		if err != nil {
			return nil, err
		}
		d.pools[spec] = hfc
	}
	return allocSurface(hfc, spec, &d.uploader)
}

func (d *device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, hfc := range d.pools {
		hfc.Free()
	}
	d.pools = nil
	d.uploader.close()
	if d.hdc != nil {
		d.hdc.Free()
		d.hdc = nil
	}
	return nil
}

func newFramesContext(hdc *astiav.HardwareDeviceContext, hw, sw astiav.PixelFormat, w, h int) (*astiav.HardwareFramesContext, error) {
	hfc := astiav.AllocHardwareFramesContext(hdc)
	if hfc == nil {
		return nil, errors.New("alloc hardware frames context")
	}
	hfc.SetHardwarePixelFormat(hw)
	hfc.SetSoftwarePixelFormat(sw)
	hfc.SetWidth(w)
	hfc.SetHeight(h)
	hfc.SetInitialPoolSize(poolSize)
	if err := hfc.Initialize(); err != nil {
		hfc.Free()
		return nil, fmt.Errorf("%w: frames context %dx%d: %w", codec.ErrHardwareUnsupported, w, h, err)
	}
	return hfc, nil
}

func allocSurface(hfc *astiav.HardwareFramesContext, spec codec.VideoSpec, up *uploader) (*surface, error) {
	f := astiav.AllocFrame()
	if err := f.AllocHardwareBuffer(hfc); err != nil {
		f.Free()
		return nil, fmt.Errorf("alloc surface %s: %w", spec, err)
	}
	return &surface{frame: f, format: spec.Format, uploader: up}, nil
}

// uploader converts rasters to NV12 before they are transferred. Scalers are
// kept per source geometry.
type uploader struct {
	mu      sync.Mutex
	scalers map[codec.VideoSpec]codec.Scaler
}

func (u *uploader) toNV12(f *codec.Frame) (*codec.Frame, error) {
	if f.Video.Format == codec.PixelFormatNV12 {
		return f, nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	sc, ok := u.scalers[f.Video]
	if !ok {
		dst := f.Video
		dst.Format = codec.PixelFormatNV12
		var err error
		if sc, err = (&Backend{}).NewScaler(f.Video, dst); err != nil {
			return nil, err
		}
		if u.scalers == nil {
			u.scalers = make(map[codec.VideoSpec]codec.Scaler)
		}
		u.scalers[f.Video] = sc
	}
	return sc.Scale(f)
}

func (u *uploader) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, sc := range u.scalers {
		_ = sc.Close()
	}
	u.scalers = nil
}

// surface wraps a frame whose data lives on the device.
type surface struct {
	frame    *astiav.Frame
	format   codec.PixelFormat
	uploader *uploader
}

func (s *surface) Format() codec.PixelFormat { return s.format }

func (s *surface) Download() (*codec.Frame, error) {
	sw := astiav.AllocFrame()
	defer sw.Free()
	if err := s.frame.TransferHardwareData(sw); err != nil {
		return nil, fmt.Errorf("download surface: %w", err)
	}
	f, err := fromFrame(sw, codec.KindVideo, rational.Zero)
	if err != nil {
		return nil, err
	}
	f.PTS = toPTS(s.frame.Pts())
	return f, nil
}

// Upload converts f to NV12 when needed and transfers it to the device.
func (s *surface) Upload(f *codec.Frame) error {
	if f.Video.Width != s.frame.Width() || f.Video.Height != s.frame.Height() {
		return fmt.Errorf("upload %s into %dx%d surface", f.Video, s.frame.Width(), s.frame.Height())
	}
	if s.uploader == nil {
		return errors.New("decoded surfaces are read-only")
	}
	src, err := s.uploader.toNV12(f)
	if err != nil {
		return err
	}
	sw, err := toFrame(src)
	if err != nil {
		return err
	}
	defer sw.Free()
	if err := sw.TransferHardwareData(s.frame); err != nil {
		return fmt.Errorf("upload surface: %w", err)
	}
	return nil
}

func (s *surface) Free() {
	if s.frame != nil {
		s.frame.Free()
		s.frame = nil
	}
}
