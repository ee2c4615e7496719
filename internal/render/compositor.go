package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"media-render/internal/codec"
)

// Compositor renders the visible layers of one frame into a raster.
type Compositor interface {
	// Composite draws fc's video layers, bottom to top, using the frame
	// selected for each layer. Layers without a frame are left out.
	Composite(fc FrameContext, frames map[string]*codec.Frame, dst *image.RGBA) error
	Close() error
}

// SoftwareCompositor composites on the CPU. Each layer is fitted to the
// output keeping its aspect ratio and centered.
type SoftwareCompositor struct {
	backend    codec.Backend
	background color.Color
	scalers    map[codec.VideoSpec]codec.Scaler
}

// NewSoftwareCompositor returns a compositor that converts non-RGBA frames
// with scalers from backend.
func NewSoftwareCompositor(backend codec.Backend) *SoftwareCompositor {
	return &SoftwareCompositor{
		backend:    backend,
		background: color.Black,
		scalers:    make(map[codec.VideoSpec]codec.Scaler),
	}
}

// Composite implements Compositor.
func (c *SoftwareCompositor) Composite(fc FrameContext, frames map[string]*codec.Frame, dst *image.RGBA) error {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c.background), image.Point{}, draw.Src)
	for _, l := range fc.Layers {
		if !l.Video {
			continue
		}
		f := frames[l.LayerID]
		if f == nil {
			continue
		}
		src, err := c.raster(f)
		if err != nil {
			return fmt.Errorf("layer %s: %w", l.LayerID, err)
		}
		place(dst, src, l.Opacity)
	}
	return nil
}

// raster returns f as an RGBA image, downloading device surfaces and
// converting other pixel formats.
func (c *SoftwareCompositor) raster(f *codec.Frame) (*image.RGBA, error) {
	if f.Surface != nil {
		sw, err := f.Surface.Download()
		if err != nil {
			return nil, fmt.Errorf("download surface: %w", err)
		}
		f = sw
	}
	if f.Video.Format != codec.PixelFormatRGBA {
		src := f.Video
		s, ok := c.scalers[src]
		if !ok {
			var err error
			s, err = c.backend.NewScaler(src, codec.VideoSpec{Width: src.Width, Height: src.Height, Format: codec.PixelFormatRGBA})
			if err != nil {
				return nil, err
			}
			c.scalers[src] = s
		}
		out, err := s.Scale(f)
		if err != nil {
			return nil, err
		}
		f = out
	}
	if len(f.Planes) == 0 {
		return nil, fmt.Errorf("frame has no pixel data")
	}

	w, h := f.Video.Width, f.Video.Height
	stride := w * 4
	if len(f.Strides) > 0 && f.Strides[0] > 0 {
		stride = f.Strides[0]
	}
	if len(f.Planes[0]) < stride*(h-1)+w*4 {
		return nil, fmt.Errorf("raster of %d bytes for %dx%d", len(f.Planes[0]), w, h)
	}
	return &image.RGBA{Pix: f.Planes[0], Stride: stride, Rect: image.Rect(0, 0, w, h)}, nil
}

// Close releases cached scalers.
func (c *SoftwareCompositor) Close() error {
	for spec, s := range c.scalers {
		_ = s.Close()
		delete(c.scalers, spec)
	}
	return nil
}

// fitRect returns the largest rectangle with src's aspect ratio centered
// in dst.
func fitRect(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	if sw <= 0 || sh <= 0 {
		return image.Rectangle{}
	}
	w, h := dw, dw*sh/sw
	if h > dh {
		w, h = dh*sw/sh, dh
	}
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func place(dst *image.RGBA, src *image.RGBA, opacity float64) {
	r := fitRect(src.Bounds(), dst.Bounds())
	if r.Empty() || opacity <= 0 {
		return
	}

	var img image.Image = src
	if r.Dx() < src.Bounds().Dx() {
		// Lanczos keeps downscaled detail; upscaling goes through BiLinear.
		img = imaging.Fit(src, r.Dx(), r.Dy(), imaging.Lanczos)
	}

	if opacity >= 1 {
		if img.Bounds().Size() == r.Size() {
			draw.Draw(dst, r, img, img.Bounds().Min, draw.Over)
			return
		}
		draw.BiLinear.Scale(dst, r, img, img.Bounds(), draw.Over, nil)
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
	blended := imaging.Overlay(dst, scaled, r.Min, opacity)
	draw.Draw(dst, dst.Bounds(), blended, image.Point{}, draw.Src)
}
