package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
)

// imageSurface is an in-memory drawing surface backed by an NRGBA
// canvas. Frames are scaled to the full target size on draw.
type imageSurface struct {
	canvas *image.NRGBA
	width  int
	height int
}

type imageSurfaceFactory struct{}

// NewImageSurfaceFactory returns the production surface factory.
func NewImageSurfaceFactory() SurfaceFactory {
	return imageSurfaceFactory{}
}

func (imageSurfaceFactory) NewSurface(width, height int) (Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface dimensions %dx%d", width, height)
	}
	return &imageSurface{
		canvas: image.NewNRGBA(image.Rect(0, 0, width, height)),
		width:  width,
		height: height,
	}, nil
}

func (s *imageSurface) Draw(img image.Image) {
	scaled := imaging.Resize(img, s.width, s.height, imaging.Lanczos)
	draw.Draw(s.canvas, s.canvas.Bounds(), scaled, image.Point{}, draw.Src)
}

func (s *imageSurface) Fill(c color.Color) {
	draw.Draw(s.canvas, s.canvas.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

func (s *imageSurface) Frame() image.Image {
	return s.canvas
}
