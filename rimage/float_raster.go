package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// FloatDepth is a row-major raster of depth values in meters.
type FloatDepth struct {
	width, height int
	data          []float32
}

// NewFloatDepth returns an all zero float depth raster.
func NewFloatDepth(width, height int) *FloatDepth {
	return &FloatDepth{width: width, height: height, data: make([]float32, width*height)}
}

// NewFloatDepthFromSlice wraps the given meters without copying.
func NewFloatDepthFromSlice(width, height int, meters []float32) (*FloatDepth, error) {
	if len(meters) != width*height {
		return nil, errors.Errorf("depth has %d values, expected %d for %dx%d", len(meters), width*height, width, height)
	}
	return &FloatDepth{width: width, height: height, data: meters}, nil
}

// Width returns the horizontal size of the raster.
func (fd *FloatDepth) Width() int { return fd.width }

// Height returns the vertical size of the raster.
func (fd *FloatDepth) Height() int { return fd.height }

// Bounds returns the rectangle dimensions of the raster.
func (fd *FloatDepth) Bounds() image.Rectangle { return image.Rect(0, 0, fd.width, fd.height) }

// At returns the depth in meters at a coordinate.
func (fd *FloatDepth) At(x, y int) float32 { return fd.data[y*fd.width+x] }

// Set sets the depth in meters at a coordinate.
func (fd *FloatDepth) Set(x, y int, m float32) { fd.data[y*fd.width+x] = m }

// Data returns the underlying row-major values.
func (fd *FloatDepth) Data() []float32 { return fd.data }

// Resize returns a nearest neighbor resampled copy of the raster.
func (fd *FloatDepth) Resize(width, height int) (*FloatDepth, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot resize depth to %dx%d", width, height)
	}
	out := NewFloatDepth(width, height)
	for y := 0; y < height; y++ {
		sy := y * fd.height / height
		for x := 0; x < width; x++ {
			out.data[y*width+x] = fd.data[sy*fd.width+x*fd.width/width]
		}
	}
	return out, nil
}

// ToDepthMap converts the raster to millimeters.
func (fd *FloatDepth) ToDepthMap() *DepthMap {
	dm := NewEmptyDepthMap(fd.width, fd.height)
	for i, v := range fd.data {
		dm.data[i] = MetersToDepth(float64(v))
	}
	return dm
}

// FloatImage is an RGB raster with channels in [0, 1].
type FloatImage struct {
	width, height int
	pix           []float32
}

// NewFloatImage returns an all black float image.
func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{width: width, height: height, pix: make([]float32, 3*width*height)}
}

// Width returns the horizontal size of the image.
func (fi *FloatImage) Width() int { return fi.width }

// Height returns the vertical size of the image.
func (fi *FloatImage) Height() int { return fi.height }

// Bounds returns the rectangle dimensions of the image.
func (fi *FloatImage) Bounds() image.Rectangle { return image.Rect(0, 0, fi.width, fi.height) }

// SetRGB sets the channels at a coordinate.
func (fi *FloatImage) SetRGB(x, y int, r, g, b float32) {
	i := 3 * (y*fi.width + x)
	fi.pix[i], fi.pix[i+1], fi.pix[i+2] = r, g, b
}

// RGB returns the channels at a coordinate.
func (fi *FloatImage) RGB(x, y int) (float32, float32, float32) {
	i := 3 * (y*fi.width + x)
	return fi.pix[i], fi.pix[i+1], fi.pix[i+2]
}

// ToNRGBA scales the channels to 0-255 and truncates them to 8 bits.
func (fi *FloatImage) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(fi.Bounds())
	for y := 0; y < fi.height; y++ {
		for x := 0; x < fi.width; x++ {
			r, g, b := fi.RGB(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: unitTo8(r), G: unitTo8(g), B: unitTo8(b), A: 255})
		}
	}
	return img
}

func unitTo8(v float32) uint8 {
	scaled := v * 255
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return uint8(scaled)
	}
}
