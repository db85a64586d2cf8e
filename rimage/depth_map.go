package rimage

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Depth is the depth of a pixel in millimeters. Zero means no reading.
type Depth uint16

// MaxDepth is the largest depth a DepthMap can hold.
const MaxDepth = Depth(math.MaxUint16)

// DepthMap fulfills the image.Image interface and represents the depth of each pixel
// in millimeters, stored row-major.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns an all zero depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// NewDepthMapFromBytes interprets the given buffer as little endian 16-bit depth
// values in millimeters.
func NewDepthMapFromBytes(width, height int, raw []byte) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}
	if len(raw) != width*height*2 {
		return nil, errors.Errorf("depth buffer has %d bytes, expected %d for %dx%d", len(raw), width*height*2, width, height)
	}
	dm := NewEmptyDepthMap(width, height)
	for i := range dm.data {
		dm.data[i] = Depth(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return dm, nil
}

// NewDepthMapFromMeters converts float depth in meters to millimeters, rounding to the
// nearest millimeter and clamping to the representable range.
func NewDepthMapFromMeters(width, height int, meters []float32) (*DepthMap, error) {
	if len(meters) != width*height {
		return nil, errors.Errorf("depth has %d values, expected %d for %dx%d", len(meters), width*height, width, height)
	}
	dm := NewEmptyDepthMap(width, height)
	for i, v := range meters {
		dm.data[i] = MetersToDepth(float64(v))
	}
	return dm, nil
}

// MetersToDepth converts a value in meters into a Depth.
func MetersToDepth(m float64) Depth {
	if math.IsNaN(m) || m <= 0 {
		return 0
	}
	mm := math.Round(m * 1000)
	if mm >= float64(MaxDepth) {
		return MaxDepth
	}
	return Depth(mm)
}

// Width returns the horizontal size of the map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the vertical size of the map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// HasData returns whether or not the map has any pixels.
func (dm *DepthMap) HasData() bool {
	return dm != nil && dm.width > 0 && dm.height > 0
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// Contains returns whether or not a point is within bounds of the depth map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// Get returns the depth at a given image.Point.
func (dm *DepthMap) Get(p image.Point) Depth {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the depth at a given coordinate.
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at a given coordinate.
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// Bounds returns the rectangle dimensions of the image.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// ColorModel for DepthMap so that it implements image.Image.
func (dm *DepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// At returns the depth value as a color.Gray16 so DepthMap implements image.Image.
func (dm *DepthMap) At(x, y int) color.Color {
	if !dm.Contains(x, y) {
		return color.Gray16{}
	}
	return color.Gray16{uint16(dm.GetDepth(x, y))}
}

// ValidCount returns the number of pixels with a non-zero reading.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, d := range dm.data {
		if d > 0 {
			n++
		}
	}
	return n
}

// Bytes returns the map as little endian 16-bit values, row-major.
func (dm *DepthMap) Bytes() []byte {
	out := make([]byte, 2*len(dm.data))
	for i, d := range dm.data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(d))
	}
	return out
}

// Meters returns a copy of the map converted to meters.
func (dm *DepthMap) Meters() *FloatDepth {
	fd := NewFloatDepth(dm.width, dm.height)
	for i, d := range dm.data {
		fd.data[i] = float32(d) / 1000
	}
	return fd
}

// ToGray16 converts the map into a 16-bit gray image suitable for PNG encoding.
func (dm *DepthMap) ToGray16() *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			img.SetGray16(x, y, color.Gray16{uint16(dm.GetDepth(x, y))})
		}
	}
	return img
}

// Resize returns a nearest neighbor resampled copy of the map. Nearest neighbor keeps
// every output value equal to an input reading.
func (dm *DepthMap) Resize(width, height int) (*DepthMap, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot resize depth map to %dx%d", width, height)
	}
	if width == dm.width && height == dm.height {
		out := NewEmptyDepthMap(width, height)
		copy(out.data, dm.data)
		return out, nil
	}
	dst := image.NewGray16(image.Rect(0, 0, width, height))
	src := dm.ToGray16()
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return ConvertImageToDepthMap(dst)
}

// MinMax returns the minimum and maximum non-zero depth.
func (dm *DepthMap) MinMax() (Depth, Depth) {
	min := MaxDepth
	max := Depth(0)
	for _, z := range dm.data {
		if z == 0 {
			continue
		}
		if z < min {
			min = z
		}
		if z > max {
			max = z
		}
	}
	return min, max
}

// ToPrettyPicture colors the depth map by hue for visual inspection. Depths outside of
// [hardMin, hardMax] are clamped; missing readings stay black.
func (dm *DepthMap) ToPrettyPicture(hardMin, hardMax Depth) image.Image {
	min, max := dm.MinMax()
	if min < hardMin {
		min = hardMin
	}
	if max > hardMax {
		max = hardMax
	}

	img := image.NewRGBA(dm.Bounds())
	span := math.Max(1, float64(max)-float64(min))
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			z := dm.GetDepth(x, y)
			if z == 0 {
				continue
			}
			if z < min {
				z = min
			}
			if z > max {
				z = max
			}
			ratio := (float64(z) - float64(min)) / span
			hue := 30 + (200.0 * ratio)
			img.Set(x, y, colorful.Hsv(hue, 1.0, 1.0))
		}
	}
	return img
}

// ConvertImageToDepthMap takes an image and figures out if it's already a DepthMap
// or if it can be converted into one.
func ConvertImageToDepthMap(img image.Image) (*DepthMap, error) {
	switch ii := img.(type) {
	case *DepthMap:
		if ii == nil {
			return nil, errors.New("cannot convert a nil DepthMap")
		}
		return ii, nil
	case *image.Gray16:
		if ii == nil {
			return nil, errors.New("cannot convert a nil Gray16 image")
		}
		b := ii.Bounds()
		dm := NewEmptyDepthMap(b.Dx(), b.Dy())
		for y := 0; y < dm.height; y++ {
			for x := 0; x < dm.width; x++ {
				dm.Set(x, y, Depth(ii.Gray16At(b.Min.X+x, b.Min.Y+y).Y))
			}
		}
		return dm, nil
	default:
		return nil, errors.Errorf("don't know how to make DepthMap from %T", img)
	}
}
