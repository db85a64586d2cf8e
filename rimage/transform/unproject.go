package transform

import (
	"image"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/scenekit/pointcloud"
	"go.viam.com/scenekit/rimage"
)

// ErrEmptyInput is when an unprojection is given an image with no pixels.
var ErrEmptyInput = errors.New("empty input image")

// NewEmptyInputError is used when a depth or color image has no pixels.
func NewEmptyInputError(what string) error {
	return errors.Wrapf(ErrEmptyInput, "%s image has no pixels", what)
}

// Unproject turns a depth image into a point cloud using the camera.
//
// depth may be a *rimage.DepthMap or *image.Gray16 (millimeters), a *rimage.FloatDepth or
// [][]float32 (meters), or a path to a 16-bit PNG in millimeters. colorImg may be nil, an
// image.Image (8-bit, used as is), a *rimage.FloatImage (channels in [0, 1]) or a path.
//
// With color, every pixel with depth > 0 is backprojected into camera space, moved into
// the world by the camera pose and given the color at the same pixel. Without color the
// points are left in camera space and carry no color.
func Unproject(depth interface{}, cam *Camera, colorImg interface{}) (pointcloud.PointCloud, error) {
	if cam == nil {
		return nil, NewInvalidCameraError("no camera given")
	}
	if err := cam.Intrinsics().CheckValid(); err != nil {
		return nil, err
	}
	meters, err := loadDepth(depth)
	if err != nil {
		return nil, err
	}
	if meters.Width() == 0 || meters.Height() == 0 {
		return nil, NewEmptyInputError("depth")
	}

	var colors *image.NRGBA
	if colorImg != nil {
		colors, err = loadColor(colorImg)
		if err != nil {
			return nil, err
		}
		if colors.Bounds().Empty() {
			return nil, NewEmptyInputError("color")
		}
		if colors.Bounds() != meters.Bounds() {
			return nil, errors.Errorf("depth map and color dimensions don't match Depth(%d,%d) != Color(%d,%d)",
				meters.Width(), meters.Height(), colors.Bounds().Dx(), colors.Bounds().Dy())
		}
	}

	intrinsics := cam.Intrinsics()
	pose := cam.Pose()
	pc := pointcloud.NewWithPrealloc(validPixels(meters))
	for y := 0; y < meters.Height(); y++ {
		for x := 0; x < meters.Width(); x++ {
			z := float64(meters.At(x, y))
			if !(z > 0) || math.IsInf(z, 0) {
				continue
			}
			px, py, pz := intrinsics.PixelToPoint(float64(x), float64(y), z)
			pt := r3.Vector{X: px, Y: py, Z: pz}
			var d pointcloud.Data
			if colors != nil {
				pt = pointcloud.ApplyTransform(pose, pt)
				d = pointcloud.NewColoredData(colors.NRGBAAt(x, y))
			}
			if err := pc.Set(pt, d); err != nil {
				return nil, errors.Wrapf(err, "error setting point for pixel (%d, %d)", x, y)
			}
		}
	}
	return pc, nil
}

func validPixels(fd *rimage.FloatDepth) int {
	n := 0
	for _, v := range fd.Data() {
		if v > 0 {
			n++
		}
	}
	return n
}

// loadDepth normalizes the supported depth inputs to meters.
func loadDepth(depth interface{}) (*rimage.FloatDepth, error) {
	switch d := depth.(type) {
	case *rimage.FloatDepth:
		if d == nil {
			return nil, NewEmptyInputError("depth")
		}
		return d, nil
	case *rimage.DepthMap:
		if d == nil {
			return nil, NewEmptyInputError("depth")
		}
		return d.Meters(), nil
	case *image.Gray16:
		if d == nil {
			return nil, NewEmptyInputError("depth")
		}
		dm, err := rimage.ConvertImageToDepthMap(d)
		if err != nil {
			return nil, err
		}
		return dm.Meters(), nil
	case [][]float32:
		if len(d) == 0 || len(d[0]) == 0 {
			return nil, NewEmptyInputError("depth")
		}
		fd := rimage.NewFloatDepth(len(d[0]), len(d))
		for y, row := range d {
			if len(row) != fd.Width() {
				return nil, errors.Errorf("depth row %d has %d values, expected %d", y, len(row), fd.Width())
			}
			for x, v := range row {
				fd.Set(x, y, v)
			}
		}
		return fd, nil
	case string:
		dm, err := rimage.ReadDepthMapFromFile(d)
		if err != nil {
			return nil, err
		}
		return dm.Meters(), nil
	default:
		return nil, errors.Errorf("don't know how to read depth from %T", depth)
	}
}

// loadColor normalizes the supported color inputs to 8-bit channels.
func loadColor(c interface{}) (*image.NRGBA, error) {
	switch img := c.(type) {
	case *rimage.FloatImage:
		if img == nil {
			return nil, NewEmptyInputError("color")
		}
		return img.ToNRGBA(), nil
	case string:
		read, err := rimage.ReadImageFromFile(img)
		if err != nil {
			return nil, err
		}
		return rimage.ToNRGBA(read), nil
	case image.Image:
		return rimage.ToNRGBA(img), nil
	default:
		return nil, errors.Errorf("don't know how to read color from %T", c)
	}
}
