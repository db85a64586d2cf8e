package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidCamera is when a camera has missing, degenerate or singular parameters.
var ErrInvalidCamera = errors.New("invalid camera parameters")

// NewInvalidCameraError is used when camera parameters cannot be used for projection.
func NewInvalidCameraError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidCamera, format, args...)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// PrimeSenseDefault returns the intrinsics of a standard VGA PrimeSense sensor. It is
// only used when a camera is built without intrinsics.
func PrimeSenseDefault() *PinholeCameraIntrinsics {
	return &PinholeCameraIntrinsics{
		Width:  640,
		Height: 480,
		Fx:     525,
		Fy:     525,
		Ppx:    319.5,
		Ppy:    239.5,
	}
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewInvalidCameraError("intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewInvalidCameraError("invalid size (%#v, %#v)", params.Width, params.Height)
	}
	if params.Fx <= 0 || math.IsNaN(params.Fx) || math.IsInf(params.Fx, 0) {
		return NewInvalidCameraError("invalid focal length Fx = %#v", params.Fx)
	}
	if params.Fy <= 0 || math.IsNaN(params.Fy) || math.IsInf(params.Fy, 0) {
		return NewInvalidCameraError("invalid focal length Fy = %#v", params.Fy)
	}
	if params.Ppx < 0 {
		return NewInvalidCameraError("invalid principal X point Ppx = %#v", params.Ppx)
	}
	if params.Ppy < 0 {
		return NewInvalidCameraError("invalid principal Y point Ppy = %#v", params.Ppy)
	}
	return nil
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// NewIntrinsicsFromMatrix builds intrinsics from a 3x3 (or the upper left of a 4x4) camera matrix.
func NewIntrinsicsFromMatrix(m mat.Matrix, width, height int) (*PinholeCameraIntrinsics, error) {
	r, c := m.Dims()
	if r < 3 || c < 3 {
		return nil, NewInvalidCameraError("camera matrix must be at least 3x3, got %dx%d", r, c)
	}
	params := &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     m.At(0, 0),
		Fy:     m.At(1, 1),
		Ppx:    m.At(0, 2),
		Ppy:    m.At(1, 2),
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	return params, nil
}

// NewIntrinsicsFromFOV builds intrinsics from horizontal and vertical fields of view in
// radians with the principal point at the image center.
func NewIntrinsicsFromFOV(hfov, vfov float64, width, height int) (*PinholeCameraIntrinsics, error) {
	if !(hfov > 0 && hfov < math.Pi) {
		return nil, NewInvalidCameraError("horizontal fov %v must be in (0, pi)", hfov)
	}
	if !(vfov > 0 && vfov < math.Pi) {
		return nil, NewInvalidCameraError("vertical fov %v must be in (0, pi)", vfov)
	}
	if width <= 0 || height <= 0 {
		return nil, NewInvalidCameraError("invalid size (%d, %d)", width, height)
	}
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     float64(width) / (2 * math.Tan(hfov/2)),
		Fy:     float64(height) / (2 * math.Tan(vfov/2)),
		Ppx:    float64(width) / 2,
		Ppy:    float64(height) / 2,
	}, nil
}

// String prints the parameters the way they are stored in calibration files.
func (params *PinholeCameraIntrinsics) String() string {
	return fmt.Sprintf("%dx%d fx=%g fy=%g ppx=%g ppy=%g", params.Width, params.Height, params.Fx, params.Fy, params.Ppx, params.Ppy)
}

// PixelToPoint transforms a pixel with depth to a 3D point.
// The intrinsics parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return float64(0), float64(0), float64(0)
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point to a pixel in an image plane.
// The intrinsics parameters should be the ones of the sensor we want to project to.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		xPx := math.Round((x/z)*params.Fx + params.Ppx)
		yPx := math.Round((y/z)*params.Fy + params.Ppy)
		return xPx, yPx
	}
	// if depth is zero at this pixel, return negative coordinates so that the cropping to image bounds will filter it out
	return -1.0, -1.0
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}
