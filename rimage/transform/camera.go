package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// inverseTolerance bounds how far M·inv(M) may stray from the identity for an
// ill-conditioned matrix to still be accepted.
const inverseTolerance = 1e-6

// rigidTransform is where a camera sits. Both directions are always written together.
type rigidTransform struct {
	extrinsics *mat.Dense // world to camera
	pose       *mat.Dense // camera to world
}

// Camera is a pinhole camera with a name, intrinsics and a rigid placement in the world.
type Camera struct {
	name       string
	intrinsics *PinholeCameraIntrinsics
	placement  rigidTransform
}

// NewCamera returns a camera with the given parameters. Nil intrinsics fall back to
// PrimeSenseDefault and nil extrinsics to the identity.
func NewCamera(intrinsics *PinholeCameraIntrinsics, extrinsics mat.Matrix, name string) (*Camera, error) {
	if intrinsics == nil {
		intrinsics = PrimeSenseDefault()
	}
	cam := &Camera{name: name, intrinsics: intrinsics}
	if isNilMatrix(extrinsics) {
		extrinsics = identity4()
	}
	if err := cam.SetExtrinsics(extrinsics); err != nil {
		return nil, err
	}
	return cam, nil
}

// NewCameraFromFOV returns a camera at the origin with intrinsics derived from the fields of view.
func NewCameraFromFOV(hfov, vfov float64, width, height int, name string) (*Camera, error) {
	intrinsics, err := NewIntrinsicsFromFOV(hfov, vfov, width, height)
	if err != nil {
		return nil, err
	}
	return NewCamera(intrinsics, nil, name)
}

// Name returns the display name of the camera.
func (c *Camera) Name() string {
	return c.name
}

// SetName sets the display name of the camera.
func (c *Camera) SetName(name string) {
	c.name = name
}

// Intrinsics returns the intrinsics of the camera.
func (c *Camera) Intrinsics() *PinholeCameraIntrinsics {
	return c.intrinsics
}

// SetIntrinsics replaces the intrinsics of the camera.
func (c *Camera) SetIntrinsics(intrinsics *PinholeCameraIntrinsics) error {
	if err := intrinsics.CheckValid(); err != nil {
		return err
	}
	c.intrinsics = intrinsics
	return nil
}

// Fx returns the horizontal focal length in pixels.
func (c *Camera) Fx() float64 { return c.intrinsics.Fx }

// Fy returns the vertical focal length in pixels.
func (c *Camera) Fy() float64 { return c.intrinsics.Fy }

// Cx returns the horizontal principal point.
func (c *Camera) Cx() float64 { return c.intrinsics.Ppx }

// Cy returns the vertical principal point.
func (c *Camera) Cy() float64 { return c.intrinsics.Ppy }

// SetExtrinsics stores the world to camera transform and derives the pose from it.
func (c *Camera) SetExtrinsics(extrinsics mat.Matrix) error {
	e, p, err := invertRigid(extrinsics, "extrinsics")
	if err != nil {
		return err
	}
	c.placement = rigidTransform{extrinsics: e, pose: p}
	return nil
}

// SetPose stores the camera to world transform and derives the extrinsics from it.
func (c *Camera) SetPose(pose mat.Matrix) error {
	p, e, err := invertRigid(pose, "pose")
	if err != nil {
		return err
	}
	c.placement = rigidTransform{extrinsics: e, pose: p}
	return nil
}

// Extrinsics returns a copy of the world to camera transform.
func (c *Camera) Extrinsics() *mat.Dense {
	return mat.DenseCopyOf(c.placement.extrinsics)
}

// Pose returns a copy of the camera to world transform.
func (c *Camera) Pose() *mat.Dense {
	return mat.DenseCopyOf(c.placement.pose)
}

// HorizontalFOV returns the horizontal field of view in radians for an image of the given width.
func (c *Camera) HorizontalFOV(width int) float64 {
	return 2 * math.Atan2(float64(width), 2*c.intrinsics.Fx)
}

// VerticalFOV returns the vertical field of view in radians for an image of the given height.
func (c *Camera) VerticalFOV(height int) float64 {
	return 2 * math.Atan2(float64(height), 2*c.intrinsics.Fy)
}

func invertRigid(m mat.Matrix, what string) (*mat.Dense, *mat.Dense, error) {
	if isNilMatrix(m) {
		return nil, nil, NewInvalidCameraError("%s is missing", what)
	}
	if r, cols := m.Dims(); r != 4 || cols != 4 {
		return nil, nil, NewInvalidCameraError("%s must be 4x4, got %dx%d", what, r, cols)
	}
	stored := mat.DenseCopyOf(m)
	var inv mat.Dense
	if err := inv.Inverse(stored); err != nil {
		// gonum still computes the inverse when it only reports a large condition number
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) || !isInverse(stored, &inv) {
			return nil, nil, NewInvalidCameraError("%s is singular: %v", what, err)
		}
	}
	return stored, &inv, nil
}

func isInverse(m, inv *mat.Dense) bool {
	var product mat.Dense
	product.Mul(m, inv)
	return mat.EqualApprox(&product, identity4(), inverseTolerance)
}

func isNilMatrix(m mat.Matrix) bool {
	if m == nil {
		return true
	}
	d, ok := m.(*mat.Dense)
	return ok && d == nil
}

func identity4() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}
