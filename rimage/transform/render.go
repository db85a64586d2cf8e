package transform

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/scenekit/pointcloud"
	"go.viam.com/scenekit/rimage"
)

// RenderDepth projects world space points into the camera and keeps the nearest depth
// per pixel, in millimeters. Points behind the camera or outside the image are dropped.
func RenderDepth(cloud pointcloud.PointCloud, cam *Camera, width, height int) (*rimage.DepthMap, error) {
	if cam == nil {
		return nil, NewInvalidCameraError("no camera given")
	}
	if err := cam.Intrinsics().CheckValid(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot render a %dx%d depth map", width, height)
	}
	intrinsics := cam.Intrinsics()
	extrinsics := cam.Extrinsics()
	dm := rimage.NewEmptyDepthMap(width, height)
	cloud.Iterate(0, 0, func(p r3.Vector, d pointcloud.Data) bool {
		c := pointcloud.ApplyTransform(extrinsics, p)
		if c.Z <= 0 {
			return true
		}
		u, v := intrinsics.PointToPixel(c.X, c.Y, c.Z)
		x, y := int(u), int(v)
		if !dm.Contains(x, y) || u < 0 || v < 0 {
			return true
		}
		z := rimage.MetersToDepth(c.Z)
		if z == 0 {
			return true
		}
		if cur := dm.GetDepth(x, y); cur == 0 || z < cur {
			dm.Set(x, y, z)
		}
		return true
	})
	return dm, nil
}
