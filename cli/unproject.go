package cli

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/scenekit/estimation"
	"go.viam.com/scenekit/pointcloud"
	"go.viam.com/scenekit/rimage"
	"go.viam.com/scenekit/rimage/transform"
)

// UnprojectAction unprojects a depth image, read from disk or estimated from the color
// image, and writes the resulting cloud.
func UnprojectAction(c *cli.Context) error {
	logger := loggerFrom(c)
	cam, err := cameraFromFlags(c)
	if err != nil {
		return err
	}

	var colorImg image.Image
	if path := c.Path(unprojectFlagColor); path != "" {
		if colorImg, err = rimage.ReadImageFromFile(path); err != nil {
			return err
		}
	}

	var depth interface{}
	switch {
	case c.String(unprojectFlagEstimate) != "":
		if colorImg == nil {
			return errors.Errorf("--%s needs --%s", unprojectFlagEstimate, unprojectFlagColor)
		}
		predictor, err := estimation.New(c.Context, c.String(unprojectFlagEstimate),
			estimation.Config{ModelPath: c.Path(unprojectFlagModelPath)}, logger)
		if err != nil {
			return err
		}
		if depth, err = estimation.Estimate(c.Context, predictor, colorImg, nil, true); err != nil {
			return err
		}
	case c.Path(unprojectFlagDepth) != "":
		depth = c.Path(unprojectFlagDepth)
	default:
		return errors.Errorf("one of --%s or --%s is required", unprojectFlagDepth, unprojectFlagEstimate)
	}

	var color interface{}
	if colorImg != nil {
		color = colorImg
	}
	cloud, err := transform.Unproject(depth, cam, color)
	if err != nil {
		return err
	}
	out := c.Path(unprojectFlagOut)
	if err := writeCloud(cloud, out); err != nil {
		return err
	}
	logger.Debugw("unprojected", "points", cloud.Size(), "out", out)
	fmt.Fprintf(c.App.Writer, "wrote %d points to %s\n", cloud.Size(), out)
	return nil
}

func cameraFromFlags(c *cli.Context) (*transform.Camera, error) {
	var intrinsics *transform.PinholeCameraIntrinsics
	if path := c.Path(unprojectFlagIntrinsics); path != "" {
		var err error
		if intrinsics, err = transform.NewPinholeCameraIntrinsicsFromJSONFile(path); err != nil {
			return nil, err
		}
		if err := intrinsics.CheckValid(); err != nil {
			return nil, err
		}
	}
	cam, err := transform.NewCamera(intrinsics, nil, "cli")
	if err != nil {
		return nil, err
	}
	if path := c.Path(unprojectFlagPose); path != "" {
		pose, err := rimage.ReadMatrixFromFile(path)
		if err != nil {
			return nil, err
		}
		if err := cam.SetPose(pose); err != nil {
			return nil, err
		}
	}
	return cam, nil
}

func writeCloud(cloud pointcloud.PointCloud, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ply":
		return pointcloud.WritePLYFile(cloud, path)
	case ".pcd":
		return writePCDFile(cloud, path)
	default:
		return errors.Errorf("unsupported point cloud format %q, expected .ply or .pcd", filepath.Ext(path))
	}
}

func writePCDFile(cloud pointcloud.PointCloud, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return pointcloud.ToPCD(cloud, f, pointcloud.PCDBinary)
}
