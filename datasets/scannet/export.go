package scannet

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/pkg/errors"

	"go.viam.com/scenekit/rimage"
)

func checkFrameSkip(frameSkip int) error {
	if frameSkip <= 0 {
		return errors.Errorf("frame skip must be positive, got %d", frameSkip)
	}
	return nil
}

// sampledFrames returns 0, skip, 2*skip, ... below total.
func sampledFrames(total, skip int) []int {
	indices := make([]int, 0, (total+skip-1)/skip)
	for i := 0; i < total; i += skip {
		indices = append(indices, i)
	}
	return indices
}

// ExportDepthImages writes every frameSkip-th depth frame to dir as <frame>.png, a 16-bit
// PNG in the stream's depth units. If imageSize is set frames are resized to it first.
func (sd *SensorData) ExportDepthImages(dir string, imageSize *image.Point, frameSkip int) error {
	if err := checkFrameSkip(frameSkip); err != nil {
		return err
	}
	if err := rimage.EnsureDir(dir); err != nil {
		return err
	}
	sd.logf("exporting %d depth frames to %s", len(sd.Frames)/frameSkip, dir)
	for _, i := range sampledFrames(len(sd.Frames), frameSkip) {
		dm, err := sd.DecompressDepth(i)
		if err != nil {
			return err
		}
		if imageSize != nil {
			if dm, err = dm.Resize(imageSize.X, imageSize.Y); err != nil {
				return err
			}
		}
		if err := rimage.WriteImageToFile(filepath.Join(dir, fmt.Sprintf("%d.png", i)), dm); err != nil {
			return err
		}
	}
	return nil
}

// ExportColorImages writes every frameSkip-th color frame to dir as <frame>.jpg.
func (sd *SensorData) ExportColorImages(dir string, imageSize *image.Point, frameSkip int) error {
	if err := checkFrameSkip(frameSkip); err != nil {
		return err
	}
	if err := rimage.EnsureDir(dir); err != nil {
		return err
	}
	sd.logf("exporting %d color frames to %s", len(sd.Frames)/frameSkip, dir)
	for _, i := range sampledFrames(len(sd.Frames), frameSkip) {
		img, err := sd.DecompressColor(i)
		if err != nil {
			return err
		}
		if imageSize != nil {
			if img, err = rimage.ResizeImage(img, imageSize.X, imageSize.Y); err != nil {
				return err
			}
		}
		if err := rimage.WriteImageToFile(filepath.Join(dir, fmt.Sprintf("%d.jpg", i)), img); err != nil {
			return err
		}
	}
	return nil
}

// ExportPoses writes every frameSkip-th camera to world pose to dir as <frame>.txt.
func (sd *SensorData) ExportPoses(dir string, frameSkip int) error {
	if err := checkFrameSkip(frameSkip); err != nil {
		return err
	}
	if err := rimage.EnsureDir(dir); err != nil {
		return err
	}
	sd.logf("exporting %d camera poses to %s", len(sd.Frames)/frameSkip, dir)
	for _, i := range sampledFrames(len(sd.Frames), frameSkip) {
		path := filepath.Join(dir, fmt.Sprintf("%d.txt", i))
		if err := rimage.WriteMatrixToFile(path, sd.Frames[i].CameraToWorld.Dense()); err != nil {
			return err
		}
	}
	return nil
}

// ExportIntrinsics writes the four calibration matrices to dir.
func (sd *SensorData) ExportIntrinsics(dir string) error {
	if err := rimage.EnsureDir(dir); err != nil {
		return err
	}
	sd.logf("exporting camera intrinsics to %s", dir)
	for _, m := range []struct {
		name string
		m    Matrix4
	}{
		{"intrinsic_color.txt", sd.IntrinsicColor},
		{"extrinsic_color.txt", sd.ExtrinsicColor},
		{"intrinsic_depth.txt", sd.IntrinsicDepth},
		{"extrinsic_depth.txt", sd.ExtrinsicDepth},
	} {
		if err := rimage.WriteMatrixToFile(filepath.Join(dir, m.name), m.m.Dense()); err != nil {
			return err
		}
	}
	return nil
}

func (sd *SensorData) logf(template string, args ...interface{}) {
	if sd.logger != nil {
		sd.logger.Infof(template, args...)
	}
}
