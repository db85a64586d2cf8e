package scannet

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/scenekit/rimage"
)

func decodeFixture(t *testing.T, n int) (*SensorData, *fixture) {
	t.Helper()
	fx := newFixture(n)
	sd, err := Decode(bytes.NewReader(fx.bytes(t)), "scene0001_00.sens", golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return sd, fx
}

func TestExportDepthImages(t *testing.T) {
	sd, fx := decodeFixture(t, 5)
	dir := filepath.Join(t.TempDir(), "depth")

	test.That(t, sd.ExportDepthImages(dir, nil, 2), test.ShouldBeNil)
	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(files), test.ShouldEqual, 3)
	for _, i := range []int{0, 2, 4} {
		dm, err := rimage.ReadDepthMapFromFile(filepath.Join(dir, fmt.Sprintf("%d.png", i)))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dm, test.ShouldResemble, fx.frames[i].depth)
	}

	resizedDir := filepath.Join(t.TempDir(), "resized")
	test.That(t, sd.ExportDepthImages(resizedDir, &image.Point{X: 4, Y: 3}, 1), test.ShouldBeNil)
	dm, err := rimage.ReadDepthMapFromFile(filepath.Join(resizedDir, "1.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.Width(), test.ShouldEqual, 4)
	test.That(t, dm.Height(), test.ShouldEqual, 3)
	// nearest neighbor only ever copies readings
	lo, hi := dm.MinMax()
	test.That(t, lo, test.ShouldBeGreaterThanOrEqualTo, rimage.Depth(1000))
	test.That(t, hi, test.ShouldBeLessThanOrEqualTo, rimage.Depth(1507))

	test.That(t, sd.ExportDepthImages(dir, nil, 0), test.ShouldNotBeNil)
}

func TestExportDepthImagesResizeKeepsReadings(t *testing.T) {
	fx := newFixture(2)
	for _, f := range fx.frames {
		for y := 0; y < testDepthH; y++ {
			for x := 0; x < testDepthW; x++ {
				if (x+y)%2 == 0 {
					f.depth.Set(x, y, 0)
				}
			}
		}
	}
	sd, err := Decode(bytes.NewReader(fx.bytes(t)), "scene0002_00.sens", golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	dir := filepath.Join(t.TempDir(), "resized")
	for _, size := range []image.Point{{X: 4, Y: 3}, {X: 3, Y: 5}} {
		test.That(t, sd.ExportDepthImages(dir, &size, 1), test.ShouldBeNil)
		for i, f := range fx.frames {
			in := map[rimage.Depth]bool{}
			for y := 0; y < testDepthH; y++ {
				for x := 0; x < testDepthW; x++ {
					in[f.depth.GetDepth(x, y)] = true
				}
			}
			dm, err := rimage.ReadDepthMapFromFile(filepath.Join(dir, fmt.Sprintf("%d.png", i)))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, dm.Width(), test.ShouldEqual, size.X)
			test.That(t, dm.Height(), test.ShouldEqual, size.Y)
			for y := 0; y < size.Y; y++ {
				for x := 0; x < size.X; x++ {
					test.That(t, in[dm.GetDepth(x, y)], test.ShouldBeTrue)
				}
			}
		}
	}
}

func TestExportColorImages(t *testing.T) {
	sd, fx := decodeFixture(t, 3)
	dir := filepath.Join(t.TempDir(), "color")

	test.That(t, sd.ExportColorImages(dir, nil, 1), test.ShouldBeNil)
	for i := range fx.frames {
		img, err := rimage.ReadImageFromFile(filepath.Join(dir, fmt.Sprintf("%d.jpg", i)))
		test.That(t, err, test.ShouldBeNil)
		checkUniformColor(t, img, fx.frames[i].color)
	}

	resizedDir := filepath.Join(t.TempDir(), "resized")
	test.That(t, sd.ExportColorImages(resizedDir, &image.Point{X: 8, Y: 5}, 3), test.ShouldBeNil)
	files, err := filepath.Glob(filepath.Join(resizedDir, "*.jpg"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, files, test.ShouldResemble, []string{filepath.Join(resizedDir, "0.jpg")})
	img, err := rimage.ReadImageFromFile(files[0])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 8)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 5)

	test.That(t, sd.ExportColorImages(dir, nil, -1), test.ShouldNotBeNil)
}

func TestExportPosesAndIntrinsics(t *testing.T) {
	sd, fx := decodeFixture(t, 4)
	dir := t.TempDir()

	poseDir := filepath.Join(dir, "pose")
	test.That(t, sd.ExportPoses(poseDir, 3), test.ShouldBeNil)
	files, err := filepath.Glob(filepath.Join(poseDir, "*.txt"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(files), test.ShouldEqual, 2)

	pose, err := rimage.ReadMatrixFromFile(filepath.Join(poseDir, "3.txt"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(pose, fx.frames[3].pose.Dense()), test.ShouldBeTrue)
	raw, err := os.ReadFile(filepath.Join(poseDir, "3.txt"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(raw), test.ShouldStartWith, "1.000000 0.000000 0.000000 1.500000\n")

	test.That(t, sd.ExportPoses(poseDir, 0), test.ShouldNotBeNil)

	intrinsicDir := filepath.Join(dir, "intrinsic")
	test.That(t, sd.ExportIntrinsics(intrinsicDir), test.ShouldBeNil)
	for name, want := range map[string]Matrix4{
		"intrinsic_color.txt": testColorIntrinsic,
		"extrinsic_color.txt": identityMatrix,
		"intrinsic_depth.txt": testDepthIntrinsic,
		"extrinsic_depth.txt": identityMatrix,
	} {
		m, err := rimage.ReadMatrixFromFile(filepath.Join(intrinsicDir, name))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, mat.EqualApprox(m, want.Dense(), 1e-6), test.ShouldBeTrue)
	}
}
