package scannetpp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/scenekit/pointcloud"
	"go.viam.com/scenekit/rimage"
	"go.viam.com/scenekit/rimage/transform"
	"go.viam.com/scenekit/utils"
)

func newTestMesh(t *testing.T) *MeshDataset {
	t.Helper()
	dir := t.TempDir()
	md, err := NewMeshDataset(dir, "", golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	pc := pointcloud.New()
	for _, p := range []r3.Vector{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 2}, {X: 0.5, Y: 0, Z: 1}} {
		test.That(t, pc.Set(p, nil), test.ShouldBeNil)
	}
	test.That(t, pointcloud.WritePLYFile(pc, md.MeshPath()), test.ShouldBeNil)
	return md
}

// meshCamera sits at (0, 0, -back) looking down +z.
func meshCamera(t *testing.T, back float64) *transform.Camera {
	t.Helper()
	cam, err := transform.NewCamera(&transform.PinholeCameraIntrinsics{Width: 4, Height: 3, Fx: 2, Fy: 2, Ppx: 1.5, Ppy: 1}, nil, "mesh")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.SetPose(mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, -back,
		0, 0, 0, 1,
	})), test.ShouldBeNil)
	return cam
}

func TestMeshRenderDepth(t *testing.T) {
	md := newTestMesh(t)
	test.That(t, md.MeshPath(), test.ShouldEqual, filepath.Join(md.DataDir, "mesh_aligned_0.05.ply"))
	test.That(t, md.OutputDir, test.ShouldEqual, md.DataDir)

	depths, err := md.RenderDepth(context.Background(), []*transform.Camera{meshCamera(t, 0), meshCamera(t, 1)}, 4, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(depths), test.ShouldEqual, 2)

	test.That(t, depths[0].ValidCount(), test.ShouldEqual, 2)
	test.That(t, depths[0].GetDepth(2, 1), test.ShouldEqual, rimage.Depth(1000))
	test.That(t, depths[0].GetDepth(3, 1), test.ShouldEqual, rimage.Depth(1000))
	test.That(t, depths[1].ValidCount(), test.ShouldEqual, 1)
	test.That(t, depths[1].GetDepth(2, 1), test.ShouldEqual, rimage.Depth(2000))

	_, err = md.RenderDepth(context.Background(), []*transform.Camera{nil}, 4, 3)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMeshExportAllDepth(t *testing.T) {
	md := newTestMesh(t)
	md.SetCameras([]*transform.Camera{meshCamera(t, 0), meshCamera(t, 1), meshCamera(t, 2), meshCamera(t, 3)})
	test.That(t, len(md.Cameras()), test.ShouldEqual, 4)
	md.BatchSize = 2
	md.StartIdx = 1

	dir := filepath.Join(t.TempDir(), "render")
	test.That(t, md.ExportAllDepth(context.Background(), dir, 4, 3), test.ShouldBeNil)
	paths, err := utils.ListFiles(dir, ".png")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(paths), test.ShouldEqual, 3)
	test.That(t, filepath.Base(paths[0]), test.ShouldEqual, "frame_000001.png")

	dm, err := rimage.ReadDepthMapFromFile(paths[2])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(2, 1), test.ShouldEqual, rimage.Depth(4000))

	md.StartIdx = 5
	test.That(t, md.ExportAllDepth(context.Background(), dir, 4, 3), test.ShouldNotBeNil)

	md.StartIdx = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, md.ExportAllDepth(ctx, dir, 4, 3), test.ShouldNotBeNil)
}

func TestMeshMissing(t *testing.T) {
	logger := golog.NewTestLogger(t)
	md, err := NewMeshDataset(t.TempDir(), "", logger)
	test.That(t, err, test.ShouldBeNil)
	_, err = md.RenderDepth(context.Background(), []*transform.Camera{meshCamera(t, 0)}, 4, 3)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewMeshDataset(filepath.Join(t.TempDir(), "missing"), "", logger)
	test.That(t, err, test.ShouldNotBeNil)
}
