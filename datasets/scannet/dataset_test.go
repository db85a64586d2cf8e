package scannet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/scenekit/config"
	"go.viam.com/scenekit/rimage"
)

// makeDataset lays out scenes scene1, scene2 and scene10; scene10 has no capture.
func makeDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, id := range []string{"scene1", "scene2"} {
		newFixture(3).write(t, filepath.Join(root, id, id+".sens"))
	}
	test.That(t, os.MkdirAll(filepath.Join(root, "scene10"), 0o750), test.ShouldBeNil)
	test.That(t, os.WriteFile(filepath.Join(root, "README.txt"), nil, 0o600), test.ShouldBeNil)
	return root
}

func TestDataset(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := makeDataset(t)

	d, err := NewDataset(root, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.SceneIDs(), test.ShouldResemble, []string{"scene1", "scene2", "scene10"})
	test.That(t, d.CurrentSceneID(), test.ShouldEqual, "")
	test.That(t, d.CurrentScenePath(), test.ShouldEqual, "")
	_, err = d.Frames()
	test.That(t, err, test.ShouldNotBeNil)

	err = d.SetSceneID("scene3")
	test.That(t, errors.Is(err, ErrSceneNotFound), test.ShouldBeTrue)
	err = d.SetSceneIDByIndex(3)
	test.That(t, errors.Is(err, ErrSceneNotFound), test.ShouldBeTrue)
	err = d.SetSceneIDByIndex(-1)
	test.That(t, errors.Is(err, ErrSceneNotFound), test.ShouldBeTrue)
	// listed but without a capture
	test.That(t, d.SetSceneIDByIndex(2), test.ShouldNotBeNil)
	test.That(t, d.CurrentSceneID(), test.ShouldEqual, "")

	test.That(t, d.SetSceneIDByIndex(1), test.ShouldBeNil)
	test.That(t, d.CurrentSceneID(), test.ShouldEqual, "scene2")
	test.That(t, d.CurrentScenePath(), test.ShouldEqual, filepath.Join(root, "scene2"))

	fd, err := d.Frames()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fd.SensPath(), test.ShouldEqual, filepath.Join(root, "scene2", "scene2.sens"))
	test.That(t, fd.OutputDir, test.ShouldEqual, filepath.Join(root, "scene2"))
	test.That(t, fd.DepthFolder(), test.ShouldEqual, filepath.Join(root, "scene2", "depth"))
	test.That(t, fd.PackagePath(), test.ShouldEqual, filepath.Join(root, "scene2", "scene2.zip"))

	test.That(t, fd.ExtractDepth(""), test.ShouldBeNil)
	dm, err := rimage.ReadDepthMapFromFile(filepath.Join(fd.DepthFolder(), "2.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm, test.ShouldResemble, newFixture(3).frames[2].depth)

	custom := filepath.Join(t.TempDir(), "poses")
	test.That(t, fd.ExtractPoses(custom), test.ShouldBeNil)
	_, err = os.Stat(filepath.Join(custom, "0.txt"))
	test.That(t, err, test.ShouldBeNil)

	_, err = NewDataset(filepath.Join(root, "missing"), logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFrameDataset(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := makeDataset(t)
	out := t.TempDir()

	_, err := NewFrameDataset("scene10", filepath.Join(root, "scene10"), out, logger)
	test.That(t, err, test.ShouldNotBeNil)

	fd, err := NewFrameDataset("scene1", filepath.Join(root, "scene1"), out, logger)
	test.That(t, err, test.ShouldBeNil)
	fd.FrameSkip = 2

	test.That(t, fd.ExtractRGB(""), test.ShouldBeNil)
	test.That(t, fd.ExtractDepth(""), test.ShouldBeNil)
	test.That(t, fd.ExtractPoses(""), test.ShouldBeNil)
	test.That(t, fd.ExtractIntrinsics(""), test.ShouldBeNil)
	test.That(t, fd.ExportPackaged(DefaultPackageSkip), test.ShouldBeNil)

	for _, p := range []string{
		"color/0.jpg", "color/2.jpg",
		"depth/0.png", "depth/2.png",
		"pose/0.txt", "pose/2.txt",
		"intrinsic/intrinsic_color.txt", "intrinsic/extrinsic_depth.txt",
		"scene1.zip",
	} {
		_, err := os.Stat(filepath.Join(out, p))
		test.That(t, err, test.ShouldBeNil)
	}
	_, err = os.Stat(filepath.Join(out, "color", "1.jpg"))
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)

	a, err := OpenArchive(fd.PackagePath())
	test.That(t, err, test.ShouldBeNil)
	indices, err := a.FrameIndices()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, indices, test.ShouldResemble, []int{0})
	test.That(t, a.Close(), test.ShouldBeNil)

	sd, err := fd.SensorData()
	test.That(t, err, test.ShouldBeNil)
	again, err := fd.SensorData()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldEqual, sd)
}

func TestExportAll(t *testing.T) {
	logger := golog.NewTestLogger(t)
	root := t.TempDir()
	for _, id := range []string{"scene0000_00", "scene0000_01", "scene0001_00"} {
		newFixture(2).write(t, filepath.Join(root, id, id+".sens"))
	}
	d, err := NewDataset(root, logger)
	test.That(t, err, test.ShouldBeNil)

	out := t.TempDir()
	cfg := &config.ExportConfig{
		Dataset:   config.DatasetScanNet,
		DataDir:   root,
		OutputDir: out,
		Package:   true,
		Workers:   2,
		ImageSize: []int{3, 4},
	}
	cfg.SetDefaults(logger)
	test.That(t, ExportAll(context.Background(), d, cfg, logger), test.ShouldBeNil)

	for _, id := range d.SceneIDs() {
		dm, err := rimage.ReadDepthMapFromFile(filepath.Join(out, id, "depth", "1.png"))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dm.Width(), test.ShouldEqual, 4)
		test.That(t, dm.Height(), test.ShouldEqual, 3)
		_, err = os.Stat(filepath.Join(out, id, id+".zip"))
		test.That(t, err, test.ShouldBeNil)
	}

	cfg.Scenes = []string{"scene0001_00", "scene9999_00"}
	err = ExportAll(context.Background(), d, cfg, logger)
	test.That(t, errors.Is(err, ErrSceneNotFound), test.ShouldBeTrue)

	// a broken capture fails the whole export
	test.That(t, os.WriteFile(filepath.Join(root, "scene0000_01", "scene0000_01.sens"), []byte{3, 0, 0, 0}, 0o600), test.ShouldBeNil)
	cfg.Scenes = nil
	err = ExportAll(context.Background(), d, cfg, logger)
	test.That(t, errors.Is(err, ErrFormat), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "scene0000_01")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = ExportAll(ctx, d, cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
