package scannet

import (
	"image"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"go.viam.com/scenekit/utils"
)

// ErrSceneNotFound is returned when a scene id or index does not name a scene in the dataset.
var ErrSceneNotFound = errors.New("scene not found")

// FrameDataset binds one scene's .sens capture to the folders its frames are exported to.
type FrameDataset struct {
	SceneID   string
	DataDir   string
	OutputDir string
	// ImageSize resizes exported images when set.
	ImageSize *image.Point
	FrameSkip int

	logger golog.Logger
	sensor *SensorData
}

// NewFrameDataset returns the frame dataset of a scene whose capture is
// <dataDir>/<sceneID>.sens. An empty outputDir exports next to the capture.
func NewFrameDataset(sceneID, dataDir, outputDir string, logger golog.Logger) (*FrameDataset, error) {
	if outputDir == "" {
		outputDir = dataDir
	}
	fd := &FrameDataset{
		SceneID:   sceneID,
		DataDir:   dataDir,
		OutputDir: outputDir,
		FrameSkip: 1,
		logger:    logger,
	}
	if !utils.FileExists(fd.SensPath()) {
		return nil, errors.Errorf("file %s not found", fd.SensPath())
	}
	return fd, nil
}

// SensPath is the path of the scene's capture.
func (fd *FrameDataset) SensPath() string {
	return filepath.Join(fd.DataDir, fd.SceneID+".sens")
}

// PackagePath is where ExportPackaged writes the archive.
func (fd *FrameDataset) PackagePath() string {
	return filepath.Join(fd.OutputDir, fd.SceneID+".zip")
}

// RGBFolder is where color frames are exported.
func (fd *FrameDataset) RGBFolder() string {
	return filepath.Join(fd.OutputDir, "color")
}

// DepthFolder is where depth frames are exported.
func (fd *FrameDataset) DepthFolder() string {
	return filepath.Join(fd.OutputDir, "depth")
}

// PoseFolder is where poses are exported.
func (fd *FrameDataset) PoseFolder() string {
	return filepath.Join(fd.OutputDir, "pose")
}

// IntrinsicsFolder is where calibration matrices are exported.
func (fd *FrameDataset) IntrinsicsFolder() string {
	return filepath.Join(fd.OutputDir, "intrinsic")
}

// SensorData parses the capture on first use.
func (fd *FrameDataset) SensorData() (*SensorData, error) {
	if fd.sensor != nil {
		return fd.sensor, nil
	}
	sd, err := Open(fd.SensPath(), fd.logger)
	if err != nil {
		return nil, err
	}
	fd.sensor = sd
	return sd, nil
}

func (fd *FrameDataset) frameSkip() int {
	if fd.FrameSkip <= 0 {
		return 1
	}
	return fd.FrameSkip
}

func orDefault(dir, def string) string {
	if dir == "" {
		return def
	}
	return dir
}

// ExtractRGB exports color frames to dir, or RGBFolder if dir is empty.
func (fd *FrameDataset) ExtractRGB(dir string) error {
	sd, err := fd.SensorData()
	if err != nil {
		return err
	}
	dir = orDefault(dir, fd.RGBFolder())
	fd.logger.Infof("extracting RGB images to %s", dir)
	return sd.ExportColorImages(dir, fd.ImageSize, fd.frameSkip())
}

// ExtractDepth exports depth frames to dir, or DepthFolder if dir is empty.
func (fd *FrameDataset) ExtractDepth(dir string) error {
	sd, err := fd.SensorData()
	if err != nil {
		return err
	}
	dir = orDefault(dir, fd.DepthFolder())
	fd.logger.Infof("extracting depth images to %s", dir)
	return sd.ExportDepthImages(dir, fd.ImageSize, fd.frameSkip())
}

// ExtractPoses exports poses to dir, or PoseFolder if dir is empty.
func (fd *FrameDataset) ExtractPoses(dir string) error {
	sd, err := fd.SensorData()
	if err != nil {
		return err
	}
	dir = orDefault(dir, fd.PoseFolder())
	fd.logger.Infof("extracting poses to %s", dir)
	return sd.ExportPoses(dir, fd.frameSkip())
}

// ExtractIntrinsics exports calibration matrices to dir, or IntrinsicsFolder if dir is empty.
func (fd *FrameDataset) ExtractIntrinsics(dir string) error {
	sd, err := fd.SensorData()
	if err != nil {
		return err
	}
	dir = orDefault(dir, fd.IntrinsicsFolder())
	fd.logger.Infof("extracting intrinsics to %s", dir)
	return sd.ExportIntrinsics(dir)
}

// ExportPackaged writes the packaged archive to PackagePath with the given frame stride.
func (fd *FrameDataset) ExportPackaged(frameSkip int) error {
	sd, err := fd.SensorData()
	if err != nil {
		return err
	}
	fd.logger.Infof("exporting %s to %s", fd.SceneID, fd.PackagePath())
	return sd.ExportPackaged(fd.PackagePath(), frameSkip)
}

// Dataset is a directory of ScanNet scenes, one sub-directory per scene.
type Dataset struct {
	dataDir  string
	sceneIDs []string
	current  string
	frames   *FrameDataset
	logger   golog.Logger
}

// NewDataset lists the scenes under dataDir in natural order.
func NewDataset(dataDir string, logger golog.Logger) (*Dataset, error) {
	ids, err := utils.ListSubdirs(dataDir)
	if err != nil {
		return nil, err
	}
	return &Dataset{dataDir: dataDir, sceneIDs: ids, logger: logger}, nil
}

// DataDir returns the dataset root.
func (d *Dataset) DataDir() string {
	return d.dataDir
}

// SceneIDs returns the scene ids in natural order.
func (d *Dataset) SceneIDs() []string {
	return append([]string(nil), d.sceneIDs...)
}

// SetSceneID selects a scene and binds its frame dataset.
func (d *Dataset) SetSceneID(sceneID string) error {
	found := false
	for _, id := range d.sceneIDs {
		if id == sceneID {
			found = true
			break
		}
	}
	if !found {
		return errors.Wrapf(ErrSceneNotFound, "scene %s not found in %s", sceneID, d.dataDir)
	}
	scenePath, err := utils.SafeJoinDir(d.dataDir, sceneID)
	if err != nil {
		return err
	}
	frames, err := NewFrameDataset(sceneID, scenePath, "", d.logger)
	if err != nil {
		return err
	}
	d.current = sceneID
	d.frames = frames
	return nil
}

// SetSceneIDByIndex selects the scene at index in SceneIDs.
func (d *Dataset) SetSceneIDByIndex(index int) error {
	if index < 0 || index >= len(d.sceneIDs) {
		return errors.Wrapf(ErrSceneNotFound, "index %d out of scene ids range [0, %d)", index, len(d.sceneIDs))
	}
	return d.SetSceneID(d.sceneIDs[index])
}

// CurrentSceneID returns the selected scene, or "" if none is selected.
func (d *Dataset) CurrentSceneID() string {
	return d.current
}

// CurrentScenePath returns the directory of the selected scene.
func (d *Dataset) CurrentScenePath() string {
	if d.current == "" {
		return ""
	}
	return filepath.Join(d.dataDir, d.current)
}

// Frames returns the frame dataset of the selected scene.
func (d *Dataset) Frames() (*FrameDataset, error) {
	if d.frames == nil {
		return nil, errors.New("no scene selected")
	}
	return d.frames, nil
}
