package scannetpp

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/scenekit/pointcloud"
	"go.viam.com/scenekit/rimage"
	"go.viam.com/scenekit/rimage/transform"
	"go.viam.com/scenekit/utils"
)

// DefaultBatchSize is how many cameras are rendered at once.
const DefaultBatchSize = 8

// MeshDataset renders depth maps of a scene's aligned mesh from a set of cameras.
// Mesh vertices are splatted into a z-buffer; faces are not rasterized.
type MeshDataset struct {
	DataDir   string
	OutputDir string
	BatchSize int
	// StartIdx and EndIdx select the cameras ExportAllDepth renders. EndIdx -1 means all.
	StartIdx int
	EndIdx   int

	cameras []*transform.Camera
	mesh    pointcloud.PointCloud
	logger  golog.Logger
}

// NewMeshDataset returns the mesh dataset of the scene stored in dataDir.
func NewMeshDataset(dataDir, outputDir string, logger golog.Logger) (*MeshDataset, error) {
	if !utils.DirExists(dataDir) {
		return nil, errors.Errorf("scene directory %s not found", dataDir)
	}
	if outputDir == "" {
		outputDir = dataDir
	}
	return &MeshDataset{
		DataDir:   dataDir,
		OutputDir: outputDir,
		BatchSize: DefaultBatchSize,
		EndIdx:    -1,
		logger:    logger,
	}, nil
}

// MeshPath is the path of the aligned mesh.
func (md *MeshDataset) MeshPath() string {
	return filepath.Join(md.DataDir, "mesh_aligned_0.05.ply")
}

// SetCameras replaces the cameras used by ExportAllDepth.
func (md *MeshDataset) SetCameras(cameras []*transform.Camera) {
	md.cameras = cameras
}

// Cameras returns the cameras set on the dataset.
func (md *MeshDataset) Cameras() []*transform.Camera {
	return md.cameras
}

func (md *MeshDataset) loadMesh() (pointcloud.PointCloud, error) {
	if md.mesh != nil {
		return md.mesh, nil
	}
	mesh, err := pointcloud.ReadPLYFile(md.MeshPath())
	if err != nil {
		return nil, err
	}
	md.logger.Debugw("loaded mesh", "path", md.MeshPath(), "vertices", mesh.Size())
	md.mesh = mesh
	return mesh, nil
}

// RenderDepth renders one depth map per camera, in millimeters.
func (md *MeshDataset) RenderDepth(ctx context.Context, cameras []*transform.Camera, width, height int) ([]*rimage.DepthMap, error) {
	mesh, err := md.loadMesh()
	if err != nil {
		return nil, err
	}
	out := make([]*rimage.DepthMap, len(cameras))
	g, ctx := errgroup.WithContext(ctx)
	for i, cam := range cameras {
		i, cam := i, cam
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dm, err := transform.RenderDepth(mesh, cam, width, height)
			if err != nil {
				return errors.Wrapf(err, "rendering camera %d", i)
			}
			out[i] = dm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExportAllDepth renders the selected cameras in batches and writes frame_%06d.png files,
// numbered by camera index, to dir.
func (md *MeshDataset) ExportAllDepth(ctx context.Context, dir string, width, height int) error {
	start, end := md.StartIdx, md.EndIdx
	if end < 0 || end > len(md.cameras) {
		end = len(md.cameras)
	}
	if start < 0 || start > end {
		return errors.Errorf("camera range [%d, %d) is invalid for %d cameras", start, end, len(md.cameras))
	}
	batch := md.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	if err := rimage.EnsureDir(dir); err != nil {
		return err
	}
	md.logger.Infof("rendering %d depth maps to %s", end-start, dir)
	for i := start; i < end; i += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		stop := i + batch
		if stop > end {
			stop = end
		}
		depths, err := md.RenderDepth(ctx, md.cameras[i:stop], width, height)
		if err != nil {
			return err
		}
		for j, dm := range depths {
			if err := rimage.WriteImageToFile(filepath.Join(dir, frameName(i+j, ".png")), dm); err != nil {
				return err
			}
		}
	}
	return nil
}
