package scannet

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/scenekit/config"
)

// ExportAll runs the export described by cfg for every selected scene of the dataset,
// with at most cfg.Workers scenes in flight. Each scene gets its own decoder and its
// output goes to <cfg.OutputDir>/<scene>.
func ExportAll(ctx context.Context, dataset *Dataset, cfg *config.ExportConfig, logger golog.Logger) error {
	scenes := cfg.Scenes
	if len(scenes) == 0 {
		scenes = dataset.SceneIDs()
	}
	known := make(map[string]bool, len(dataset.sceneIDs))
	for _, id := range dataset.sceneIDs {
		known[id] = true
	}
	for _, id := range scenes {
		if !known[id] {
			return errors.Wrapf(ErrSceneNotFound, "scene %s not found in %s", id, dataset.DataDir())
		}
	}

	outputRoot := cfg.OutputDir
	if outputRoot == "" {
		outputRoot = dataset.DataDir()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range scenes {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fd, err := NewFrameDataset(id, filepath.Join(dataset.DataDir(), id), filepath.Join(outputRoot, id), logger)
			if err != nil {
				return err
			}
			fd.FrameSkip = cfg.FrameSkip
			fd.ImageSize = cfg.ImageSizePoint()
			if err := exportScene(fd, cfg); err != nil {
				return errors.Wrapf(err, "exporting scene %s", id)
			}
			logger.Infow("exported scene", "scene", id, "output", fd.OutputDir)
			return nil
		})
	}
	return g.Wait()
}

func exportScene(fd *FrameDataset, cfg *config.ExportConfig) error {
	for _, step := range []func(string) error{
		fd.ExtractRGB,
		fd.ExtractDepth,
		fd.ExtractPoses,
		fd.ExtractIntrinsics,
	} {
		if err := step(""); err != nil {
			return err
		}
	}
	if !cfg.Package {
		return nil
	}
	skip := cfg.PackageSkip
	if skip <= 0 {
		skip = DefaultPackageSkip
	}
	return fd.ExportPackaged(skip)
}
