package scannetpp

import (
	"context"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/scenekit/config"
	"go.viam.com/scenekit/utils"
)

// IPhoneSubdir is where a scene keeps its iPhone capture.
const IPhoneSubdir = "iphone"

// ExportAll extracts the iPhone capture of every selected scene under cfg.DataDir, with
// at most cfg.Workers scenes in flight. Frames of <scene>/iphone go to
// <cfg.OutputDir>/<scene>/iphone.
func ExportAll(ctx context.Context, cfg *config.ExportConfig, logger golog.Logger) error {
	scenes := cfg.Scenes
	if len(scenes) == 0 {
		var err error
		if scenes, err = utils.ListSubdirs(cfg.DataDir); err != nil {
			return err
		}
	}
	outputRoot := cfg.OutputDir
	if outputRoot == "" {
		outputRoot = cfg.DataDir
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	opts := DepthStreamOptions{
		Height:     cfg.DepthHeight,
		Width:      cfg.DepthWidth,
		SampleRate: cfg.SampleRate,
		MaxFrames:  cfg.MaxDepthFrames,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range scenes {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sceneDir, err := utils.SafeJoinDir(cfg.DataDir, id)
			if err != nil {
				return err
			}
			d, err := NewIPhoneDataset(filepath.Join(sceneDir, IPhoneSubdir), filepath.Join(outputRoot, id, IPhoneSubdir), logger)
			if err != nil {
				return err
			}
			d.DepthOptions = opts
			if err := exportCapture(ctx, d, cfg); err != nil {
				return errors.Wrapf(err, "exporting scene %s", id)
			}
			logger.Infow("exported scene", "scene", id, "output", d.OutputDir)
			return nil
		})
	}
	return g.Wait()
}

func exportCapture(ctx context.Context, d *IPhoneDataset, cfg *config.ExportConfig) error {
	if _, err := d.ExtractDepth(); err != nil {
		return err
	}
	if cfg.ExtractRGB {
		if err := d.ExtractRGB(ctx); err != nil {
			return err
		}
	}
	if cfg.ExtractMasks {
		return d.ExtractMasks(ctx)
	}
	return nil
}
