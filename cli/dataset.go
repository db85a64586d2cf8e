package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/scenekit/config"
	"go.viam.com/scenekit/datasets/scannet"
	"go.viam.com/scenekit/datasets/scannetpp"
)

// ScanNetExportAction exports every selected scene of a ScanNet dataset.
func ScanNetExportAction(c *cli.Context) error {
	cfg := &config.ExportConfig{
		Dataset:     config.DatasetScanNet,
		DataDir:     c.Path(datasetFlagDataDir),
		OutputDir:   c.Path(datasetFlagOutputDir),
		Scenes:      c.StringSlice(datasetFlagScenes),
		FrameSkip:   c.Int(datasetFlagFrameSkip),
		Package:     c.Bool(datasetFlagPackage),
		PackageSkip: c.Int(datasetFlagPackageSkip),
		Workers:     c.Int(datasetFlagWorkers),
	}
	h, w := c.Int(datasetFlagImageHeight), c.Int(datasetFlagImageWidth)
	if h != 0 || w != 0 {
		cfg.ImageSize = []int{h, w}
	}
	return runExport(c, cfg)
}

// ConfigExportAction runs the export described by a config file.
func ConfigExportAction(c *cli.Context) error {
	cfg, err := config.Read(c.Path(generalFlagConfig), loggerFrom(c))
	if err != nil {
		return err
	}
	return runExport(c, cfg)
}

func runExport(c *cli.Context, cfg *config.ExportConfig) error {
	logger := loggerFrom(c)
	cfg.SetDefaults(logger)
	if err := cfg.Validate("flags"); err != nil {
		return config.WrapError(err)
	}
	switch cfg.Dataset {
	case config.DatasetScanNet:
		dataset, err := scannet.NewDataset(cfg.DataDir, logger)
		if err != nil {
			return err
		}
		if err := scannet.ExportAll(c.Context, dataset, cfg, logger); err != nil {
			return err
		}
	case config.DatasetScanNetPP:
		if err := scannetpp.ExportAll(c.Context, cfg, logger); err != nil {
			return err
		}
	default:
		return errors.Errorf("unknown dataset %q", cfg.Dataset)
	}
	fmt.Fprintf(c.App.Writer, "exported %s dataset to %s\n", cfg.Dataset, cfg.OutputDir)
	return nil
}

// ScanNetPPDepthAction decodes the depth stream of one iPhone capture.
func ScanNetPPDepthAction(c *cli.Context) error {
	d, err := scannetpp.NewIPhoneDataset(c.Path(datasetFlagDataDir), c.Path(datasetFlagOutputDir), loggerFrom(c))
	if err != nil {
		return err
	}
	d.DepthOptions = scannetpp.DepthStreamOptions{
		Height:     c.Int(datasetFlagHeight),
		Width:      c.Int(datasetFlagWidth),
		SampleRate: c.Int(datasetFlagSampleRate),
		MaxFrames:  c.Int(datasetFlagMaxFrames),
	}
	info, err := d.ExtractDepth()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %d of %d depth frames (%s) to %s\n", info.Emitted, info.Frames, info.Scheme, d.DepthFolder())
	return nil
}

// ScanNetPPVideoAction splits the color video, and optionally the mask video, of one
// iPhone capture into frames.
func ScanNetPPVideoAction(c *cli.Context) error {
	d, err := scannetpp.NewIPhoneDataset(c.Path(datasetFlagDataDir), c.Path(datasetFlagOutputDir), loggerFrom(c))
	if err != nil {
		return err
	}
	if err := d.ExtractRGB(c.Context); err != nil {
		return err
	}
	if c.Bool(datasetFlagMasks) {
		if err := d.ExtractMasks(c.Context); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.App.Writer, "extracted frames to %s\n", d.OutputDir)
	return nil
}
