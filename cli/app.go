// Package cli contains the scenekit command line tool.
package cli

import (
	"io"

	"github.com/edaniels/golog"
	"github.com/urfave/cli/v2"

	"go.viam.com/scenekit/config"
	"go.viam.com/scenekit/datasets/scannetpp"
	"go.viam.com/scenekit/utils"
)

// Flags.
const (
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"
	generalFlagConfig  = "config"

	datasetFlagDataDir     = "data-dir"
	datasetFlagOutputDir   = "output-dir"
	datasetFlagScenes      = "scene"
	datasetFlagWorkers     = "workers"
	datasetFlagFrameSkip   = "frame-skip"
	datasetFlagImageHeight = "image-height"
	datasetFlagImageWidth  = "image-width"
	datasetFlagPackage     = "package"
	datasetFlagPackageSkip = "package-skip"
	datasetFlagHeight      = "height"
	datasetFlagWidth       = "width"
	datasetFlagSampleRate  = "sample-rate"
	datasetFlagMaxFrames   = "max-frames"
	datasetFlagMasks       = "masks"

	unprojectFlagDepth      = "depth"
	unprojectFlagColor      = "color"
	unprojectFlagIntrinsics = "intrinsics"
	unprojectFlagPose       = "pose"
	unprojectFlagOut        = "out"
	unprojectFlagEstimate   = "estimate"
	unprojectFlagModelPath  = "model-path"
)

const loggerKey = "logger"

func dataDirFlag() cli.Flag {
	return &cli.PathFlag{
		Name:     datasetFlagDataDir,
		Required: true,
		Usage:    "dataset or capture `DIR` to read from",
	}
}

func outputDirFlag() cli.Flag {
	return &cli.PathFlag{
		Name:  datasetFlagOutputDir,
		Usage: "`DIR` to write to, defaults to the data directory",
	}
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "scenekit",
		Usage:           "decode and export 3D scene datasets",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    generalFlagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.PathFlag{
				Name:  generalFlagLogFile,
				Usage: "also write logs to `FILE`",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:            "scannet",
				Usage:           "work with ScanNet .sens captures",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:  "export",
						Usage: "export color, depth, poses and intrinsics of every scene",
						Flags: []cli.Flag{
							dataDirFlag(),
							outputDirFlag(),
							&cli.StringSliceFlag{
								Name:  datasetFlagScenes,
								Usage: "scenes to export, defaults to all",
							},
							&cli.IntFlag{
								Name:  datasetFlagFrameSkip,
								Value: config.DefaultFrameSkip,
								Usage: "export every Nth frame",
							},
							&cli.IntFlag{
								Name:  datasetFlagImageHeight,
								Usage: "resize exported images to this height",
							},
							&cli.IntFlag{
								Name:  datasetFlagImageWidth,
								Usage: "resize exported images to this width",
							},
							&cli.BoolFlag{
								Name:  datasetFlagPackage,
								Usage: "also write a packaged archive per scene",
							},
							&cli.IntFlag{
								Name:  datasetFlagPackageSkip,
								Value: config.DefaultPackageSkip,
								Usage: "frame stride of the packaged archive",
							},
							&cli.IntFlag{
								Name:  datasetFlagWorkers,
								Value: config.DefaultWorkers,
								Usage: "scenes exported in parallel",
							},
						},
						Action: ScanNetExportAction,
					},
				},
			},
			{
				Name:            "scannetpp",
				Usage:           "work with ScanNet++ iPhone captures",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:  "depth",
						Usage: "decode depth.bin into 16-bit PNG frames",
						Flags: []cli.Flag{
							dataDirFlag(),
							outputDirFlag(),
							&cli.IntFlag{
								Name:  datasetFlagHeight,
								Value: scannetpp.DefaultDepthHeight,
								Usage: "depth frame height",
							},
							&cli.IntFlag{
								Name:  datasetFlagWidth,
								Value: scannetpp.DefaultDepthWidth,
								Usage: "depth frame width",
							},
							&cli.IntFlag{
								Name:  datasetFlagSampleRate,
								Value: config.DefaultSampleRate,
								Usage: "keep every Nth frame",
							},
							&cli.IntFlag{
								Name:  datasetFlagMaxFrames,
								Value: scannetpp.DefaultMaxFrames,
								Usage: "refuse streams holding more frames than this",
							},
						},
						Action: ScanNetPPDepthAction,
					},
					{
						Name:  "video",
						Usage: "split rgb.mp4 (and rgb_mask.mkv) into frames with ffmpeg",
						Flags: []cli.Flag{
							dataDirFlag(),
							outputDirFlag(),
							&cli.BoolFlag{
								Name:  datasetFlagMasks,
								Usage: "also extract the mask video",
							},
						},
						Action: ScanNetPPVideoAction,
					},
				},
			},
			{
				Name:      "unproject",
				Usage:     "turn a depth image into a point cloud",
				UsageText: "scenekit unproject --out FILE (--depth FILE | --color FILE --estimate METHOD) [other options]",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:  unprojectFlagDepth,
						Usage: "16-bit PNG `FILE` holding depth in millimeters",
					},
					&cli.PathFlag{
						Name:  unprojectFlagColor,
						Usage: "color image `FILE`",
					},
					&cli.PathFlag{
						Name:  unprojectFlagIntrinsics,
						Usage: "JSON `FILE` with the pinhole intrinsics, defaults to PrimeSense",
					},
					&cli.PathFlag{
						Name:  unprojectFlagPose,
						Usage: "text `FILE` with the 4x4 camera to world pose",
					},
					&cli.PathFlag{
						Name:     unprojectFlagOut,
						Required: true,
						Usage:    "output `FILE`, .ply or .pcd",
					},
					&cli.StringFlag{
						Name:  unprojectFlagEstimate,
						Usage: "estimate depth from the color image with `METHOD` instead of reading it",
					},
					&cli.PathFlag{
						Name:  unprojectFlagModelPath,
						Usage: "weights of the estimation method",
					},
				},
				Action: UnprojectAction,
			},
			{
				Name:  "export",
				Usage: "run the export described by a config file",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     generalFlagConfig,
						Aliases:  []string{"c"},
						Required: true,
						Usage:    "load configuration from `FILE`",
					},
				},
				Action: ConfigExportAction,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	debug := c.Bool(generalFlagDebug)
	var logger golog.Logger
	switch {
	case c.Path(generalFlagLogFile) != "":
		fileLogger, err := utils.NewFilePathLogger(c.Path(generalFlagLogFile), c.App.Name, debug)
		if err != nil {
			return err
		}
		logger = fileLogger
	case debug:
		logger = golog.NewDebugLogger(c.App.Name)
	default:
		logger = golog.NewDevelopmentLogger(c.App.Name)
	}
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	c.App.Metadata[loggerKey] = logger
	return nil
}

func loggerFrom(c *cli.Context) golog.Logger {
	if logger, ok := c.App.Metadata[loggerKey].(golog.Logger); ok {
		return logger
	}
	return golog.NewDevelopmentLogger(c.App.Name)
}
