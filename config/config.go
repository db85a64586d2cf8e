// Package config defines export jobs and reads them from JSON files.
package config

import (
	"bytes"
	"encoding/json"
	"image"
	"io"

	"github.com/a8m/envsubst"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Supported datasets.
const (
	DatasetScanNet   = "scannet"
	DatasetScanNetPP = "scannetpp"
)

// Defaults applied by SetDefaults.
const (
	DefaultFrameSkip   = 1
	DefaultPackageSkip = 10
	DefaultWorkers     = 1
	DefaultDepthHeight = 192
	DefaultDepthWidth  = 256
	DefaultSampleRate  = 1
	// DefaultMaxDepthFrames bounds how much a single depth stream may inflate to.
	DefaultMaxDepthFrames = 20000
)

// NewError returns an error specific to a failure in an export config.
func NewError(configError string) error {
	return errors.Errorf("export configuration error: %s", configError)
}

// WrapError wraps an error to show it came from an export config.
func WrapError(configError error) error {
	return NewError(configError.Error())
}

// ExportConfig describes a batch export of one dataset.
type ExportConfig struct {
	Dataset   string   `json:"dataset"`
	DataDir   string   `json:"data_dir"`
	OutputDir string   `json:"output_dir"`
	Scenes    []string `json:"scenes"`
	FrameSkip int      `json:"frame_skip"`
	// ImageSize is [height, width].
	ImageSize   []int `json:"image_size"`
	Package     bool  `json:"package"`
	PackageSkip int   `json:"package_skip"`
	Workers     int   `json:"workers"`
	DepthHeight int   `json:"depth_height"`
	DepthWidth  int   `json:"depth_width"`
	SampleRate  int   `json:"sample_rate"`
	// MaxDepthFrames is the most frames a depth stream may hold.
	MaxDepthFrames int  `json:"max_depth_frames"`
	ExtractRGB     bool `json:"extract_rgb"`
	ExtractMasks   bool `json:"extract_masks"`
}

// Read reads an export config from a JSON file, substituting environment variables
// and applying defaults before validating it.
func Read(path string, logger golog.Logger) (*ExportConfig, error) {
	buf, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromReader(path, bytes.NewReader(buf), logger)
}

// FromReader reads an export config from r. path names its origin in errors.
func FromReader(path string, r io.Reader, logger golog.Logger) (*ExportConfig, error) {
	var cfg ExportConfig
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode export config from %s", path)
	}
	cfg.SetDefaults(logger)
	if err := cfg.Validate(path); err != nil {
		return nil, WrapError(err)
	}
	return &cfg, nil
}

// Validate checks that the config describes a runnable export.
func (cfg *ExportConfig) Validate(path string) error {
	if cfg.Dataset == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "dataset")
	}
	if cfg.Dataset != DatasetScanNet && cfg.Dataset != DatasetScanNetPP {
		return errors.Errorf("unknown dataset %q, expected %q or %q", cfg.Dataset, DatasetScanNet, DatasetScanNetPP)
	}
	if cfg.DataDir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "data_dir")
	}
	if cfg.FrameSkip < 0 {
		return errors.New("cannot specify frame_skip less than zero")
	}
	if cfg.PackageSkip < 0 {
		return errors.New("cannot specify package_skip less than zero")
	}
	if cfg.Workers < 0 {
		return errors.New("cannot specify workers less than zero")
	}
	if cfg.DepthHeight < 0 || cfg.DepthWidth < 0 {
		return errors.New("cannot specify a negative depth frame size")
	}
	if cfg.SampleRate < 0 {
		return errors.New("cannot specify sample_rate less than zero")
	}
	if cfg.MaxDepthFrames < 0 {
		return errors.New("cannot specify max_depth_frames less than zero")
	}
	if cfg.ImageSize != nil {
		if len(cfg.ImageSize) != 2 {
			return errors.Errorf("image_size must be [height, width], got %v", cfg.ImageSize)
		}
		if cfg.ImageSize[0] <= 0 || cfg.ImageSize[1] <= 0 {
			return errors.Errorf("image_size must be positive, got %v", cfg.ImageSize)
		}
	}
	return nil
}

// SetDefaults fills in every unset numeric field.
func (cfg *ExportConfig) SetDefaults(logger golog.Logger) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.DataDir
	}
	if cfg.FrameSkip == 0 {
		cfg.FrameSkip = DefaultFrameSkip
	}
	if cfg.PackageSkip == 0 {
		cfg.PackageSkip = DefaultPackageSkip
	}
	if cfg.Workers == 0 {
		logger.Debugf("no workers given, setting to default value of %d", DefaultWorkers)
		cfg.Workers = DefaultWorkers
	}
	if cfg.DepthHeight == 0 {
		cfg.DepthHeight = DefaultDepthHeight
	}
	if cfg.DepthWidth == 0 {
		cfg.DepthWidth = DefaultDepthWidth
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.MaxDepthFrames == 0 {
		cfg.MaxDepthFrames = DefaultMaxDepthFrames
	}
}

// ImageSizePoint returns the requested export size as width and height, or nil.
func (cfg *ExportConfig) ImageSizePoint() *image.Point {
	if len(cfg.ImageSize) != 2 {
		return nil
	}
	return &image.Point{X: cfg.ImageSize[1], Y: cfg.ImageSize[0]}
}
