package scannetpp

import (
	"context"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"go.viam.com/scenekit/rimage"
	"go.viam.com/scenekit/utils"
)

// Extracted frames are named frame_000000.<ext>, starting at zero.
const framePattern = "frame_%06d"

// IPhoneDataset is one ScanNet++ iPhone capture: an RGB video, a depth stream and a
// video of per-pixel masks, plus the folders their frames are extracted to.
type IPhoneDataset struct {
	DataDir   string
	OutputDir string
	// DepthOptions describe the frames inside depth.bin.
	DepthOptions DepthStreamOptions

	logger golog.Logger
}

// NewIPhoneDataset returns the capture stored in dataDir. An empty outputDir extracts
// next to the capture.
func NewIPhoneDataset(dataDir, outputDir string, logger golog.Logger) (*IPhoneDataset, error) {
	if !utils.DirExists(dataDir) {
		return nil, errors.Errorf("capture directory %s not found", dataDir)
	}
	if outputDir == "" {
		outputDir = dataDir
	}
	return &IPhoneDataset{
		DataDir:      dataDir,
		OutputDir:    outputDir,
		DepthOptions: DefaultDepthStreamOptions(),
		logger:       logger,
	}, nil
}

// RGBVideoPath is the path of the color video.
func (d *IPhoneDataset) RGBVideoPath() string {
	return filepath.Join(d.DataDir, "rgb.mp4")
}

// DepthPath is the path of the depth stream.
func (d *IPhoneDataset) DepthPath() string {
	return filepath.Join(d.DataDir, "depth.bin")
}

// MaskVideoPath is the path of the mask video.
func (d *IPhoneDataset) MaskVideoPath() string {
	return filepath.Join(d.DataDir, "rgb_mask.mkv")
}

// RGBFolder is where color frames are extracted.
func (d *IPhoneDataset) RGBFolder() string {
	return filepath.Join(d.OutputDir, "rgb")
}

// DepthFolder is where depth frames are extracted.
func (d *IPhoneDataset) DepthFolder() string {
	return filepath.Join(d.OutputDir, "depth")
}

// MaskFolder is where mask frames are extracted.
func (d *IPhoneDataset) MaskFolder() string {
	return filepath.Join(d.OutputDir, "mask")
}

// rgbStream builds the ffmpeg invocation that splits the color video into JPEGs.
func (d *IPhoneDataset) rgbStream() *ffmpeg.Stream {
	return ffmpeg.Input(d.RGBVideoPath()).
		Output(filepath.Join(d.RGBFolder(), framePattern+".jpg"), ffmpeg.KwArgs{
			"start_number": 0,
			"q:v":          1,
		}).
		OverWriteOutput()
}

// maskStream builds the ffmpeg invocation that splits the mask video into gray PNGs.
func (d *IPhoneDataset) maskStream() *ffmpeg.Stream {
	return ffmpeg.Input(d.MaskVideoPath()).
		Output(filepath.Join(d.MaskFolder(), framePattern+".png"), ffmpeg.KwArgs{
			"start_number": 0,
			"pix_fmt":      "gray",
		}).
		OverWriteOutput()
}

// ExtractRGB splits the color video into RGBFolder with ffmpeg.
func (d *IPhoneDataset) ExtractRGB(ctx context.Context) error {
	return d.runVideo(ctx, d.RGBVideoPath(), d.RGBFolder(), d.rgbStream())
}

// ExtractMasks splits the mask video into MaskFolder with ffmpeg.
func (d *IPhoneDataset) ExtractMasks(ctx context.Context) error {
	return d.runVideo(ctx, d.MaskVideoPath(), d.MaskFolder(), d.maskStream())
}

func (d *IPhoneDataset) runVideo(ctx context.Context, video, dir string, stream *ffmpeg.Stream) error {
	if !utils.FileExists(video) {
		return errors.Errorf("file %s not found", video)
	}
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return err
	}
	if err := rimage.EnsureDir(dir); err != nil {
		return err
	}
	d.logger.Infof("extracting frames of %s to %s", video, dir)
	stream.Context = ctx
	if err := stream.Run(); err != nil {
		return errors.Wrapf(err, "ffmpeg failed on %s", video)
	}
	return nil
}

// ExtractDepth decodes depth.bin and writes every sampled frame to DepthFolder as a
// 16-bit PNG in millimeters.
func (d *IPhoneDataset) ExtractDepth() (*DepthStreamInfo, error) {
	dir := d.DepthFolder()
	if err := rimage.EnsureDir(dir); err != nil {
		return nil, err
	}
	d.logger.Infof("extracting depth frames of %s to %s", d.DepthPath(), dir)
	info, err := DecodeDepthFile(d.DepthPath(), d.DepthOptions, d.logger, func(frameID int, dm *rimage.DepthMap) error {
		return rimage.WriteImageToFile(d.depthFramePath(frameID), dm)
	})
	if err != nil {
		return nil, err
	}
	d.logger.Infof("wrote %d of %d depth frames (%s)", info.Emitted, info.Frames, info.Scheme)
	return info, nil
}

func (d *IPhoneDataset) depthFramePath(frameID int) string {
	return filepath.Join(d.DepthFolder(), frameName(frameID, ".png"))
}

// ImagePaths lists the extracted color frames in order.
func (d *IPhoneDataset) ImagePaths() ([]string, error) {
	return utils.ListFiles(d.RGBFolder(), ".jpg")
}

// MaskPaths lists the extracted mask frames in order.
func (d *IPhoneDataset) MaskPaths() ([]string, error) {
	return utils.ListFiles(d.MaskFolder(), ".png")
}

// DepthPaths lists the extracted depth frames in order.
func (d *IPhoneDataset) DepthPaths() ([]string, error) {
	return utils.ListFiles(d.DepthFolder(), ".png")
}

// Image reads the i-th extracted color frame.
func (d *IPhoneDataset) Image(i int) (image.Image, error) {
	path, err := nth(d.ImagePaths, i)
	if err != nil {
		return nil, err
	}
	return rimage.ReadImageFromFile(path)
}

// Mask reads the i-th extracted mask frame.
func (d *IPhoneDataset) Mask(i int) (image.Image, error) {
	path, err := nth(d.MaskPaths, i)
	if err != nil {
		return nil, err
	}
	return rimage.ReadImageFromFile(path)
}

// Depth reads the i-th extracted depth frame in meters.
func (d *IPhoneDataset) Depth(i int) (*rimage.FloatDepth, error) {
	path, err := nth(d.DepthPaths, i)
	if err != nil {
		return nil, err
	}
	dm, err := rimage.ReadDepthMapFromFile(path)
	if err != nil {
		return nil, err
	}
	return dm.Meters(), nil
}

func frameName(frameID int, ext string) string {
	return fmt.Sprintf(framePattern, frameID) + ext
}

func nth(list func() ([]string, error), i int) (string, error) {
	paths, err := list()
	if err != nil {
		return "", err
	}
	if i < 0 || i >= len(paths) {
		return "", errors.Errorf("frame index %d out of range, have %d frames", i, len(paths))
	}
	return paths[i], nil
}
