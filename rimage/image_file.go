package rimage

import (
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ReadImageFromFile decodes the image at the given path. 16-bit gray PNGs stay 16-bit.
func ReadImageFromFile(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading image %q", path)
	}
	return img, nil
}

// ReadDepthMapFromFile reads a 16-bit PNG holding depth in millimeters.
func ReadDepthMapFromFile(path string) (*DepthMap, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	dm, err := ConvertImageToDepthMap(img)
	if err != nil {
		return nil, errors.Wrapf(err, "image %q is not a 16-bit depth image", path)
	}
	return dm, nil
}

// WriteImageToFile writes the image to the given path. The encoding is chosen from
// the extension; a DepthMap is written as a 16-bit gray image.
func WriteImageToFile(path string, img image.Image) error {
	if dm, ok := img.(*DepthMap); ok {
		img = dm.ToGray16()
	}
	var opts []imaging.EncodeOption
	switch filepath.Ext(path) {
	case ".jpg", ".jpeg":
		opts = append(opts, imaging.JPEGQuality(95))
	case ".png":
	default:
		return errors.Errorf("rimage.WriteImageToFile unsupported format: %q", filepath.Ext(path))
	}
	if err := imaging.Save(img, path, opts...); err != nil {
		return errors.Wrapf(err, "error writing image %q", path)
	}
	return nil
}

// ResizeImage returns a nearest neighbor resized copy of a color image.
func ResizeImage(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot resize image to %dx%d", width, height)
	}
	return imaging.Resize(img, width, height, imaging.NearestNeighbor), nil
}

// ResizeImageBilinear returns a bilinear resized copy of a color image, for inputs where
// smooth resampling matters more than keeping exact pixel values.
func ResizeImageBilinear(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("cannot resize image to %dx%d", width, height)
	}
	return resize.Resize(uint(width), uint(height), img, resize.Bilinear), nil
}

// ToNRGBA returns the image as 8-bit NRGBA, copying only when needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return out
}

// EnsureDir creates the directory and any parents if they do not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrapf(err, "issue creating directory at %v", dir)
	}
	return nil
}
