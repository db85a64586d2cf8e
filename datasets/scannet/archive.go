package scannet

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/scenekit/rimage"
)

// DefaultPackageSkip is the frame stride used for packaged archives unless told otherwise.
const DefaultPackageSkip = 10

// Entry names of a packaged archive.
const (
	attributesEntry     = "attributes"
	frameIndicesEntry   = "frame_indices"
	ColorIntrinsicEntry = "color_intrinsic"
	ColorExtrinsicEntry = "color_extrinsic"
	DepthIntrinsicEntry = "depth_intrinsic"
	DepthExtrinsicEntry = "depth_extrinsic"
)

// Array element types.
const (
	DTypeUint8   = "uint8"
	DTypeUint16  = "uint16"
	DTypeInt32   = "int32"
	DTypeFloat32 = "float32"
)

// Attributes are the top level metadata of a packaged archive.
type Attributes struct {
	SceneID     string `bson:"scene_id"`
	TotalFrames int    `bson:"total_frames"`
	NumFrames   int    `bson:"num_frames"`
	ColorWidth  int    `bson:"color_width"`
	ColorHeight int    `bson:"color_height"`
	DepthWidth  int    `bson:"depth_width"`
	DepthHeight int    `bson:"depth_height"`
	SkipStep    int    `bson:"skip_step"`
}

// Array is a dense n-dimensional array stored little-endian, row-major.
type Array struct {
	DType string `bson:"dtype"`
	Shape []int  `bson:"shape"`
	Data  []byte `bson:"data"`
}

func dtypeSize(dtype string) int {
	switch dtype {
	case DTypeUint8:
		return 1
	case DTypeUint16:
		return 2
	case DTypeInt32, DTypeFloat32:
		return 4
	default:
		return 0
	}
}

// Validate checks that the data length agrees with the type and shape.
func (a *Array) Validate() error {
	size := dtypeSize(a.DType)
	if size == 0 {
		return errors.Errorf("unknown array dtype %q", a.DType)
	}
	n := 1
	for _, dim := range a.Shape {
		if dim < 0 {
			return errors.Errorf("negative array dimension in shape %v", a.Shape)
		}
		n *= dim
	}
	if len(a.Data) != n*size {
		return errors.Errorf("array of shape %v and dtype %s needs %d bytes, has %d", a.Shape, a.DType, n*size, len(a.Data))
	}
	return nil
}

func (a *Array) expect(dtype string, dims int) error {
	if a.DType != dtype {
		return errors.Errorf("expected %s array but got %s", dtype, a.DType)
	}
	if len(a.Shape) != dims {
		return errors.Errorf("expected %d dimensional array but got shape %v", dims, a.Shape)
	}
	return a.Validate()
}

// NewMatrixArray stores m as a float32 array.
func NewMatrixArray(m mat.Matrix) Array {
	rows, cols := m.Dims()
	data := make([]byte, 0, rows*cols*4)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(float32(m.At(r, c))))
		}
	}
	return Array{DType: DTypeFloat32, Shape: []int{rows, cols}, Data: data}
}

// Matrix reads a 2 dimensional float32 array.
func (a *Array) Matrix() (*mat.Dense, error) {
	if err := a.expect(DTypeFloat32, 2); err != nil {
		return nil, err
	}
	values := make([]float64, len(a.Data)/4)
	for i := range values {
		values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:])))
	}
	return mat.NewDense(a.Shape[0], a.Shape[1], values), nil
}

// NewIndexArray stores indices as an int32 array.
func NewIndexArray(indices []int) Array {
	data := make([]byte, 0, len(indices)*4)
	for _, i := range indices {
		data = binary.LittleEndian.AppendUint32(data, uint32(int32(i)))
	}
	return Array{DType: DTypeInt32, Shape: []int{len(indices)}, Data: data}
}

// Ints reads a 1 dimensional int32 array.
func (a *Array) Ints() ([]int, error) {
	if err := a.expect(DTypeInt32, 1); err != nil {
		return nil, err
	}
	out := make([]int, a.Shape[0])
	for i := range out {
		out[i] = int(int32(binary.LittleEndian.Uint32(a.Data[4*i:])))
	}
	return out, nil
}

// NewDepthArray stores a depth map as a height x width uint16 array.
func NewDepthArray(dm *rimage.DepthMap) Array {
	return Array{DType: DTypeUint16, Shape: []int{dm.Height(), dm.Width()}, Data: dm.Bytes()}
}

// DepthMap reads a 2 dimensional uint16 array.
func (a *Array) DepthMap() (*rimage.DepthMap, error) {
	if err := a.expect(DTypeUint16, 2); err != nil {
		return nil, err
	}
	return rimage.NewDepthMapFromBytes(a.Shape[1], a.Shape[0], a.Data)
}

// NewColorArray stores an image as a height x width x 3 uint8 array.
func NewColorArray(img image.Image) Array {
	n := rimage.ToNRGBA(img)
	w, h := n.Rect.Dx(), n.Rect.Dy()
	data := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := n.Pix[y*n.Stride : y*n.Stride+w*4]
		for x := 0; x < w; x++ {
			data = append(data, row[4*x], row[4*x+1], row[4*x+2])
		}
	}
	return Array{DType: DTypeUint8, Shape: []int{h, w, 3}, Data: data}
}

// Image reads a height x width x 3 uint8 array.
func (a *Array) Image() (*image.NRGBA, error) {
	if err := a.expect(DTypeUint8, 3); err != nil {
		return nil, err
	}
	if a.Shape[2] != 3 {
		return nil, errors.Errorf("expected 3 color channels but got shape %v", a.Shape)
	}
	h, w := a.Shape[0], a.Shape[1]
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		copy(img.Pix[4*i:4*i+3], a.Data[3*i:3*i+3])
		img.Pix[4*i+3] = 255
	}
	return img, nil
}

func frameEntry(i int, what string) string {
	return fmt.Sprintf("frame_%d/%s", i, what)
}

// ExportPackaged writes a zip archive at path holding the capture's metadata, calibration
// and every frameSkip-th frame's color, depth and pose. Each entry is a BSON document.
// Nothing is left at path when the export fails.
func (sd *SensorData) ExportPackaged(path string, frameSkip int) (err error) {
	if err := checkFrameSkip(frameSkip); err != nil {
		return err
	}
	indices := sampledFrames(len(sd.Frames), frameSkip)

	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating archive %q", path)
	}
	zw := zip.NewWriter(f)
	defer func() {
		err = multierr.Combine(err, zw.Close(), f.Close())
		if err != nil {
			// a partial archive is worse than none
			utils.UncheckedError(os.Remove(path))
		}
	}()

	attrs := Attributes{
		SceneID:     sd.SceneID,
		TotalFrames: len(sd.Frames),
		NumFrames:   len(indices),
		ColorWidth:  int(sd.ColorWidth),
		ColorHeight: int(sd.ColorHeight),
		DepthWidth:  int(sd.DepthWidth),
		DepthHeight: int(sd.DepthHeight),
		SkipStep:    frameSkip,
	}
	if err := writeEntry(zw, attributesEntry, attrs); err != nil {
		return err
	}
	for name, m := range map[string]Matrix4{
		ColorIntrinsicEntry: sd.IntrinsicColor,
		ColorExtrinsicEntry: sd.ExtrinsicColor,
		DepthIntrinsicEntry: sd.IntrinsicDepth,
		DepthExtrinsicEntry: sd.ExtrinsicDepth,
	} {
		if err := writeEntry(zw, name, NewMatrixArray(m.Dense())); err != nil {
			return err
		}
	}
	if err := writeEntry(zw, frameIndicesEntry, NewIndexArray(indices)); err != nil {
		return err
	}

	sd.logf("exporting %d frames to %s", len(indices), path)
	for _, i := range indices {
		color, err := sd.DecompressColor(i)
		if err != nil {
			return err
		}
		depth, err := sd.DecompressDepth(i)
		if err != nil {
			return err
		}
		if err := writeEntry(zw, frameEntry(i, "color"), NewColorArray(color)); err != nil {
			return err
		}
		if err := writeEntry(zw, frameEntry(i, "depth"), NewDepthArray(depth)); err != nil {
			return err
		}
		if err := writeEntry(zw, frameEntry(i, "pose"), NewMatrixArray(sd.Frames[i].CameraToWorld.Dense())); err != nil {
			return err
		}
		if sd.logger != nil {
			sd.logger.Debugw("packaged frame", "frame", i, "path", path)
		}
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, v interface{}) error {
	doc, err := bson.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "error encoding archive entry %q", name)
	}
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(doc)
	return err
}

// ArchiveFrame is one frame read back from a packaged archive.
type ArchiveFrame struct {
	Index int
	Color *image.NRGBA
	Depth *rimage.DepthMap
	Pose  *mat.Dense
}

// Archive gives random access to the frames of a packaged archive.
type Archive struct {
	path    string
	rc      *zip.ReadCloser
	entries map[string]*zip.File
	attrs   Attributes
}

// OpenArchive opens a packaged archive written by ExportPackaged.
func OpenArchive(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, NewFormatError(path, "not a packaged archive: %v", err)
	}
	a := &Archive{path: path, rc: rc, entries: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		a.entries[f.Name] = f
	}
	if err := a.readEntry(attributesEntry, &a.attrs); err != nil {
		return nil, multierr.Combine(err, rc.Close())
	}
	return a, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Attributes returns the archive's metadata.
func (a *Archive) Attributes() Attributes {
	return a.attrs
}

// FrameIndices returns the original frame numbers stored in the archive.
func (a *Archive) FrameIndices() ([]int, error) {
	var arr Array
	if err := a.readEntry(frameIndicesEntry, &arr); err != nil {
		return nil, err
	}
	indices, err := arr.Ints()
	if err != nil {
		return nil, NewFormatError(a.path, "%s: %v", frameIndicesEntry, err)
	}
	return indices, nil
}

// Matrix reads one of the calibration matrices, e.g. ColorIntrinsicEntry.
func (a *Archive) Matrix(name string) (*mat.Dense, error) {
	var arr Array
	if err := a.readEntry(name, &arr); err != nil {
		return nil, err
	}
	m, err := arr.Matrix()
	if err != nil {
		return nil, NewFormatError(a.path, "%s: %v", name, err)
	}
	return m, nil
}

// Frame reads frame i, where i is the frame number in the original capture.
func (a *Archive) Frame(i int) (*ArchiveFrame, error) {
	if _, ok := a.entries[frameEntry(i, "pose")]; !ok {
		return nil, errors.Errorf("frame %d is not in archive %q", i, a.path)
	}
	var color, depth, pose Array
	for _, e := range []struct {
		what string
		arr  *Array
	}{{"color", &color}, {"depth", &depth}, {"pose", &pose}} {
		if err := a.readEntry(frameEntry(i, e.what), e.arr); err != nil {
			return nil, err
		}
	}
	frame := &ArchiveFrame{Index: i}
	var err error
	if frame.Color, err = color.Image(); err != nil {
		return nil, NewFormatError(a.path, "frame %d color: %v", i, err)
	}
	if frame.Depth, err = depth.DepthMap(); err != nil {
		return nil, NewFormatError(a.path, "frame %d depth: %v", i, err)
	}
	if frame.Pose, err = pose.Matrix(); err != nil {
		return nil, NewFormatError(a.path, "frame %d pose: %v", i, err)
	}
	return frame, nil
}

func (a *Archive) readEntry(name string, v interface{}) error {
	f, ok := a.entries[name]
	if !ok {
		return NewFormatError(a.path, "missing entry %q", name)
	}
	r, err := f.Open()
	if err != nil {
		return NewFormatError(a.path, "entry %q: %v", name, err)
	}
	defer utils.UncheckedErrorFunc(r.Close)
	doc, err := io.ReadAll(r)
	if err != nil {
		return NewFormatError(a.path, "entry %q: %v", name, err)
	}
	if err := bson.Unmarshal(doc, v); err != nil {
		return NewFormatError(a.path, "entry %q: %v", name, err)
	}
	return nil
}
