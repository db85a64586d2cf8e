// Package scannet reads ScanNet .sens captures and exports their frames, poses and
// calibration as image, text and packaged archive files.
package scannet

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/scenekit/rimage"
)

// SupportedVersion is the only .sens version that can be decoded.
const SupportedVersion = 4

// maxPrealloc caps how many frame records are allocated up front from the declared count.
const maxPrealloc = 1 << 14

var (
	// ErrFormat is returned for malformed, truncated or mismatched sensor streams.
	ErrFormat = errors.New("malformed sensor stream")
	// ErrUnsupportedCodec is returned for a known compression id that has no decoder.
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// NewFormatError is used when the stream at path does not follow the .sens layout.
func NewFormatError(path, format string, args ...interface{}) error {
	return errors.Wrapf(ErrFormat, "%s: %s", path, fmt.Sprintf(format, args...))
}

// NewUnsupportedCodecError is used when a frame is compressed with a codec we cannot decode.
func NewUnsupportedCodecError(path, kind string, codec fmt.Stringer) error {
	return errors.Wrapf(ErrUnsupportedCodec, "%s: %s codec %q", path, kind, codec)
}

// ColorCompression identifies how color frames are stored.
type ColorCompression int32

// The color compression ids of the .sens format.
const (
	ColorUnknown ColorCompression = -1
	ColorRaw     ColorCompression = 0
	ColorPNG     ColorCompression = 1
	ColorJPEG    ColorCompression = 2
)

func (c ColorCompression) String() string {
	switch c {
	case ColorUnknown:
		return "unknown"
	case ColorRaw:
		return "raw"
	case ColorPNG:
		return "png"
	case ColorJPEG:
		return "jpeg"
	default:
		return fmt.Sprintf("ColorCompression(%d)", int32(c))
	}
}

func (c ColorCompression) known() bool {
	return c >= ColorUnknown && c <= ColorJPEG
}

// DepthCompression identifies how depth frames are stored.
type DepthCompression int32

// The depth compression ids of the .sens format.
const (
	DepthUnknown    DepthCompression = -1
	DepthRawUshort  DepthCompression = 0
	DepthZlibUshort DepthCompression = 1
	DepthOcciUshort DepthCompression = 2
)

func (d DepthCompression) String() string {
	switch d {
	case DepthUnknown:
		return "unknown"
	case DepthRawUshort:
		return "raw_ushort"
	case DepthZlibUshort:
		return "zlib_ushort"
	case DepthOcciUshort:
		return "occi_ushort"
	default:
		return fmt.Sprintf("DepthCompression(%d)", int32(d))
	}
}

func (d DepthCompression) known() bool {
	return d >= DepthUnknown && d <= DepthOcciUshort
}

// Matrix4 is a row-major 4x4 float matrix as stored in the stream.
type Matrix4 [16]float32

// Dense returns the matrix as a gonum matrix.
func (m Matrix4) Dense() *mat.Dense {
	data := make([]float64, 16)
	for i, v := range m {
		data[i] = float64(v)
	}
	return mat.NewDense(4, 4, data)
}

// Frame is one timestamped capture: a camera to world pose plus compressed color and depth.
type Frame struct {
	CameraToWorld  Matrix4
	TimestampColor uint64
	TimestampDepth uint64
	ColorData      []byte
	DepthData      []byte
}

// SensorData is a fully parsed .sens capture. Frames stay compressed until asked for.
type SensorData struct {
	Path             string
	SceneID          string
	Version          uint32
	SensorName       string
	IntrinsicColor   Matrix4
	ExtrinsicColor   Matrix4
	IntrinsicDepth   Matrix4
	ExtrinsicDepth   Matrix4
	ColorCompression ColorCompression
	DepthCompression DepthCompression
	ColorWidth       uint32
	ColorHeight      uint32
	DepthWidth       uint32
	DepthHeight      uint32
	DepthShift       float32
	Frames           []Frame

	logger golog.Logger
}

// SceneIDFromPath returns the base name of path up to its first dot.
func SceneIDFromPath(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// Open parses the .sens file at path.
func Open(path string, logger golog.Logger) (*SensorData, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return Decode(bufio.NewReader(f), path, logger)
}

// Decode parses a whole .sens stream. path names the source in errors and gives the
// scene id. Nothing is returned unless every frame record is read intact.
func Decode(r io.Reader, path string, logger golog.Logger) (*SensorData, error) {
	sr := &streamReader{r: r, path: path}
	sd := &SensorData{Path: path, SceneID: SceneIDFromPath(path), logger: logger}

	sd.Version = sr.uint32("version")
	if sr.err != nil {
		return nil, sr.err
	}
	if sd.Version != SupportedVersion {
		return nil, NewFormatError(path, "unsupported version %d, expected %d", sd.Version, SupportedVersion)
	}
	nameLen := sr.uint64("sensor name length")
	sd.SensorName = string(sr.bytes("sensor name", nameLen, -1))
	sd.IntrinsicColor = sr.matrix("color intrinsics")
	sd.ExtrinsicColor = sr.matrix("color extrinsics")
	sd.IntrinsicDepth = sr.matrix("depth intrinsics")
	sd.ExtrinsicDepth = sr.matrix("depth extrinsics")
	sd.ColorCompression = ColorCompression(sr.int32("color compression"))
	sd.DepthCompression = DepthCompression(sr.int32("depth compression"))
	sd.ColorWidth = sr.uint32("color width")
	sd.ColorHeight = sr.uint32("color height")
	sd.DepthWidth = sr.uint32("depth width")
	sd.DepthHeight = sr.uint32("depth height")
	sd.DepthShift = sr.float32("depth shift")
	numFrames := sr.uint64("frame count")
	if sr.err != nil {
		return nil, sr.err
	}
	if !sd.ColorCompression.known() {
		return nil, NewFormatError(path, "unknown color compression id %d", int32(sd.ColorCompression))
	}
	if !sd.DepthCompression.known() {
		return nil, NewFormatError(path, "unknown depth compression id %d", int32(sd.DepthCompression))
	}

	prealloc := numFrames
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	sd.Frames = make([]Frame, 0, prealloc)
	for i := uint64(0); i < numFrames; i++ {
		idx := int64(i)
		var frame Frame
		frame.CameraToWorld = sr.matrix(fmt.Sprintf("frame %d pose", i))
		frame.TimestampColor = sr.uint64(fmt.Sprintf("frame %d color timestamp", i))
		frame.TimestampDepth = sr.uint64(fmt.Sprintf("frame %d depth timestamp", i))
		colorSize := sr.uint64(fmt.Sprintf("frame %d color size", i))
		depthSize := sr.uint64(fmt.Sprintf("frame %d depth size", i))
		frame.ColorData = sr.bytes("color data", colorSize, idx)
		frame.DepthData = sr.bytes("depth data", depthSize, idx)
		if sr.err != nil {
			return nil, sr.err
		}
		sd.Frames = append(sd.Frames, frame)
	}
	if logger != nil {
		logger.Debugw("decoded sensor stream",
			"path", path,
			"sensor", sd.SensorName,
			"frames", len(sd.Frames),
			"color", sd.ColorCompression.String(),
			"depth", sd.DepthCompression.String())
	}
	return sd, nil
}

// NumFrames returns the number of frame records.
func (sd *SensorData) NumFrames() int {
	return len(sd.Frames)
}

func (sd *SensorData) frame(i int) (*Frame, error) {
	if i < 0 || i >= len(sd.Frames) {
		return nil, errors.Errorf("frame index %d out of range [0, %d)", i, len(sd.Frames))
	}
	return &sd.Frames[i], nil
}

// DecompressDepth returns frame i's depth in the stream's raw units.
func (sd *SensorData) DecompressDepth(i int) (*rimage.DepthMap, error) {
	frame, err := sd.frame(i)
	if err != nil {
		return nil, err
	}
	if sd.DepthCompression != DepthZlibUshort {
		return nil, NewUnsupportedCodecError(sd.Path, "depth", sd.DepthCompression)
	}
	zr, err := zlib.NewReader(bytes.NewReader(frame.DepthData))
	if err != nil {
		return nil, NewFormatError(sd.Path, "frame %d: bad depth stream: %v", i, err)
	}
	defer utils.UncheckedErrorFunc(zr.Close)
	want := int64(sd.DepthWidth) * int64(sd.DepthHeight) * 2
	raw, err := io.ReadAll(io.LimitReader(zr, want+1))
	if err != nil {
		return nil, NewFormatError(sd.Path, "frame %d: bad depth stream: %v", i, err)
	}
	if int64(len(raw)) != want {
		return nil, NewFormatError(sd.Path, "frame %d: depth decompressed to %d bytes, expected %d", i, len(raw), want)
	}
	return rimage.NewDepthMapFromBytes(int(sd.DepthWidth), int(sd.DepthHeight), raw)
}

// DecompressColor returns frame i's color image.
func (sd *SensorData) DecompressColor(i int) (image.Image, error) {
	frame, err := sd.frame(i)
	if err != nil {
		return nil, err
	}
	if sd.ColorCompression != ColorJPEG {
		return nil, NewUnsupportedCodecError(sd.Path, "color", sd.ColorCompression)
	}
	img, err := imaging.Decode(bytes.NewReader(frame.ColorData))
	if err != nil {
		return nil, NewFormatError(sd.Path, "frame %d: bad jpeg: %v", i, err)
	}
	return img, nil
}

// streamReader reads little-endian fields and remembers the first failure.
type streamReader struct {
	r      io.Reader
	path   string
	offset int64
	err    error
	buf    [8]byte
}

func (sr *streamReader) fixed(field string, n int) []byte {
	if sr.err != nil {
		return nil
	}
	read, err := io.ReadFull(sr.r, sr.buf[:n])
	sr.offset += int64(read)
	if err != nil {
		sr.err = NewFormatError(sr.path, "truncated reading %s at offset %d: got %d of %d bytes", field, sr.offset-int64(read), read, n)
		return nil
	}
	return sr.buf[:n]
}

func (sr *streamReader) uint32(field string) uint32 {
	b := sr.fixed(field, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (sr *streamReader) int32(field string) int32 {
	return int32(sr.uint32(field))
}

func (sr *streamReader) float32(field string) float32 {
	return math.Float32frombits(sr.uint32(field))
}

func (sr *streamReader) uint64(field string) uint64 {
	b := sr.fixed(field, 8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (sr *streamReader) matrix(field string) Matrix4 {
	var m Matrix4
	for i := range m {
		m[i] = sr.float32(field)
	}
	return m
}

// bytes reads a blob of declared length. The buffer grows with what is actually there
// so a corrupt length cannot force a huge allocation. frame is -1 outside frame records.
func (sr *streamReader) bytes(field string, n uint64, frame int64) []byte {
	if sr.err != nil {
		return nil
	}
	if n > math.MaxInt64 {
		sr.err = NewFormatError(sr.path, "%s declares %d bytes", field, n)
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(sr.r, int64(n)))
	sr.offset += int64(len(data))
	switch {
	case err != nil:
		sr.err = NewFormatError(sr.path, "reading %s: %v", field, err)
	case uint64(len(data)) != n && frame >= 0:
		sr.err = NewFormatError(sr.path, "frame %d: %s declares %d bytes but only %d are available", frame, field, n, len(data))
	case uint64(len(data)) != n:
		sr.err = NewFormatError(sr.path, "%s declares %d bytes but only %d are available", field, n, len(data))
	default:
		return data
	}
	return nil
}
