package scannet

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zlib"
	"go.viam.com/test"

	"go.viam.com/scenekit/rimage"
)

const (
	testDepthW = 8
	testDepthH = 6
	testColorW = 16
	testColorH = 12
)

type fixtureFrame struct {
	pose  Matrix4
	depth *rimage.DepthMap
	color color.NRGBA
}

type fixture struct {
	version    uint32
	colorCodec int32
	depthCodec int32
	frames     []fixtureFrame
}

func newFixture(n int) *fixture {
	fx := &fixture{version: SupportedVersion, colorCodec: int32(ColorJPEG), depthCodec: int32(DepthZlibUshort)}
	for i := 0; i < n; i++ {
		dm := rimage.NewEmptyDepthMap(testDepthW, testDepthH)
		for y := 0; y < testDepthH; y++ {
			for x := 0; x < testDepthW; x++ {
				dm.Set(x, y, rimage.Depth(1000*i+100*y+x))
			}
		}
		fx.frames = append(fx.frames, fixtureFrame{
			pose: Matrix4{
				1, 0, 0, float32(i) * 0.5,
				0, 1, 0, -0.25,
				0, 0, 1, 1.5,
				0, 0, 0, 1,
			},
			depth: dm,
			color: color.NRGBA{uint8(40 * i), 128, 200, 255},
		})
	}
	return fx
}

var (
	testColorIntrinsic = Matrix4{1170.5, 0, 647.5, 0, 0, 1170.5, 483.75, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	testDepthIntrinsic = Matrix4{577.5, 0, 319.5, 0, 0, 577.5, 239.5, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	identityMatrix     = Matrix4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
)

func (fx *fixture) bytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	le := func(v interface{}) {
		test.That(t, binary.Write(&buf, binary.LittleEndian, v), test.ShouldBeNil)
	}
	name := "StructureSensor"
	le(fx.version)
	le(uint64(len(name)))
	buf.WriteString(name)
	le(testColorIntrinsic)
	le(identityMatrix)
	le(testDepthIntrinsic)
	le(identityMatrix)
	le(fx.colorCodec)
	le(fx.depthCodec)
	le(uint32(testColorW))
	le(uint32(testColorH))
	le(uint32(testDepthW))
	le(uint32(testDepthH))
	le(float32(1000))
	le(uint64(len(fx.frames)))
	for i, f := range fx.frames {
		colorData := encodeJPEG(t, f.color)
		depthData := compressDepth(t, f.depth)
		le(f.pose)
		le(uint64(100 + i))
		le(uint64(200 + i))
		le(uint64(len(colorData)))
		le(uint64(len(depthData)))
		buf.Write(colorData)
		buf.Write(depthData)
	}
	return buf.Bytes()
}

func (fx *fixture) write(t *testing.T, path string) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o750), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, fx.bytes(t), 0o600), test.ShouldBeNil)
}

func encodeJPEG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, testColorW, testColorH))
	for y := 0; y < testColorH; y++ {
		for x := 0; x < testColorW; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	test.That(t, imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(100)), test.ShouldBeNil)
	return buf.Bytes()
}

func compressDepth(t *testing.T, dm *rimage.DepthMap) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(dm.Bytes())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, zw.Close(), test.ShouldBeNil)
	return buf.Bytes()
}

func closeTo(a, b uint8, tol int) bool {
	d := int(a) - int(b)
	return d <= tol && d >= -tol
}

func checkUniformColor(t *testing.T, img image.Image, want color.NRGBA) {
	t.Helper()
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, testColorW)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, testColorH)
	got := color.NRGBAModel.Convert(img.At(img.Bounds().Min.X+3, img.Bounds().Min.Y+4)).(color.NRGBA)
	test.That(t, closeTo(got.R, want.R, 4), test.ShouldBeTrue)
	test.That(t, closeTo(got.G, want.G, 4), test.ShouldBeTrue)
	test.That(t, closeTo(got.B, want.B, 4), test.ShouldBeTrue)
}
