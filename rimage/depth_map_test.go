package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestDepthMapBasics(t *testing.T) {
	dm := NewEmptyDepthMap(3, 2)
	test.That(t, dm.HasData(), test.ShouldBeTrue)
	test.That(t, dm.Bounds(), test.ShouldResemble, image.Rect(0, 0, 3, 2))
	dm.Set(2, 1, 1500)
	test.That(t, dm.GetDepth(2, 1), test.ShouldEqual, Depth(1500))
	test.That(t, dm.Get(image.Point{2, 1}), test.ShouldEqual, Depth(1500))
	test.That(t, dm.At(2, 1), test.ShouldResemble, color.Gray16{1500})
	test.That(t, dm.At(5, 5), test.ShouldResemble, color.Gray16{})
	test.That(t, dm.ValidCount(), test.ShouldEqual, 1)

	var empty *DepthMap
	test.That(t, empty.HasData(), test.ShouldBeFalse)
}

func TestDepthMapFromBytes(t *testing.T) {
	raw := []byte{0x01, 0x00, 0xe8, 0x03, 0xff, 0xff, 0x00, 0x00}
	dm, err := NewDepthMapFromBytes(2, 2, raw)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, Depth(1))
	test.That(t, dm.GetDepth(1, 0), test.ShouldEqual, Depth(1000))
	test.That(t, dm.GetDepth(0, 1), test.ShouldEqual, MaxDepth)
	test.That(t, dm.GetDepth(1, 1), test.ShouldEqual, Depth(0))
	test.That(t, dm.Bytes(), test.ShouldResemble, raw)

	_, err = NewDepthMapFromBytes(2, 2, raw[:6])
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewDepthMapFromBytes(0, 2, raw)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMetersToDepth(t *testing.T) {
	test.That(t, MetersToDepth(1.2346), test.ShouldEqual, Depth(1235))
	test.That(t, MetersToDepth(1.2344), test.ShouldEqual, Depth(1234))
	test.That(t, MetersToDepth(-1), test.ShouldEqual, Depth(0))
	test.That(t, MetersToDepth(100), test.ShouldEqual, MaxDepth)

	dm, err := NewDepthMapFromMeters(2, 1, []float32{0.5, 0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(0, 0), test.ShouldEqual, Depth(500))

	meters := dm.Meters()
	test.That(t, meters.At(0, 0), test.ShouldEqual, float32(0.5))
	test.That(t, meters.ToDepthMap(), test.ShouldResemble, dm)
}

func TestDepthMapResize(t *testing.T) {
	dm := NewEmptyDepthMap(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			dm.Set(x, y, Depth(100*(y+1)+x))
		}
	}
	small, err := dm.Resize(2, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, small.Width(), test.ShouldEqual, 2)
	test.That(t, small.Height(), test.ShouldEqual, 2)
	// nearest neighbor never invents a value
	valid := depthValues(dm)
	for _, d := range small.data {
		test.That(t, valid[d], test.ShouldBeTrue)
	}

	same, err := dm.Resize(4, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldResemble, dm)

	_, err = dm.Resize(0, 4)
	test.That(t, err, test.ShouldNotBeNil)
}

func depthValues(dm *DepthMap) map[Depth]bool {
	values := map[Depth]bool{}
	for _, d := range dm.data {
		values[d] = true
	}
	return values
}

func TestDepthMapResizeKeepsReadings(t *testing.T) {
	row := func(vals ...Depth) *DepthMap {
		dm := NewEmptyDepthMap(len(vals), 1)
		for x, v := range vals {
			dm.Set(x, 0, v)
		}
		return dm
	}

	// holes next to readings must not blend into new depths
	alternating := row(0, 1000, 0, 1000)
	small, err := alternating.Resize(2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, small.data, test.ShouldResemble, []Depth{1000, 1000})

	mixed := row(0, 900, 3000, 0, 700, 5000)
	small, err = mixed.Resize(2, 1)
	test.That(t, err, test.ShouldBeNil)
	in := depthValues(mixed)
	for _, d := range small.data {
		test.That(t, in[d], test.ShouldBeTrue)
	}

	checker := NewEmptyDepthMap(9, 7)
	for y := 0; y < 7; y++ {
		for x := 0; x < 9; x++ {
			if (x+y)%2 == 1 {
				checker.Set(x, y, Depth(1000+37*x+101*y))
			}
		}
	}
	in = depthValues(checker)
	for _, size := range [][2]int{{4, 3}, {3, 2}, {5, 5}, {18, 14}} {
		resized, err := checker.Resize(size[0], size[1])
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resized.Width(), test.ShouldEqual, size[0])
		test.That(t, resized.Height(), test.ShouldEqual, size[1])
		for _, d := range resized.data {
			test.That(t, in[d], test.ShouldBeTrue)
		}
	}

	// doubling copies each reading into a 2x2 block
	big, err := alternating.Resize(8, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, big.GetDepth(0, 1), test.ShouldEqual, Depth(0))
	test.That(t, big.GetDepth(2, 0), test.ShouldEqual, Depth(1000))
	test.That(t, big.GetDepth(3, 1), test.ShouldEqual, Depth(1000))
}

func TestConvertImageToDepthMap(t *testing.T) {
	g := image.NewGray16(image.Rect(0, 0, 2, 1))
	g.SetGray16(1, 0, color.Gray16{42})
	dm, err := ConvertImageToDepthMap(g)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dm.GetDepth(1, 0), test.ShouldEqual, Depth(42))
	test.That(t, dm.ToGray16(), test.ShouldResemble, g)

	same, err := ConvertImageToDepthMap(dm)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldEqual, dm)

	_, err = ConvertImageToDepthMap(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	test.That(t, err, test.ShouldNotBeNil)

	var nilGray *image.Gray16
	_, err = ConvertImageToDepthMap(nilGray)
	test.That(t, err, test.ShouldNotBeNil)
	var nilDepth *DepthMap
	_, err = ConvertImageToDepthMap(nilDepth)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDepthMapPrettyPicture(t *testing.T) {
	dm := NewEmptyDepthMap(3, 1)
	dm.Set(0, 0, 500)
	dm.Set(1, 0, 2000)
	min, max := dm.MinMax()
	test.That(t, min, test.ShouldEqual, Depth(500))
	test.That(t, max, test.ShouldEqual, Depth(2000))

	img := dm.ToPrettyPicture(0, MaxDepth)
	_, _, _, a := img.At(2, 0).RGBA()
	test.That(t, a, test.ShouldEqual, uint32(0))
	r0, g0, b0, _ := img.At(0, 0).RGBA()
	r1, g1, b1, _ := img.At(1, 0).RGBA()
	test.That(t, []uint32{r0, g0, b0}, test.ShouldNotResemble, []uint32{r1, g1, b1})
}

func TestFloatImage(t *testing.T) {
	fi := NewFloatImage(2, 1)
	fi.SetRGB(0, 0, 1, 0.5, 0)
	fi.SetRGB(1, 0, 2, -1, 0.999)
	img := fi.ToNRGBA()
	test.That(t, img.NRGBAAt(0, 0), test.ShouldResemble, color.NRGBA{255, 127, 0, 255})
	test.That(t, img.NRGBAAt(1, 0), test.ShouldResemble, color.NRGBA{255, 0, 254, 255})
}

func TestFloatDepthResize(t *testing.T) {
	fd, err := NewFloatDepthFromSlice(2, 2, []float32{1, 2, 3, 4})
	test.That(t, err, test.ShouldBeNil)

	up, err := fd.Resize(4, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, up.Data(), test.ShouldResemble, []float32{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	})

	down, err := up.Resize(2, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, down.Data(), test.ShouldResemble, []float32{1, 2})

	_, err = fd.Resize(0, 2)
	test.That(t, err, test.ShouldNotBeNil)
}
