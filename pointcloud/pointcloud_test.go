package pointcloud

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPointCloudBasic(t *testing.T) {
	pc := New()

	p0 := NewVector(0, 0, 0)
	d0 := NewValueData(5)

	test.That(t, pc.Set(p0, d0), test.ShouldBeNil)
	d, got := pc.At(0, 0, 0)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d0)

	_, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeFalse)

	p1 := NewVector(1, 0, 1)
	d1 := NewValueData(17)
	test.That(t, pc.Set(p1, d1), test.ShouldBeNil)

	d, got = pc.At(1, 0, 1)
	test.That(t, got, test.ShouldBeTrue)
	test.That(t, d, test.ShouldResemble, d1)
	test.That(t, d, test.ShouldNotResemble, d0)

	p2 := NewVector(-1, -2, 1)
	d2 := NewValueData(81)
	test.That(t, pc.Set(p2, d2), test.ShouldBeNil)

	var order []r3.Vector
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		order = append(order, p)
		return true
	})
	test.That(t, order, test.ShouldResemble, []r3.Vector{p0, p1, p2})

	test.That(t, CloudContains(pc, 1, 1, 1), test.ShouldBeFalse)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	// replacing data does not add a point
	test.That(t, pc.Set(p2, NewValueData(3)), test.ShouldBeNil)
	test.That(t, pc.Size(), test.ShouldEqual, 3)

	pMax := NewVector(minPreciseFloat64, maxPreciseFloat64, minPreciseFloat64)
	test.That(t, pc.Set(pMax, nil), test.ShouldBeNil)

	pBad := NewVector(minPreciseFloat64-1e6, maxPreciseFloat64, minPreciseFloat64)
	err := pc.Set(pBad, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "x component")

	pBad = NewVector(minPreciseFloat64, maxPreciseFloat64+1e6, minPreciseFloat64)
	err = pc.Set(pBad, nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "y component")
}

func TestPointCloudBatches(t *testing.T) {
	pc := NewWithPrealloc(5)
	for i := 0; i < 5; i++ {
		test.That(t, pc.Set(NewVector(float64(i), 0, 0), nil), test.ShouldBeNil)
	}
	seen := 0
	for batch := 0; batch < 2; batch++ {
		pc.Iterate(2, batch, func(p r3.Vector, d Data) bool {
			seen++
			return true
		})
	}
	test.That(t, seen, test.ShouldEqual, 5)

	stopped := 0
	pc.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		stopped++
		return stopped < 2
	})
	test.That(t, stopped, test.ShouldEqual, 2)
}

func TestMetaData(t *testing.T) {
	pc := New()
	test.That(t, pc.Set(NewVector(-1, 2, 3), NewColoredData(color.NRGBA{1, 2, 3, 255})), test.ShouldBeNil)
	test.That(t, pc.Set(NewVector(3, -2, 5), NewBasicData()), test.ShouldBeNil)

	meta := pc.MetaData()
	test.That(t, meta.HasColor, test.ShouldBeTrue)
	test.That(t, meta.HasValue, test.ShouldBeFalse)
	test.That(t, meta.MinX, test.ShouldEqual, -1)
	test.That(t, meta.MaxX, test.ShouldEqual, 3)
	test.That(t, meta.MinY, test.ShouldEqual, -2)
	test.That(t, meta.MaxZ, test.ShouldEqual, 5)
	test.That(t, Centroid(pc), test.ShouldResemble, r3.Vector{X: 1, Y: 0, Z: 4})
}
