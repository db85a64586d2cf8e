package rimage

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestWriteMatrix(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, -0.5, 2.25, 0, 1e-7, 100})
	var buf bytes.Buffer
	test.That(t, WriteMatrix(&buf, m), test.ShouldBeNil)
	test.That(t, buf.String(), test.ShouldEqual, "1.000000 -0.500000 2.250000\n0.000000 0.000000 100.000000\n")
}

func TestMatrixFileRoundTrip(t *testing.T) {
	m := mat.NewDense(4, 4, []float64{
		0.5, 0, 0, 1.25,
		0, 1, 0, -2,
		0, 0, 1, 3.5,
		0, 0, 0, 1,
	})
	path := filepath.Join(t.TempDir(), "pose.txt")
	test.That(t, WriteMatrixToFile(path, m), test.ShouldBeNil)
	back, err := ReadMatrixFromFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Equal(back, m), test.ShouldBeTrue)

	_, err = ReadMatrixFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, WriteMatrixToFile(filepath.Join(t.TempDir(), "no", "dir.txt"), m), test.ShouldNotBeNil)
}

func TestReadMatrixErrors(t *testing.T) {
	_, err := ReadMatrix(strings.NewReader("1 2\n3\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "row 1 has 1 values")

	_, err = ReadMatrix(strings.NewReader("1 x\n"))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = ReadMatrix(strings.NewReader("\n\n"))
	test.That(t, err, test.ShouldNotBeNil)

	m, err := ReadMatrix(strings.NewReader("\n1 2\n\n3 4\n"))
	test.That(t, err, test.ShouldBeNil)
	r, c := m.Dims()
	test.That(t, []int{r, c}, test.ShouldResemble, []int{2, 2})
}
