package rimage

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// WriteMatrix writes m as text, one row per line with values formatted as %f and
// separated by single spaces.
func WriteMatrix(w io.Writer, m mat.Matrix) error {
	rows, cols := m.Dims()
	bw := bufio.NewWriter(w)
	for r := 0; r < rows; r++ {
		fields := make([]string, cols)
		for c := 0; c < cols; c++ {
			fields[c] = fmt.Sprintf("%f", m.At(r, c))
		}
		if _, err := bw.WriteString(strings.Join(fields, " ") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteMatrixToFile writes m to path with WriteMatrix.
func WriteMatrixToFile(path string, m mat.Matrix) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating matrix file %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WriteMatrix(f, m)
}

// ReadMatrix parses whitespace separated rows of numbers. Blank lines are skipped and
// every row must have the same number of values.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	var data []float64
	cols := -1
	rows := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if cols == -1 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, errors.Errorf("matrix row %d has %d values, expected %d", rows, len(fields), cols)
		}
		for _, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad value in matrix row %d", rows)
			}
			data = append(data, v)
		}
		rows++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, errors.New("matrix has no rows")
	}
	return mat.NewDense(rows, cols, data), nil
}

// ReadMatrixFromFile reads a matrix written by WriteMatrixToFile.
func ReadMatrixFromFile(path string) (*mat.Dense, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	m, err := ReadMatrix(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading matrix %q", path)
	}
	return m, nil
}
