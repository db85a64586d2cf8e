package pointcloud

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/chenzhekl/goply"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// WritePLY writes the cloud as an ASCII PLY file. Color and normals are written when
// the cloud carries them.
func WritePLY(cloud PointCloud, out io.Writer) error {
	meta := cloud.MetaData()
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n", cloud.Size())
	fmt.Fprint(w, "property float x\nproperty float y\nproperty float z\n")
	if meta.HasNormal {
		fmt.Fprint(w, "property float nx\nproperty float ny\nproperty float nz\n")
	}
	if meta.HasColor {
		fmt.Fprint(w, "property uchar red\nproperty uchar green\nproperty uchar blue\n")
	}
	fmt.Fprint(w, "end_header\n")

	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		_, err = fmt.Fprintf(w, "%f %f %f", p.X, p.Y, p.Z)
		if err != nil {
			return false
		}
		if meta.HasNormal {
			var n r3.Vector
			if d != nil && d.HasNormal() {
				n = d.Normal()
			}
			fmt.Fprintf(w, " %f %f %f", n.X, n.Y, n.Z)
		}
		if meta.HasColor {
			var r, g, b uint8
			if d != nil && d.HasColor() {
				r, g, b = d.RGB255()
			}
			fmt.Fprintf(w, " %d %d %d", r, g, b)
		}
		_, err = w.WriteString("\n")
		return err == nil
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

// WritePLYFile writes the cloud to the given path as an ASCII PLY file.
func WritePLYFile(cloud PointCloud, path string) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return WritePLY(cloud, f)
}

// ReadPLY reads the vertex element of an ASCII PLY file into a cloud. Only vertices are
// loaded; faces are ignored.
func ReadPLY(in io.Reader) (pc PointCloud, err error) {
	defer func() {
		if r := recover(); r != nil {
			pc = nil
			err = errors.Errorf("error parsing ply: %v", r)
		}
	}()
	ply := goply.New(in)
	vertices := ply.Elements("vertex")
	pc = NewWithPrealloc(len(vertices))
	for i, v := range vertices {
		x, okX := plyFloat(v["x"])
		y, okY := plyFloat(v["y"])
		z, okZ := plyFloat(v["z"])
		if !okX || !okY || !okZ {
			return nil, errors.Errorf("ply vertex %d is missing a position", i)
		}
		d := NewBasicData()
		if r, ok := plyUint8(v["red"]); ok {
			g, _ := plyUint8(v["green"])
			b, _ := plyUint8(v["blue"])
			d.SetColor(color.NRGBA{R: r, G: g, B: b, A: 255})
		}
		if nx, ok := plyFloat(v["nx"]); ok {
			ny, _ := plyFloat(v["ny"])
			nz, _ := plyFloat(v["nz"])
			d.SetNormal(r3.Vector{X: nx, Y: ny, Z: nz})
		}
		if err := pc.Set(r3.Vector{X: x, Y: y, Z: z}, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// ReadPLYFile reads the vertices of the PLY file at path.
func ReadPLYFile(path string) (PointCloud, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	pc, err := ReadPLY(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %q", path)
	}
	return pc, nil
}

func plyFloat(v interface{}) (float64, bool) {
	switch vv := v.(type) {
	case float32:
		return float64(vv), true
	case float64:
		return vv, true
	case int32:
		return float64(vv), true
	case int16:
		return float64(vv), true
	case uint32:
		return float64(vv), true
	default:
		return 0, false
	}
}

func plyUint8(v interface{}) (uint8, bool) {
	switch vv := v.(type) {
	case uint8:
		return vv, true
	case float32:
		return uint8(vv * 255), true
	default:
		return 0, false
	}
}
