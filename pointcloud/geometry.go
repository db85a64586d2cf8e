package pointcloud

import (
	"image/color"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Transform returns a new cloud with every point moved by the given 4x4 rigid transform.
// Normals are rotated along with their points.
func Transform(cloud PointCloud, m *mat.Dense) (PointCloud, error) {
	if r, c := m.Dims(); r != 4 || c != 4 {
		return nil, errors.Errorf("expected a 4x4 transform, got %dx%d", r, c)
	}
	out := NewWithPrealloc(cloud.Size())
	var err error
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		if d != nil && d.HasNormal() {
			n := d.Normal()
			d = cloneData(d).SetNormal(r3.Vector{
				X: m.At(0, 0)*n.X + m.At(0, 1)*n.Y + m.At(0, 2)*n.Z,
				Y: m.At(1, 0)*n.X + m.At(1, 1)*n.Y + m.At(1, 2)*n.Z,
				Z: m.At(2, 0)*n.X + m.At(2, 1)*n.Y + m.At(2, 2)*n.Z,
			})
		}
		err = out.Set(ApplyTransform(m, p), d)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTransform applies a 4x4 homogeneous transform to a single point.
func ApplyTransform(m mat.Matrix, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*p.X + m.At(0, 1)*p.Y + m.At(0, 2)*p.Z + m.At(0, 3),
		Y: m.At(1, 0)*p.X + m.At(1, 1)*p.Y + m.At(1, 2)*p.Z + m.At(1, 3),
		Z: m.At(2, 0)*p.X + m.At(2, 1)*p.Y + m.At(2, 2)*p.Z + m.At(2, 3),
	}
}

// Centroid returns the mean position of the cloud.
func Centroid(cloud PointCloud) r3.Vector {
	meta := cloud.MetaData()
	return meta.Center()
}

// EstimateNormals returns a copy of the cloud where each point carries the normal of the
// plane fit to its k nearest neighbors. Normals are oriented towards the origin, which is
// where the sensor sits for camera space clouds. Neighbor search is brute force.
func EstimateNormals(cloud PointCloud, k int) (PointCloud, error) {
	if k < 3 {
		return nil, errors.Errorf("need at least 3 neighbors to estimate normals, got %d", k)
	}
	pts := make([]PointAndData, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		pts = append(pts, PointAndData{P: p, D: d})
		return true
	})
	if len(pts) < 3 {
		return nil, errors.Errorf("need at least 3 points to estimate normals, got %d", len(pts))
	}
	if k > len(pts) {
		k = len(pts)
	}

	out := NewWithPrealloc(len(pts))
	dists := make([]int, len(pts))
	for i, pd := range pts {
		for j := range dists {
			dists[j] = j
		}
		sort.Slice(dists, func(a, b int) bool {
			return pts[dists[a]].P.Sub(pd.P).Norm2() < pts[dists[b]].P.Sub(pd.P).Norm2()
		})
		neighbors := make([]r3.Vector, k)
		for j := 0; j < k; j++ {
			neighbors[j] = pts[dists[j]].P
		}
		n, err := planeNormal(neighbors)
		if err != nil {
			return nil, errors.Wrapf(err, "point %d", i)
		}
		if n.Dot(pd.P) > 0 {
			n = n.Mul(-1)
		}
		if err := out.Set(pd.P, cloneData(pd.D).SetNormal(n)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// planeNormal returns the eigenvector of the neighborhood covariance with the smallest
// eigenvalue.
func planeNormal(pts []r3.Vector) (r3.Vector, error) {
	var mean r3.Vector
	for _, p := range pts {
		mean = mean.Add(p)
	}
	mean = mean.Mul(1 / float64(len(pts)))

	cov := mat.NewSymDense(3, nil)
	for _, p := range pts {
		d := []float64{p.X - mean.X, p.Y - mean.Y, p.Z - mean.Z}
		for r := 0; r < 3; r++ {
			for c := r; c < 3; c++ {
				cov.SetSym(r, c, cov.At(r, c)+d[r]*d[c])
			}
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(cov, true); !ok {
		return r3.Vector{}, errors.New("eigen decomposition of neighborhood failed")
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	n := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	return n.Normalize(), nil
}

func cloneData(d Data) Data {
	out := NewBasicData()
	if d == nil {
		return out
	}
	if d.HasColor() {
		r, g, b := d.RGB255()
		out.SetColor(color.NRGBA{R: r, G: g, B: b, A: 255})
	}
	if d.HasValue() {
		out.SetValue(d.Value())
	}
	if d.HasNormal() {
		out.SetNormal(d.Normal())
	}
	return out
}
