package fbxio

import (
	"fmt"

	dvec3 "github.com/flywave/go3d/float64/vec3"
)

// NormalDeriver turns per-face normals into per-corner normals. The output
// always has len(indices) entries.
type NormalDeriver interface {
	VertexNormalFromPolyNormal(indices, polys []uint32, polyNormals []Vector4) ([]Vector4, error)
}

// NormalFunc adapts a plain function to NormalDeriver.
type NormalFunc func(indices, polys []uint32, polyNormals []Vector4) ([]Vector4, error)

func (f NormalFunc) VertexNormalFromPolyNormal(indices, polys []uint32, polyNormals []Vector4) ([]Vector4, error) {
	return f(indices, polys, polyNormals)
}

// GoNormals is the in-process deriver.
var GoNormals NormalDeriver = NormalFunc(VertexNormalFromPolyNormal)

// VertexNormalFromPolyNormal gives each corner the mean of the normals of
// every face touching the corner's vertex. Each face counts once per
// vertex, all faces weigh the same and the mean is not renormalised.
func VertexNormalFromPolyNormal(indices, polys []uint32, polyNormals []Vector4) ([]Vector4, error) {
	out := make([]Vector4, len(indices))
	if len(polys) == 0 {
		return out, nil
	}
	if len(polyNormals) != len(polys) {
		return nil, fmt.Errorf("%w: %d face normals for %d faces", ErrMalformedMesh, len(polyNormals), len(polys))
	}

	adjacency := make(map[uint32][]int, len(indices))
	for f := range polys {
		s, e := faceRange(polys, len(indices), f)
		if s > e || e > len(indices) {
			return nil, fmt.Errorf("%w: face %d spans [%d,%d) of %d corners", ErrMalformedMesh, f, s, e, len(indices))
		}
		for _, v := range indices[s:e] {
			faces := adjacency[v]
			if n := len(faces); n > 0 && faces[n-1] == f {
				continue
			}
			adjacency[v] = append(faces, f)
		}
	}

	means := make(map[uint32]Vector4, len(adjacency))
	for i, v := range indices {
		mean, ok := means[v]
		if !ok {
			faces := adjacency[v]
			var sum dvec3.T
			var w float64
			for _, f := range faces {
				n := polyNormals[f]
				sum.Add(&dvec3.T{n.X, n.Y, n.Z})
				w += n.W
			}
			if c := float64(len(faces)); c > 0 {
				sum.Scale(1 / c)
				w /= c
			}
			mean = Vector4{sum[0], sum[1], sum[2], w}
			means[v] = mean
		}
		out[i] = mean
	}
	return out, nil
}

// ResolveNormals picks the normal channels for m: split normals when the
// host has them, else normals derived from face normals, else none.
func ResolveNormals(src SourceMesh, m *Mesh, deriver NormalDeriver) ([]NormalSet, error) {
	if split, ok := src.CornerNormals(); ok {
		if len(split) != len(m.Indices) {
			return nil, fmt.Errorf("%w: %d split normals for %d corners", ErrMalformedMesh, len(split), len(m.Indices))
		}
		ns := make([]Vector4, len(split))
		for i, n := range split {
			ns[i] = Vector4{n[0], n[1], n[2], 0}
		}
		return []NormalSet{{Name: NORMAL_SET_NAME, Normals: ns}}, nil
	}

	faces, ok := src.FaceNormals()
	if !ok {
		return nil, nil
	}
	if len(faces) != len(m.Polys) {
		return nil, fmt.Errorf("%w: %d face normals for %d faces", ErrMalformedMesh, len(faces), len(m.Polys))
	}
	if deriver == nil {
		deriver = GoNormals
	}
	pn := make([]Vector4, len(faces))
	for i, n := range faces {
		pn[i] = Vector4{n[0], n[1], n[2], 0}
	}
	ns, err := deriver.VertexNormalFromPolyNormal(m.Indices, m.Polys, pn)
	if err != nil {
		return nil, fmt.Errorf("derive corner normals: %w", err)
	}
	if len(ns) != len(m.Indices) {
		return nil, fmt.Errorf("%w: deriver returned %d normals for %d corners", ErrMalformedMesh, len(ns), len(m.Indices))
	}
	return []NormalSet{{Name: NORMAL_SET_NAME, Normals: ns}}, nil
}
