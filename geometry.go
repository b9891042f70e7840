package fbxio

import (
	"fmt"

	"go.uber.org/multierr"
)

// FlattenOptions controls how host data is mapped onto mesh records.
type FlattenOptions struct {
	// OneBasedMaterialSlots is set when the host numbers slots from 1 and
	// uses 0 for "no material".
	OneBasedMaterialSlots bool
}

// materialIndex maps a host slot number to the record's material index.
func (o FlattenOptions) materialIndex(slot, slotCount int) (int32, error) {
	if o.OneBasedMaterialSlots {
		slot--
	}
	if slotCount == 0 || slot < 0 {
		return NO_MATERIAL, nil
	}
	if slot >= slotCount {
		return 0, fmt.Errorf("%w: slot %d of %d", ErrMaterialSlot, slot, slotCount)
	}
	return int32(slot), nil
}

// FlattenMesh converts src into flat vertex, corner, face and UV arrays.
// Every problem found is reported, combined into one error.
func FlattenMesh(src SourceMesh, slotCount int, opts FlattenOptions) (*Mesh, error) {
	verts := src.Vertices()
	polys := src.Polygons()

	m := &Mesh{
		Name:            src.Name(),
		Vertices:        make([]Vector4, len(verts)),
		Polys:           make([]uint32, 0, len(polys)),
		MaterialIndices: make([]int32, 0, len(polys)),
		Smooth:          src.IsSmooth(),
	}
	for i, v := range verts {
		m.Vertices[i] = Vector4{v[0], v[1], v[2], 1}
	}

	var errs error
	corners := 0
	for _, p := range polys {
		corners += len(p.Vertices)
	}
	m.Indices = make([]uint32, 0, corners)

	for fi, p := range polys {
		if len(p.Vertices) < MIN_FACE_CORNERS {
			errs = multierr.Append(errs, fmt.Errorf("%w: face %d has %d corners", ErrMalformedMesh, fi, len(p.Vertices)))
		}
		mi, err := opts.materialIndex(p.MaterialSlot, slotCount)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("face %d: %w", fi, err))
		}
		m.Polys = append(m.Polys, uint32(len(m.Indices)))
		m.MaterialIndices = append(m.MaterialIndices, mi)
		for _, vi := range p.Vertices {
			if int(vi) >= len(verts) {
				errs = multierr.Append(errs, fmt.Errorf("%w: face %d references vertex %d of %d", ErrMalformedMesh, fi, vi, len(verts)))
			}
			m.Indices = append(m.Indices, vi)
		}
	}

	for _, l := range src.UVLayers() {
		if len(l.UV) != len(m.Indices) {
			errs = multierr.Append(errs, fmt.Errorf("%w: uv layer %q has %d coordinates for %d corners", ErrMalformedMesh, l.Name, len(l.UV), len(m.Indices)))
			continue
		}
		set := UVSet{Name: l.Name, UV: make([]Vector2, len(l.UV))}
		if set.Name == "" {
			set.Name = DEFAULT_UV_NAME
		}
		for i, uv := range l.UV {
			set.UV[i] = Vector2{uv[0], uv[1]}
		}
		m.UVSets = append(m.UVSets, set)
	}

	if errs != nil {
		return nil, fmt.Errorf("mesh %q: %w", m.Name, errs)
	}
	return m, nil
}

// Validate checks the structural invariants of a flattened mesh.
func (m *Mesh) Validate() error {
	var errs error
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			errs = multierr.Append(errs, fmt.Errorf("%w: index %d is %d, vertex count %d", ErrMalformedMesh, i, idx, len(m.Vertices)))
		}
	}
	if len(m.MaterialIndices) != len(m.Polys) {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d material indices for %d faces", ErrMalformedMesh, len(m.MaterialIndices), len(m.Polys)))
	}
	if len(m.Polys) > 0 && m.Polys[0] != 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: first face starts at %d", ErrMalformedMesh, m.Polys[0]))
	}
	for i := range m.Polys {
		if int(m.Polys[i]) > len(m.Indices) {
			errs = multierr.Append(errs, fmt.Errorf("%w: face %d starts past the index array", ErrMalformedMesh, i))
			continue
		}
		s, e := m.FaceRange(i)
		if e-s < MIN_FACE_CORNERS {
			errs = multierr.Append(errs, fmt.Errorf("%w: face %d has %d corners", ErrMalformedMesh, i, e-s))
		}
	}
	for _, set := range m.UVSets {
		if len(set.UV) != len(m.Indices) {
			errs = multierr.Append(errs, fmt.Errorf("%w: uv set %q length %d", ErrMalformedMesh, set.Name, len(set.UV)))
		}
	}
	for _, set := range m.NormalSets {
		if len(set.Normals) != len(m.Indices) {
			errs = multierr.Append(errs, fmt.Errorf("%w: normal set %q length %d", ErrMalformedMesh, set.Name, len(set.Normals)))
		}
	}
	return errs
}
