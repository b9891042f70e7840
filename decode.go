package fbxio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Memory reads raw bytes at an absolute address. A sealed Arena is one,
// memory owned by the native library is another.
type Memory interface {
	Read(addr uint64, n int) ([]byte, error)
}

const (
	maxDecodeDepth = 1 << 12
	maxArrayBytes  = 1 << 34
)

type recordReader struct {
	mem      Memory
	names    *NameEncoder
	mats     uint64
	matCount int
}

// Decode walks the record at addr and copies everything reachable from it
// into Go values. Nothing in the result aliases mem.
func Decode(mem Memory, addr uint64, names *NameEncoder) (*ExportData, error) {
	if addr == 0 {
		return nil, fmt.Errorf("%w: null export data", ErrBadPointer)
	}
	hdr, err := mem.Read(addr, EXPORT_DATA_SIZE)
	if err != nil {
		return nil, err
	}
	d := &ExportData{
		IsBinary:  hdr[exportIsBinaryOff] != 0,
		UnitScale: f64(hdr, exportUnitScaleOff),
	}
	r := &recordReader{
		mem:      mem,
		names:    names,
		mats:     u64(hdr, exportMaterialsOff),
		matCount: int(u64(hdr, exportMaterialCountOff)),
	}
	if d.Materials, err = r.materials(); err != nil {
		return nil, err
	}
	root := u64(hdr, exportRootOff)
	if root == 0 {
		return nil, fmt.Errorf("%w: null root object", ErrBadPointer)
	}
	if err := r.object(root, &d.Root, 0); err != nil {
		return nil, err
	}
	return d, nil
}

func u64(b []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(b[off:])
}

func f64(b []byte, off int) float64 {
	return math.Float64frombits(u64(b, off))
}

func (r *recordReader) array(ptr uint64, count uint64, elem int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	if ptr == 0 {
		return nil, fmt.Errorf("%w: null array with %d entries", ErrBadPointer, count)
	}
	if count > maxArrayBytes/uint64(elem) {
		return nil, fmt.Errorf("%w: array of %d entries too large", ErrBadPointer, count)
	}
	return r.mem.Read(ptr, int(count)*elem)
}

func (r *recordReader) name(rec []byte) (string, error) {
	ptr, n := u64(rec, nameOff), u64(rec, nameLengthOff)
	if ptr == 0 || n == 0 {
		return "", nil
	}
	b, err := r.array(ptr, n, 1)
	if err != nil {
		return "", err
	}
	return r.names.Decode(b)
}

func vector4At(b []byte, off int) Vector4 {
	return Vector4{f64(b, off), f64(b, off+8), f64(b, off+16), f64(b, off+24)}
}

func (r *recordReader) vector4s(ptr, count uint64) ([]Vector4, error) {
	b, err := r.array(ptr, count, VECTOR4_SIZE)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]Vector4, count)
	for i := range out {
		out[i] = vector4At(b, i*VECTOR4_SIZE)
	}
	return out, nil
}

func (r *recordReader) vector2s(ptr, count uint64) ([]Vector2, error) {
	b, err := r.array(ptr, count, VECTOR2_SIZE)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]Vector2, count)
	for i := range out {
		out[i] = Vector2{f64(b, i*VECTOR2_SIZE), f64(b, i*VECTOR2_SIZE+8)}
	}
	return out, nil
}

func (r *recordReader) uint32s(ptr, count uint64) ([]uint32, error) {
	b, err := r.array(ptr, count, 4)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}

func (r *recordReader) materials() ([]Material, error) {
	b, err := r.array(r.mats, uint64(r.matCount), MATERIAL_SIZE)
	if err != nil || b == nil {
		return nil, err
	}
	out := make([]Material, r.matCount)
	for i := range out {
		rec := b[i*MATERIAL_SIZE : (i+1)*MATERIAL_SIZE]
		if out[i].Name, err = r.name(rec); err != nil {
			return nil, err
		}
		if err := decodeSurface(rec[materialSurfaceOff:], &out[i].Surface); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeSurface(b []byte, s *StandardSurface) error {
	if len(b) < STANDARD_SURFACE_SIZE {
		return fmt.Errorf("%w: short standard surface", ErrBadPointer)
	}
	_, err := binary.Decode(b[:STANDARD_SURFACE_SIZE], binary.LittleEndian, s)
	return err
}

// slotIndex maps a Material* back to its position in the material array.
func (r *recordReader) slotIndex(p uint64) (int, error) {
	if p == 0 {
		return -1, nil
	}
	if p < r.mats || (p-r.mats)%MATERIAL_SIZE != 0 {
		return 0, fmt.Errorf("%w: material slot 0x%x not in material array", ErrBadPointer, p)
	}
	idx := (p - r.mats) / MATERIAL_SIZE
	if idx >= uint64(r.matCount) {
		return 0, fmt.Errorf("%w: material slot 0x%x past material array", ErrBadPointer, p)
	}
	return int(idx), nil
}

func (r *recordReader) object(addr uint64, o *Object, depth int) error {
	if depth > maxDecodeDepth {
		return fmt.Errorf("%w: object tree deeper than %d", ErrBadPointer, maxDecodeDepth)
	}
	rec, err := r.mem.Read(addr, OBJECT_SIZE)
	if err != nil {
		return err
	}
	if o.Name, err = r.name(rec); err != nil {
		return err
	}
	for i := range o.LocalMatrix {
		o.LocalMatrix[i] = f64(rec, objectMatrixOff+i*8)
	}

	children, count := u64(rec, objectChildrenOff), u64(rec, objectChildCntOff)
	if _, err := r.array(children, count, OBJECT_SIZE); err != nil {
		return err
	}
	if count > 0 {
		o.Children = make([]Object, count)
		for i := range o.Children {
			if err := r.object(children+uint64(i)*OBJECT_SIZE, &o.Children[i], depth+1); err != nil {
				return err
			}
		}
	}

	if mp := u64(rec, objectMeshOff); mp != 0 {
		if o.Mesh, err = r.mesh(mp); err != nil {
			return fmt.Errorf("object %q: %w", o.Name, err)
		}
	}

	slots, err := r.array(u64(rec, objectSlotsOff), u64(rec, objectSlotCountOff), POINTER_SIZE)
	if err != nil {
		return err
	}
	if n := len(slots) / POINTER_SIZE; n > 0 {
		o.MaterialSlots = make([]int, n)
		for i := range o.MaterialSlots {
			if o.MaterialSlots[i], err = r.slotIndex(u64(slots, i*POINTER_SIZE)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *recordReader) mesh(addr uint64) (*Mesh, error) {
	rec, err := r.mem.Read(addr, MESH_SIZE)
	if err != nil {
		return nil, err
	}
	m := &Mesh{Smooth: rec[meshSmoothOff] != 0}
	if m.Name, err = r.name(rec); err != nil {
		return nil, err
	}
	if m.Vertices, err = r.vector4s(u64(rec, meshVerticesOff), u64(rec, meshVertexCountOff)); err != nil {
		return nil, err
	}
	indexCount := u64(rec, meshIndexCountOff)
	if m.Indices, err = r.uint32s(u64(rec, meshIndicesOff), indexCount); err != nil {
		return nil, err
	}
	polyCount := u64(rec, meshPolyCountOff)
	if m.Polys, err = r.uint32s(u64(rec, meshPolysOff), polyCount); err != nil {
		return nil, err
	}
	mi, err := r.uint32s(u64(rec, meshMaterialIndicesOff), polyCount)
	if err != nil {
		return nil, err
	}
	if mi != nil {
		m.MaterialIndices = make([]int32, len(mi))
		for i, v := range mi {
			m.MaterialIndices[i] = int32(v)
		}
	}

	uvCount := u64(rec, meshUVSetCountOff)
	uvs, err := r.array(u64(rec, meshUVSetsOff), uvCount, UV_SIZE)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(uvCount); i++ {
		ch := uvs[i*UV_SIZE : (i+1)*UV_SIZE]
		set := UVSet{}
		if set.Name, err = r.name(ch); err != nil {
			return nil, err
		}
		if set.UV, err = r.vector2s(u64(ch, channelDataOff), indexCount); err != nil {
			return nil, err
		}
		m.UVSets = append(m.UVSets, set)
	}

	nrmCount := u64(rec, meshNormalSetCountOff)
	nrms, err := r.array(u64(rec, meshNormalSetsOff), nrmCount, NORMAL_SIZE)
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(nrmCount); i++ {
		ch := nrms[i*NORMAL_SIZE : (i+1)*NORMAL_SIZE]
		set := NormalSet{}
		if set.Name, err = r.name(ch); err != nil {
			return nil, err
		}
		if set.Normals, err = r.vector4s(u64(ch, channelDataOff), indexCount); err != nil {
			return nil, err
		}
		m.NormalSets = append(m.NormalSets, set)
	}
	return m, nil
}
