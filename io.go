package fbxio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// field offsets inside each record
const (
	nameOff       = 0
	nameLengthOff = 8

	materialSurfaceOff = 16

	channelDataOff = 16

	meshVerticesOff        = 16
	meshVertexCountOff     = 24
	meshIndicesOff         = 32
	meshIndexCountOff      = 40
	meshPolysOff           = 48
	meshMaterialIndicesOff = 56
	meshPolyCountOff       = 64
	meshUVSetsOff          = 72
	meshUVSetCountOff      = 80
	meshNormalSetsOff      = 88
	meshNormalSetCountOff  = 96
	meshSmoothOff          = 104

	objectMatrixOff    = 16
	objectChildrenOff  = 144
	objectChildCntOff  = 152
	objectMeshOff      = 160
	objectSlotsOff     = 168
	objectSlotCountOff = 176

	exportIsBinaryOff      = 0
	exportUnitScaleOff     = 8
	exportRootOff          = 16
	exportMaterialsOff     = 24
	exportMaterialCountOff = 32
)

func toLittleByteOrder(v interface{}) []byte {
	var buf []byte
	b := bytes.NewBuffer(buf)
	e := binary.Write(b, binary.LittleEndian, v)
	if e != nil {
		return nil
	}
	return b.Bytes()
}

func writeLittleByte(wt io.Writer, v interface{}) {
	buf := toLittleByteOrder(v)
	if buf != nil {
		wt.Write(buf)
	}
}

func readLittleByte(rd io.Reader, v interface{}) error {
	return binary.Read(rd, binary.LittleEndian, v)
}

// recordWriter lays Go values out as native records inside an arena.
type recordWriter struct {
	a     *Arena
	names *NameEncoder
}

func (w *recordWriter) name(at Ref, s string) error {
	b, err := w.names.Encode(s)
	if err != nil {
		return fmt.Errorf("encode name %q: %w", s, err)
	}
	p := w.a.Alloc(len(b)+1, 1)
	w.a.PutBytes(p, b)
	w.a.PutPointer(at.Add(nameOff), p)
	w.a.PutUint64(at.Add(nameLengthOff), uint64(len(b)))
	return nil
}

func (w *recordWriter) vector4(at Ref, v Vector4) {
	w.a.PutFloat64(at, v.X)
	w.a.PutFloat64(at.Add(8), v.Y)
	w.a.PutFloat64(at.Add(16), v.Z)
	w.a.PutFloat64(at.Add(24), v.W)
}

func (w *recordWriter) vector4s(vs []Vector4) Ref {
	r := w.a.Alloc(len(vs)*VECTOR4_SIZE, RECORD_ALIGN)
	for i, v := range vs {
		w.vector4(r.Add(i*VECTOR4_SIZE), v)
	}
	return r
}

func (w *recordWriter) vector2s(vs []Vector2) Ref {
	r := w.a.Alloc(len(vs)*VECTOR2_SIZE, RECORD_ALIGN)
	for i, v := range vs {
		at := r.Add(i * VECTOR2_SIZE)
		w.a.PutFloat64(at, v.X)
		w.a.PutFloat64(at.Add(8), v.Y)
	}
	return r
}

func (w *recordWriter) uint32s(vs []uint32) Ref {
	r := w.a.Alloc(len(vs)*4, 4)
	for i, v := range vs {
		w.a.PutUint32(r.Add(i*4), v)
	}
	return r
}

func (w *recordWriter) int32s(vs []int32) Ref {
	r := w.a.Alloc(len(vs)*4, 4)
	for i, v := range vs {
		w.a.PutInt32(r.Add(i*4), v)
	}
	return r
}

func (w *recordWriter) surface(at Ref, s *StandardSurface) error {
	b := toLittleByteOrder(s)
	if len(b) != STANDARD_SURFACE_SIZE {
		return fmt.Errorf("standard surface encoded to %d bytes", len(b))
	}
	w.a.PutBytes(at, b)
	return nil
}

func (w *recordWriter) materials(mats []Material) (Ref, error) {
	arr := w.a.Alloc(len(mats)*MATERIAL_SIZE, RECORD_ALIGN)
	for i := range mats {
		at := arr.Add(i * MATERIAL_SIZE)
		if err := w.name(at, mats[i].Name); err != nil {
			return 0, err
		}
		if err := w.surface(at.Add(materialSurfaceOff), &mats[i].Surface); err != nil {
			return 0, err
		}
	}
	return arr, nil
}

func (w *recordWriter) mesh(m *Mesh) (Ref, error) {
	r := w.a.Alloc(MESH_SIZE, RECORD_ALIGN)
	if err := w.name(r, m.Name); err != nil {
		return 0, err
	}
	w.a.PutPointer(r.Add(meshVerticesOff), w.vector4s(m.Vertices))
	w.a.PutUint64(r.Add(meshVertexCountOff), uint64(len(m.Vertices)))
	w.a.PutPointer(r.Add(meshIndicesOff), w.uint32s(m.Indices))
	w.a.PutUint64(r.Add(meshIndexCountOff), uint64(len(m.Indices)))
	w.a.PutPointer(r.Add(meshPolysOff), w.uint32s(m.Polys))
	w.a.PutPointer(r.Add(meshMaterialIndicesOff), w.int32s(m.MaterialIndices))
	w.a.PutUint64(r.Add(meshPolyCountOff), uint64(len(m.Polys)))

	uvs := w.a.Alloc(len(m.UVSets)*UV_SIZE, RECORD_ALIGN)
	for i := range m.UVSets {
		at := uvs.Add(i * UV_SIZE)
		if err := w.name(at, m.UVSets[i].Name); err != nil {
			return 0, err
		}
		w.a.PutPointer(at.Add(channelDataOff), w.vector2s(m.UVSets[i].UV))
	}
	w.a.PutPointer(r.Add(meshUVSetsOff), uvs)
	w.a.PutUint64(r.Add(meshUVSetCountOff), uint64(len(m.UVSets)))

	nrms := w.a.Alloc(len(m.NormalSets)*NORMAL_SIZE, RECORD_ALIGN)
	for i := range m.NormalSets {
		at := nrms.Add(i * NORMAL_SIZE)
		if err := w.name(at, m.NormalSets[i].Name); err != nil {
			return 0, err
		}
		w.a.PutPointer(at.Add(channelDataOff), w.vector4s(m.NormalSets[i].Normals))
	}
	w.a.PutPointer(r.Add(meshNormalSetsOff), nrms)
	w.a.PutUint64(r.Add(meshNormalSetCountOff), uint64(len(m.NormalSets)))
	w.a.PutBool(r.Add(meshSmoothOff), m.Smooth)
	return r, nil
}

// object writes o into the already allocated record at. Children get one
// array sized up front and are written in place.
func (w *recordWriter) object(at Ref, o *Object, mats Ref, matCount int) error {
	if err := w.name(at, o.Name); err != nil {
		return err
	}
	for i, f := range o.LocalMatrix {
		w.a.PutFloat64(at.Add(objectMatrixOff+i*8), f)
	}

	children := w.a.Alloc(len(o.Children)*OBJECT_SIZE, RECORD_ALIGN)
	w.a.PutPointer(at.Add(objectChildrenOff), children)
	w.a.PutUint64(at.Add(objectChildCntOff), uint64(len(o.Children)))
	for i := range o.Children {
		if err := w.object(children.Add(i*OBJECT_SIZE), &o.Children[i], mats, matCount); err != nil {
			return err
		}
	}

	if o.Mesh != nil {
		mr, err := w.mesh(o.Mesh)
		if err != nil {
			return err
		}
		w.a.PutPointer(at.Add(objectMeshOff), mr)
	}

	slots := w.a.Alloc(len(o.MaterialSlots)*POINTER_SIZE, RECORD_ALIGN)
	for i, idx := range o.MaterialSlots {
		if idx < 0 {
			continue
		}
		if idx >= matCount {
			return fmt.Errorf("%w: object %q slot %d references material %d of %d", ErrMaterialSlot, o.Name, i, idx, matCount)
		}
		w.a.PutPointer(slots.Add(i*POINTER_SIZE), mats.Add(idx*MATERIAL_SIZE))
	}
	w.a.PutPointer(at.Add(objectSlotsOff), slots)
	w.a.PutUint64(at.Add(objectSlotCountOff), uint64(len(o.MaterialSlots)))
	return nil
}

// writeExportData lays out d. The material array is allocated before any
// object so slot pointers always target an existing block.
func writeExportData(a *Arena, d *ExportData, names *NameEncoder) (Ref, error) {
	w := &recordWriter{a: a, names: names}
	hdr := a.Alloc(EXPORT_DATA_SIZE, RECORD_ALIGN)
	a.PutBool(hdr.Add(exportIsBinaryOff), d.IsBinary)
	a.PutFloat64(hdr.Add(exportUnitScaleOff), d.UnitScale)

	mats, err := w.materials(d.Materials)
	if err != nil {
		return 0, err
	}
	a.PutPointer(hdr.Add(exportMaterialsOff), mats)
	a.PutUint64(hdr.Add(exportMaterialCountOff), uint64(len(d.Materials)))

	root := a.Alloc(OBJECT_SIZE, RECORD_ALIGN)
	if err := w.object(root, &d.Root, mats, len(d.Materials)); err != nil {
		return 0, err
	}
	a.PutPointer(hdr.Add(exportRootOff), root)
	return hdr, nil
}
