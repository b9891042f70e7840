package fbxio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"
)

// TestRecordSizes 测试记录大小与原生结构一致
func TestRecordSizes(t *testing.T) {
	if n := binary.Size(StandardSurface{}); n != STANDARD_SURFACE_SIZE {
		t.Errorf("StandardSurface encodes to %d bytes, want %d", n, STANDARD_SURFACE_SIZE)
	}
	if MATERIAL_SIZE != materialSurfaceOff+STANDARD_SURFACE_SIZE {
		t.Errorf("material record is %d bytes", MATERIAL_SIZE)
	}
	if MESH_SIZE != meshSmoothOff+8 {
		t.Errorf("mesh record is %d bytes", MESH_SIZE)
	}
	if OBJECT_SIZE != objectSlotCountOff+SIZE_T_SIZE {
		t.Errorf("object record is %d bytes", OBJECT_SIZE)
	}
	if objectChildrenOff != objectMatrixOff+MATRIX_ELEMENTS*8 {
		t.Errorf("children follow the matrix at %d", objectChildrenOff)
	}
	if EXPORT_DATA_SIZE != exportMaterialCountOff+SIZE_T_SIZE {
		t.Errorf("export data record is %d bytes", EXPORT_DATA_SIZE)
	}
}

func TestSurfaceLayout(t *testing.T) {
	s := NewStandardSurface()
	s.BaseColor = Vector4{0.1, 0.2, 0.3, 0.4}
	s.DiffuseRoughness = 0.9
	b := toLittleByteOrder(&s)
	if math.Float64frombits(binary.LittleEndian.Uint64(b[0:])) != 1 {
		t.Error("base is not the first field")
	}
	if math.Float64frombits(binary.LittleEndian.Uint64(b[8+16:])) != 0.3 {
		t.Error("base color does not follow base")
	}
	if math.Float64frombits(binary.LittleEndian.Uint64(b[STANDARD_SURFACE_SIZE-8:])) != 0.9 {
		t.Error("diffuse roughness is not the last field")
	}

	var back StandardSurface
	if err := readLittleByte(bytes.NewReader(b), &back); err != nil {
		t.Fatal(err)
	}
	if back != s {
		t.Errorf("surface changed through encoding")
	}
}

func writeTestScene(t *testing.T) (*Arena, Ref, *ExportData) {
	t.Helper()
	d, err := BuildExportData(newTestScene().objects(), BuildOptions{Format: FormatBinary, UnitScale: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	a := NewArena(estimateSize(d))
	hdr, err := writeExportData(a, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.Seal()
	return a, hdr, d
}

func TestWriteExportData(t *testing.T) {
	a, hdr, _ := writeTestScene(t)
	buf := a.Bytes()
	at := func(r Ref, off int) uint64 { return binary.LittleEndian.Uint64(buf[int(r)+off:]) }
	ref := func(addr uint64) Ref {
		r, err := a.RefOf(addr)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}

	if buf[int(hdr)+exportIsBinaryOff] != 1 {
		t.Error("is_binary not set")
	}
	if math.Float64frombits(at(hdr, exportUnitScaleOff)) != 0.01 {
		t.Error("unit scale not written")
	}
	if at(hdr, exportMaterialCountOff) != 2 {
		t.Errorf("material count = %d", at(hdr, exportMaterialCountOff))
	}
	mats := at(hdr, exportMaterialsOff)

	root := ref(at(hdr, exportRootOff))
	name := ref(at(root, nameOff))
	if at(root, nameLengthOff) != 4 || string(buf[name:name+4]) != ROOT_NAME || buf[name+4] != 0 {
		t.Error("root name is not a terminated \"root\"")
	}
	for i := 0; i < MATRIX_ELEMENTS; i++ {
		want := 0.0
		if i%5 == 0 {
			want = 1
		}
		if math.Float64frombits(at(root, objectMatrixOff+i*8)) != want {
			t.Fatalf("root matrix element %d is not identity", i)
		}
	}
	if at(root, objectChildCntOff) != 2 || at(root, objectMeshOff) != 0 {
		t.Error("root must have two children and no mesh")
	}

	cube := ref(at(root, objectChildrenOff))
	if at(cube, objectSlotCountOff) != 2 {
		t.Fatalf("cube slot count = %d", at(cube, objectSlotCountOff))
	}
	slots := ref(at(cube, objectSlotsOff))
	if at(slots, 0) != mats || at(slots, 8) != 0 {
		t.Errorf("cube slots = 0x%x 0x%x, want 0x%x 0", at(slots, 0), at(slots, 8), mats)
	}

	mesh := ref(at(cube, objectMeshOff))
	if at(mesh, meshVertexCountOff) != 8 || at(mesh, meshIndexCountOff) != 24 || at(mesh, meshPolyCountOff) != 6 {
		t.Error("cube mesh counts wrong")
	}
	mi := ref(at(mesh, meshMaterialIndicesOff))
	if got := int32(binary.LittleEndian.Uint32(buf[mi+2*4:])); got != 1 {
		t.Errorf("face 2 material index = %d", got)
	}
	verts := ref(at(mesh, meshVerticesOff))
	if math.Float64frombits(at(verts, 24)) != 1 {
		t.Error("vertex w must be 1")
	}
	if at(mesh, meshNormalSetCountOff) != 1 || buf[int(mesh)+meshSmoothOff] != 1 {
		t.Error("cube needs one normal set and smooth shading")
	}

	lamp := cube.Add(OBJECT_SIZE)
	if at(lamp, objectMeshOff) != 0 || at(lamp, objectSlotCountOff) != 0 {
		t.Error("lamp must have no mesh and no slots")
	}
}

// TestWriteSharedMaterial 测试多个对象共用同一材质
func TestWriteSharedMaterial(t *testing.T) {
	shared := &ShaderMaterial{MaterialName: "Shared"}
	var objs []SceneObject
	for i, mesh := range []*PolyMesh{cubeMesh(), panelMesh(), cubeMesh()} {
		n := NewNode(string(rune('A' + i)))
		n.Mesh = mesh
		n.Slots = []*ShaderMaterial{shared, shared}
		objs = append(objs, n)
	}
	d, err := BuildExportData(objs, BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Materials) != 1 {
		t.Fatalf("built %d materials, want 1", len(d.Materials))
	}

	a := NewArena(estimateSize(d))
	hdr, err := writeExportData(a, d, nil)
	if err != nil {
		t.Fatal(err)
	}
	a.Seal()
	buf := a.Bytes()
	at := func(r Ref, off int) uint64 { return binary.LittleEndian.Uint64(buf[int(r)+off:]) }
	if at(hdr, exportMaterialCountOff) != 1 {
		t.Fatalf("material count = %d", at(hdr, exportMaterialCountOff))
	}
	mats := at(hdr, exportMaterialsOff)

	root, err := a.RefOf(at(hdr, exportRootOff))
	if err != nil {
		t.Fatal(err)
	}
	if at(root, objectChildCntOff) != uint64(len(objs)) {
		t.Fatalf("root has %d children", at(root, objectChildCntOff))
	}
	first, err := a.RefOf(at(root, objectChildrenOff))
	if err != nil {
		t.Fatal(err)
	}
	for i := range objs {
		obj := first.Add(i * OBJECT_SIZE)
		if at(obj, objectSlotCountOff) != 2 {
			t.Fatalf("object %d slot count = %d", i, at(obj, objectSlotCountOff))
		}
		slots, err := a.RefOf(at(obj, objectSlotsOff))
		if err != nil {
			t.Fatal(err)
		}
		for j := 0; j < 2; j++ {
			if got := at(slots, j*POINTER_SIZE); got != mats {
				t.Errorf("object %d slot %d = 0x%x, want materials base 0x%x", i, j, got, mats)
			}
		}
	}

	got, err := Decode(a, a.Addr(hdr), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got.Root.Children {
		if !reflect.DeepEqual(c.MaterialSlots, []int{0, 0}) {
			t.Errorf("%s decoded slots = %v, want [0 0]", c.Name, c.MaterialSlots)
		}
	}
}

// TestDecodeRoundTrip 测试写入后解码一致
func TestDecodeRoundTrip(t *testing.T) {
	a, hdr, d := writeTestScene(t)
	got, err := Decode(a, a.Addr(hdr), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, d) {
		t.Errorf("decoded data differs\n got %+v\nwant %+v", got, d)
	}
}

func TestDecodeBadPointers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Arena, hdr Ref)
	}{
		{"null root", func(a *Arena, hdr Ref) {
			binary.LittleEndian.PutUint64(a.Bytes()[int(hdr)+exportRootOff:], 0)
		}},
		{"root outside arena", func(a *Arena, hdr Ref) {
			binary.LittleEndian.PutUint64(a.Bytes()[int(hdr)+exportRootOff:], a.Base()+uint64(a.Len())+64)
		}},
		{"null materials", func(a *Arena, hdr Ref) {
			binary.LittleEndian.PutUint64(a.Bytes()[int(hdr)+exportMaterialsOff:], 0)
		}},
		{"huge material count", func(a *Arena, hdr Ref) {
			binary.LittleEndian.PutUint64(a.Bytes()[int(hdr)+exportMaterialCountOff:], 1<<40)
		}},
		{"slot between materials", func(a *Arena, hdr Ref) {
			root, _ := a.RefOf(binary.LittleEndian.Uint64(a.Bytes()[int(hdr)+exportRootOff:]))
			cube, _ := a.RefOf(binary.LittleEndian.Uint64(a.Bytes()[int(root)+objectChildrenOff:]))
			slots, _ := a.RefOf(binary.LittleEndian.Uint64(a.Bytes()[int(cube)+objectSlotsOff:]))
			s := a.Bytes()[slots:]
			binary.LittleEndian.PutUint64(s, binary.LittleEndian.Uint64(s)+8)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, hdr, _ := writeTestScene(t)
			tt.mutate(a, hdr)
			if _, err := Decode(a, a.Addr(hdr), nil); !errors.Is(err, ErrBadPointer) {
				t.Errorf("Decode() error = %v, want ErrBadPointer", err)
			}
		})
	}

	if _, err := Decode(NewArena(0), 0, nil); !errors.Is(err, ErrBadPointer) {
		t.Errorf("null export data: %v", err)
	}
}

func TestWriteUnknownSlot(t *testing.T) {
	d := &ExportData{
		Root: Object{
			Name:     ROOT_NAME,
			Children: []Object{{Name: "Bad", MaterialSlots: []int{3}}},
		},
	}
	if _, err := writeExportData(NewArena(0), d, nil); !errors.Is(err, ErrMaterialSlot) {
		t.Errorf("writeExportData() error = %v, want ErrMaterialSlot", err)
	}
}
