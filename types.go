package fbxio

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ABI record sizes on LP64 targets. Pointers and size_t are 8 bytes, every
// record is 8-byte aligned.
const (
	POINTER_SIZE          = 8
	SIZE_T_SIZE           = 8
	VECTOR2_SIZE          = 16
	VECTOR4_SIZE          = 32
	STANDARD_SURFACE_SIZE = 584
	MATERIAL_SIZE         = 600
	UV_SIZE               = 24
	NORMAL_SIZE           = 24
	MESH_SIZE             = 112
	OBJECT_SIZE           = 184
	EXPORT_DATA_SIZE      = 40
	RECORD_ALIGN          = 8
)

const (
	ROOT_NAME        = "root"
	NORMAL_SET_NAME  = "Normal"
	NO_MATERIAL      = int32(-1)
	DEFAULT_UNIT     = 1.0
	DEFAULT_UV_NAME  = "UVMap"
	MATRIX_ELEMENTS  = 16
	MIN_FACE_CORNERS = 3
)

var (
	ErrMalformedMesh = errors.New("malformed mesh")
	ErrMaterialSlot  = errors.New("unresolvable material slot")
	ErrNativeExport  = errors.New("native export failed")
	ErrNativeImport  = errors.New("native import failed")
	ErrLifecycle     = errors.New("export buffer lifecycle violation")
	ErrLibraryClosed = errors.New("library is closed")
	ErrSymbolMissing = errors.New("native symbol missing")
	ErrBadPointer    = errors.New("bad pointer in export data")
	ErrUnknownFormat = errors.New("unknown output format")
)

// Format 输出文件格式
type Format uint8

const (
	FormatASCII Format = iota
	FormatBinary
)

func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "ascii"
}

// ParseFormat accepts "binary" or "ascii" in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "binary":
		return FormatBinary, nil
	case "ascii":
		return FormatASCII, nil
	}
	return FormatBinary, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

type Vector2 struct {
	X, Y float64
}

type Vector4 struct {
	X, Y, Z, W float64
}

func (v Vector4) Add(o Vector4) Vector4 {
	return Vector4{v.X + o.X, v.Y + o.Y, v.Z + o.Z, v.W + o.W}
}

func (v Vector4) Scale(f float64) Vector4 {
	return Vector4{v.X * f, v.Y * f, v.Z * f, v.W * f}
}

// ApproxEqual compares component-wise within eps.
func (v Vector4) ApproxEqual(o Vector4, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps &&
		math.Abs(v.Z-o.Z) <= eps && math.Abs(v.W-o.W) <= eps
}

// StandardSurface mirrors the native standard surface block field for
// field. Only float64 and Vector4 members, so encoding/binary lays it out
// exactly like the C struct.
type StandardSurface struct {
	Base                          float64
	BaseColor                     Vector4
	Emission                      float64
	EmissionColor                 Vector4
	Specular                      float64
	SpecularIOR                   float64
	SpecularColor                 Vector4
	SpecularAnisotropy            float64
	SpecularRoughness             float64
	SpecularRotation              float64
	Transmission                  float64
	TransmissionDepth             float64
	TransmissionColor             Vector4
	TransmissionScatter           Vector4
	TransmissionExtraRoughness    float64
	TransmissionDispersion        float64
	TransmissionScatterAnisotropy float64
	Sheen                         float64
	SheenColor                    Vector4
	SheenRoughness                float64
	Coat                          float64
	CoatAffectColor               Vector4
	CoatNormal                    Vector4
	CoatRoughness                 float64
	CoatColor                     Vector4
	CoatIOR                       float64
	CoatAffectRoughness           float64
	CoatRotation                  float64
	CoatAnisotropy                float64
	ThinWalled                    float64
	ThinFilmIOR                   float64
	ThinFilmThickness             float64
	Subsurface                    float64
	SubsurfaceScale               float64
	SubsurfaceAnisotropy          float64
	SubsurfaceRadius              Vector4
	SubsurfaceColor               Vector4
	Metalness                     float64
	Opacity                       float64
	DiffuseRoughness              float64
}

// Material 去重后的材质
type Material struct {
	Name    string
	Surface StandardSurface
}

// UVSet is one corner-indexed texture coordinate channel.
type UVSet struct {
	Name string
	UV   []Vector2
}

// NormalSet is one corner-indexed normal channel.
type NormalSet struct {
	Name    string
	Normals []Vector4
}

// Mesh is the flattened geometry of one object. Face i spans
// Indices[Polys[i]:Polys[i+1]], the last face ends at len(Indices).
type Mesh struct {
	Name            string
	Vertices        []Vector4
	Indices         []uint32
	Polys           []uint32
	MaterialIndices []int32
	UVSets          []UVSet
	NormalSets      []NormalSet
	Smooth          bool
}

func (m *Mesh) VertexCount() int { return len(m.Vertices) }
func (m *Mesh) IndexCount() int  { return len(m.Indices) }
func (m *Mesh) PolyCount() int   { return len(m.Polys) }

// FaceRange returns the [start, end) corner range of face i.
func (m *Mesh) FaceRange(i int) (int, int) {
	return faceRange(m.Polys, len(m.Indices), i)
}

func faceRange(polys []uint32, indexCount int, i int) (int, int) {
	start := int(polys[i])
	end := indexCount
	if i+1 < len(polys) {
		end = int(polys[i+1])
	}
	return start, end
}

// Object is one node of the exported hierarchy. MaterialSlots index into
// the export's material table, -1 marks an empty slot.
type Object struct {
	Name          string
	LocalMatrix   [MATRIX_ELEMENTS]float64
	Children      []Object
	Mesh          *Mesh
	MaterialSlots []int
}

// ExportData is the Go-side view of the top-level record.
type ExportData struct {
	IsBinary  bool
	UnitScale float64
	Root      Object
	Materials []Material
}

// Walk visits o and its descendants depth-first, parents first.
func (o *Object) Walk(fn func(obj *Object, depth int) bool) {
	o.walk(fn, 0)
}

func (o *Object) walk(fn func(obj *Object, depth int) bool, depth int) bool {
	if !fn(o, depth) {
		return false
	}
	for i := range o.Children {
		if !o.Children[i].walk(fn, depth+1) {
			return false
		}
	}
	return true
}

// Find returns the first descendant (or o itself) named name.
func (o *Object) Find(name string) *Object {
	var found *Object
	o.Walk(func(obj *Object, _ int) bool {
		if obj.Name == name {
			found = obj
			return false
		}
		return true
	})
	return found
}
