package fbxio

import (
	dmat "github.com/flywave/go3d/float64/mat4"
	dvec2 "github.com/flywave/go3d/float64/vec2"
	dvec3 "github.com/flywave/go3d/float64/vec3"
)

// SceneObject is the read-only view of one host scene node.
type SceneObject interface {
	Name() string
	LocalMatrix() dmat.T
	Children() []SceneObject
	// Geometry reports the renderable mesh, ok is false for empties,
	// cameras, lights and groups.
	Geometry() (SourceMesh, bool)
	// MaterialSlots lists the object's slots in order, nil marks an
	// empty slot.
	MaterialSlots() []SourceMaterial
}

// Polygon is one source face. MaterialSlot uses the host's numbering.
type Polygon struct {
	Vertices     []uint32
	MaterialSlot int
}

// UVLayer holds one coordinate per face corner.
type UVLayer struct {
	Name string
	UV   []dvec2.T
}

type SourceMesh interface {
	Name() string
	Vertices() []dvec3.T
	Polygons() []Polygon
	UVLayers() []UVLayer
	// CornerNormals are custom split normals, one per face corner.
	CornerNormals() ([]dvec3.T, bool)
	// FaceNormals are one normal per polygon.
	FaceNormals() ([]dvec3.T, bool)
	IsSmooth() bool
}

// SourceMaterial is compared by identity, implementations must be pointers.
type SourceMaterial interface {
	Name() string
	PrincipalNode() (ShaderNode, bool)
}

// ShaderNode exposes the default values of a principled shader's inputs.
type ShaderNode interface {
	Input(name string) ([]float64, bool)
}

// PolyMesh 内存中的多边形网格
type PolyMesh struct {
	MeshName     string
	Positions    []dvec3.T
	Faces        []Polygon
	Layers       []UVLayer
	SplitNormals []dvec3.T
	PolyNormals  []dvec3.T
	Smooth       bool
}

func (m *PolyMesh) Name() string        { return m.MeshName }
func (m *PolyMesh) Vertices() []dvec3.T { return m.Positions }
func (m *PolyMesh) Polygons() []Polygon { return m.Faces }
func (m *PolyMesh) UVLayers() []UVLayer { return m.Layers }
func (m *PolyMesh) IsSmooth() bool      { return m.Smooth }

func (m *PolyMesh) CornerNormals() ([]dvec3.T, bool) {
	return m.SplitNormals, m.SplitNormals != nil
}

func (m *PolyMesh) FaceNormals() ([]dvec3.T, bool) {
	return m.PolyNormals, m.PolyNormals != nil
}

// ComputeFaceNormals fills PolyNormals from the winding of each face.
func (m *PolyMesh) ComputeFaceNormals() {
	m.PolyNormals = make([]dvec3.T, len(m.Faces))
	for i, f := range m.Faces {
		m.PolyNormals[i] = newellNormal(m.Positions, f.Vertices)
	}
}

// newellNormal is robust for non planar and concave n-gons.
func newellNormal(pos []dvec3.T, face []uint32) dvec3.T {
	var n dvec3.T
	for i := range face {
		a, b := face[i], face[(i+1)%len(face)]
		if int(a) >= len(pos) || int(b) >= len(pos) {
			return dvec3.T{}
		}
		cur, next := pos[a], pos[b]
		n[0] += (cur[1] - next[1]) * (cur[2] + next[2])
		n[1] += (cur[2] - next[2]) * (cur[0] + next[0])
		n[2] += (cur[0] - next[0]) * (cur[1] + next[1])
	}
	if l := n.Length(); l > 0 {
		n.Scale(1 / l)
	}
	return n
}

// PrincipledNode stores input defaults keyed by socket name.
type PrincipledNode struct {
	Inputs map[string][]float64
}

func (n *PrincipledNode) Input(name string) ([]float64, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.Inputs[name]
	return v, ok
}

// Set assigns an input and returns the node for chaining.
func (n *PrincipledNode) Set(name string, v ...float64) *PrincipledNode {
	if n.Inputs == nil {
		n.Inputs = make(map[string][]float64)
	}
	n.Inputs[name] = v
	return n
}

type ShaderMaterial struct {
	MaterialName string
	Principled   *PrincipledNode
}

func (m *ShaderMaterial) Name() string { return m.MaterialName }

func (m *ShaderMaterial) PrincipalNode() (ShaderNode, bool) {
	if m.Principled == nil {
		return nil, false
	}
	return m.Principled, true
}

// Node 内存中的场景节点
type Node struct {
	NodeName string
	Matrix   dmat.T
	Kids     []*Node
	Mesh     *PolyMesh
	Slots    []*ShaderMaterial
}

func NewNode(name string) *Node {
	return &Node{NodeName: name, Matrix: dmat.Ident}
}

func (n *Node) Name() string        { return n.NodeName }
func (n *Node) LocalMatrix() dmat.T { return n.Matrix }

func (n *Node) Children() []SceneObject {
	out := make([]SceneObject, len(n.Kids))
	for i, k := range n.Kids {
		out[i] = k
	}
	return out
}

func (n *Node) Geometry() (SourceMesh, bool) {
	if n.Mesh == nil {
		return nil, false
	}
	return n.Mesh, true
}

func (n *Node) MaterialSlots() []SourceMaterial {
	out := make([]SourceMaterial, len(n.Slots))
	for i, s := range n.Slots {
		if s != nil {
			out[i] = s
		}
	}
	return out
}

// AddChild appends c and returns n.
func (n *Node) AddChild(c ...*Node) *Node {
	n.Kids = append(n.Kids, c...)
	return n
}

// FlattenMatrix converts a column-major go3d matrix to the row-major
// sixteen float layout of the native record.
func FlattenMatrix(m *dmat.T) [MATRIX_ELEMENTS]float64 {
	var out [MATRIX_ELEMENTS]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m[c][r]
		}
	}
	return out
}

// UnflattenMatrix is the inverse of FlattenMatrix.
func UnflattenMatrix(f *[MATRIX_ELEMENTS]float64) dmat.T {
	var m dmat.T
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[c][r] = f[r*4+c]
		}
	}
	return m
}

// SceneFromObject turns a decoded object tree back into host scene nodes,
// sharing one ShaderMaterial per entry of mats.
func SceneFromObject(root *Object, mats []Material) []*Node {
	shared := make([]*ShaderMaterial, len(mats))
	for i := range mats {
		shared[i] = materialFromSurface(&mats[i])
	}
	out := make([]*Node, 0, len(root.Children))
	for i := range root.Children {
		out = append(out, nodeFromObject(&root.Children[i], shared))
	}
	return out
}

func nodeFromObject(o *Object, mats []*ShaderMaterial) *Node {
	n := &Node{NodeName: o.Name, Matrix: UnflattenMatrix(&o.LocalMatrix)}
	for i := range o.Children {
		n.Kids = append(n.Kids, nodeFromObject(&o.Children[i], mats))
	}
	for _, idx := range o.MaterialSlots {
		if idx >= 0 && idx < len(mats) {
			n.Slots = append(n.Slots, mats[idx])
		} else {
			n.Slots = append(n.Slots, nil)
		}
	}
	if o.Mesh != nil {
		n.Mesh = polyMeshFromMesh(o.Mesh)
	}
	return n
}

func polyMeshFromMesh(m *Mesh) *PolyMesh {
	pm := &PolyMesh{MeshName: m.Name, Smooth: m.Smooth}
	pm.Positions = make([]dvec3.T, len(m.Vertices))
	for i, v := range m.Vertices {
		pm.Positions[i] = dvec3.T{v.X, v.Y, v.Z}
	}
	pm.Faces = make([]Polygon, len(m.Polys))
	for i := range m.Polys {
		s, e := m.FaceRange(i)
		// decoded indices are 0-based, -1 stays "no material"
		slot := -1
		if i < len(m.MaterialIndices) {
			slot = int(m.MaterialIndices[i])
		}
		pm.Faces[i] = Polygon{Vertices: append([]uint32(nil), m.Indices[s:e]...), MaterialSlot: slot}
	}
	for _, set := range m.UVSets {
		l := UVLayer{Name: set.Name, UV: make([]dvec2.T, len(set.UV))}
		for i, uv := range set.UV {
			l.UV[i] = dvec2.T{uv.X, uv.Y}
		}
		pm.Layers = append(pm.Layers, l)
	}
	if len(m.NormalSets) > 0 {
		ns := m.NormalSets[0].Normals
		pm.SplitNormals = make([]dvec3.T, len(ns))
		for i, n := range ns {
			pm.SplitNormals[i] = dvec3.T{n.X, n.Y, n.Z}
		}
	}
	return pm
}
