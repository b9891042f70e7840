// Package scenefile reads scenes described in YAML into fbxio host nodes.
package scenefile

import (
	"fmt"
	"os"

	dmat "github.com/flywave/go3d/float64/mat4"
	dvec2 "github.com/flywave/go3d/float64/vec2"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"gopkg.in/yaml.v3"

	fbxio "github.com/flywave/go-fbxio"
)

// File is the root of a scene description.
type File struct {
	UnitScale float64    `yaml:"unit_scale"`
	Materials []Material `yaml:"materials"`
	Objects   []Object   `yaml:"objects"`
}

// Material maps onto a principled shader. Omitted inputs keep the
// exporter defaults.
type Material struct {
	Name      string    `yaml:"name"`
	BaseColor []float64 `yaml:"base_color,omitempty"`
	Metallic  *float64  `yaml:"metallic,omitempty"`
	Roughness *float64  `yaml:"roughness,omitempty"`
	Emission  []float64 `yaml:"emission,omitempty"`
	Alpha     *float64  `yaml:"alpha,omitempty"`
	// Unshaded materials have no principled node.
	Unshaded bool `yaml:"unshaded,omitempty"`
}

type Object struct {
	Name        string    `yaml:"name"`
	Matrix      []float64 `yaml:"matrix,omitempty"` // 16 values, row-major
	Translation []float64 `yaml:"translation,omitempty"`
	Scale       []float64 `yaml:"scale,omitempty"`
	Materials   []string  `yaml:"materials,omitempty"` // "" is an empty slot
	Mesh        *Mesh     `yaml:"mesh,omitempty"`
	Children    []Object  `yaml:"children,omitempty"`
}

type Face struct {
	Vertices []uint32 `yaml:"v"`
	Material int      `yaml:"material,omitempty"`
}

type UVLayer struct {
	Name string       `yaml:"name"`
	UV   [][2]float64 `yaml:"uv"`
}

type Mesh struct {
	Name         string       `yaml:"name"`
	Vertices     [][3]float64 `yaml:"vertices"`
	Faces        []Face       `yaml:"faces"`
	UVs          []UVLayer    `yaml:"uvs,omitempty"`
	SplitNormals [][3]float64 `yaml:"split_normals,omitempty"`
	FaceNormals  [][3]float64 `yaml:"face_normals,omitempty"`
	// AutoFaceNormals derives face normals from the winding.
	AutoFaceNormals bool `yaml:"auto_face_normals,omitempty"`
	Smooth          bool `yaml:"smooth,omitempty"`
}

// Load reads and parses the scene at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return f, nil
}

// Nodes converts the description into host nodes. Objects naming the same
// material share one *fbxio.ShaderMaterial.
func (f *File) Nodes() ([]*fbxio.Node, error) {
	mats := make(map[string]*fbxio.ShaderMaterial, len(f.Materials))
	for _, m := range f.Materials {
		if _, dup := mats[m.Name]; dup {
			return nil, fmt.Errorf("material %q defined twice", m.Name)
		}
		mats[m.Name] = m.shader()
	}
	out := make([]*fbxio.Node, 0, len(f.Objects))
	for i := range f.Objects {
		n, err := f.Objects[i].node(mats)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// SceneObjects is Nodes as the exporter's input type.
func (f *File) SceneObjects() ([]fbxio.SceneObject, error) {
	nodes, err := f.Nodes()
	if err != nil {
		return nil, err
	}
	out := make([]fbxio.SceneObject, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (m *Material) shader() *fbxio.ShaderMaterial {
	sm := &fbxio.ShaderMaterial{MaterialName: m.Name}
	if m.Unshaded {
		return sm
	}
	node := &fbxio.PrincipledNode{Inputs: map[string][]float64{}}
	if m.BaseColor != nil {
		node.Set(fbxio.INPUT_BASE_COLOR, m.BaseColor...)
	}
	if m.Metallic != nil {
		node.Set(fbxio.INPUT_METALLIC, *m.Metallic)
	}
	if m.Roughness != nil {
		node.Set(fbxio.INPUT_ROUGHNESS, *m.Roughness)
	}
	if m.Emission != nil {
		node.Set(fbxio.INPUT_EMISSION, m.Emission...)
	}
	if m.Alpha != nil {
		node.Set(fbxio.INPUT_ALPHA, *m.Alpha)
	}
	sm.Principled = node
	return sm
}

func (o *Object) matrix() (dmat.T, error) {
	if len(o.Matrix) > 0 {
		if len(o.Matrix) != fbxio.MATRIX_ELEMENTS {
			return dmat.T{}, fmt.Errorf("object %q: matrix needs 16 values, got %d", o.Name, len(o.Matrix))
		}
		var f [fbxio.MATRIX_ELEMENTS]float64
		copy(f[:], o.Matrix)
		return fbxio.UnflattenMatrix(&f), nil
	}
	m := dmat.Ident
	if len(o.Scale) == 3 {
		m[0][0], m[1][1], m[2][2] = o.Scale[0], o.Scale[1], o.Scale[2]
	}
	if len(o.Translation) == 3 {
		m[3][0], m[3][1], m[3][2] = o.Translation[0], o.Translation[1], o.Translation[2]
	}
	return m, nil
}

func (o *Object) node(mats map[string]*fbxio.ShaderMaterial) (*fbxio.Node, error) {
	m, err := o.matrix()
	if err != nil {
		return nil, err
	}
	n := &fbxio.Node{NodeName: o.Name, Matrix: m}
	for _, name := range o.Materials {
		if name == "" {
			n.Slots = append(n.Slots, nil)
			continue
		}
		sm, ok := mats[name]
		if !ok {
			return nil, fmt.Errorf("object %q: unknown material %q", o.Name, name)
		}
		n.Slots = append(n.Slots, sm)
	}
	if o.Mesh != nil {
		n.Mesh = o.Mesh.polyMesh()
	}
	for i := range o.Children {
		c, err := o.Children[i].node(mats)
		if err != nil {
			return nil, err
		}
		n.Kids = append(n.Kids, c)
	}
	return n, nil
}

func vec3s(in [][3]float64) []dvec3.T {
	if in == nil {
		return nil
	}
	out := make([]dvec3.T, len(in))
	for i, v := range in {
		out[i] = dvec3.T(v)
	}
	return out
}

func (m *Mesh) polyMesh() *fbxio.PolyMesh {
	pm := &fbxio.PolyMesh{
		MeshName:     m.Name,
		Positions:    vec3s(m.Vertices),
		SplitNormals: vec3s(m.SplitNormals),
		PolyNormals:  vec3s(m.FaceNormals),
		Smooth:       m.Smooth,
	}
	if pm.Positions == nil {
		pm.Positions = []dvec3.T{}
	}
	for _, f := range m.Faces {
		pm.Faces = append(pm.Faces, fbxio.Polygon{Vertices: f.Vertices, MaterialSlot: f.Material})
	}
	for _, l := range m.UVs {
		layer := fbxio.UVLayer{Name: l.Name, UV: make([]dvec2.T, len(l.UV))}
		for i, uv := range l.UV {
			layer.UV[i] = dvec2.T(uv)
		}
		pm.Layers = append(pm.Layers, layer)
	}
	if m.AutoFaceNormals && pm.PolyNormals == nil && pm.SplitNormals == nil {
		pm.ComputeFaceNormals()
	}
	return pm
}
