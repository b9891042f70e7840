package fbxio

// principled shader socket names
const (
	INPUT_BASE_COLOR = "Base Color"
	INPUT_METALLIC   = "Metallic"
	INPUT_ROUGHNESS  = "Roughness"
	INPUT_EMISSION   = "Emission"
	INPUT_ALPHA      = "Alpha"
)

const (
	DEFAULT_METALLIC  = 0.0
	DEFAULT_ROUGHNESS = 0.5
	DEFAULT_IOR       = 1.5
)

var (
	white = Vector4{1, 1, 1, 1}
	black = Vector4{0, 0, 0, 1}
)

// NewStandardSurface returns the neutral Standard Surface block: white
// opaque dielectric, roughness 0.5, no emission.
func NewStandardSurface() StandardSurface {
	return StandardSurface{
		Base:              1,
		BaseColor:         white,
		Emission:          1,
		EmissionColor:     black,
		Specular:          1,
		SpecularIOR:       DEFAULT_IOR,
		SpecularColor:     white,
		SpecularRoughness: DEFAULT_ROUGHNESS,
		TransmissionColor: white,
		SheenColor:        white,
		CoatColor:         white,
		CoatIOR:           DEFAULT_IOR,
		ThinFilmIOR:       DEFAULT_IOR,
		SubsurfaceScale:   1,
		SubsurfaceRadius:  white,
		SubsurfaceColor:   white,
		Metalness:         DEFAULT_METALLIC,
		Opacity:           1,
	}
}

func vec4Input(node ShaderNode, name string, def Vector4) Vector4 {
	v, ok := node.Input(name)
	if !ok {
		return def
	}
	out := def
	if len(v) > 0 {
		out.X = v[0]
	}
	if len(v) > 1 {
		out.Y = v[1]
	}
	if len(v) > 2 {
		out.Z = v[2]
	}
	if len(v) > 3 {
		out.W = v[3]
	}
	return out
}

func scalarInput(node ShaderNode, name string, def float64) float64 {
	v, ok := node.Input(name)
	if !ok || len(v) == 0 {
		return def
	}
	return v[0]
}

// SurfaceFromMaterial reads base color, metallic, roughness and emission
// from the principal shader node. Materials without one get the neutral
// surface.
func SurfaceFromMaterial(src SourceMaterial) StandardSurface {
	s := NewStandardSurface()
	if src == nil {
		return s
	}
	node, ok := src.PrincipalNode()
	if !ok || node == nil {
		return s
	}
	s.BaseColor = vec4Input(node, INPUT_BASE_COLOR, white)
	if a, ok := node.Input(INPUT_ALPHA); ok && len(a) > 0 {
		s.BaseColor.W = a[0]
	}
	s.Metalness = scalarInput(node, INPUT_METALLIC, DEFAULT_METALLIC)
	s.SpecularRoughness = scalarInput(node, INPUT_ROUGHNESS, DEFAULT_ROUGHNESS)
	s.EmissionColor = vec4Input(node, INPUT_EMISSION, black)
	s.EmissionColor.W = 1
	s.SpecularColor = s.BaseColor
	s.SpecularColor.W = 1
	s.Opacity = s.BaseColor.W
	return s
}

// materialFromSurface rebuilds a principled material from a decoded record.
func materialFromSurface(m *Material) *ShaderMaterial {
	s := &m.Surface
	node := &PrincipledNode{}
	node.Set(INPUT_BASE_COLOR, s.BaseColor.X, s.BaseColor.Y, s.BaseColor.Z, s.BaseColor.W)
	node.Set(INPUT_METALLIC, s.Metalness)
	node.Set(INPUT_ROUGHNESS, s.SpecularRoughness)
	node.Set(INPUT_EMISSION, s.EmissionColor.X, s.EmissionColor.Y, s.EmissionColor.Z)
	node.Set(INPUT_ALPHA, s.Opacity)
	return &ShaderMaterial{MaterialName: m.Name, Principled: node}
}

// MaterialTable is the deduplicated material list of one export, in first
// seen order.
type MaterialTable struct {
	Materials []Material
	index     map[SourceMaterial]int
}

// BuildMaterialTable walks objs depth-first and records every material
// referenced by a slot of an object with geometry. A material shared by
// several objects or slots appears once.
func BuildMaterialTable(objs []SceneObject) *MaterialTable {
	t := &MaterialTable{index: make(map[SourceMaterial]int)}
	for _, o := range objs {
		t.collect(o)
	}
	return t
}

func (t *MaterialTable) collect(o SceneObject) {
	if _, ok := o.Geometry(); ok {
		for _, m := range o.MaterialSlots() {
			t.Add(m)
		}
	}
	for _, c := range o.Children() {
		t.collect(c)
	}
}

// Add registers src and returns its index. Nil is the empty slot, -1.
func (t *MaterialTable) Add(src SourceMaterial) int {
	if src == nil {
		return -1
	}
	if i, ok := t.index[src]; ok {
		return i
	}
	i := len(t.Materials)
	t.Materials = append(t.Materials, Material{Name: src.Name(), Surface: SurfaceFromMaterial(src)})
	t.index[src] = i
	return i
}

// Lookup returns the index of src, -1 with ok true for the empty slot.
func (t *MaterialTable) Lookup(src SourceMaterial) (int, bool) {
	if src == nil {
		return -1, true
	}
	i, ok := t.index[src]
	return i, ok
}

func (t *MaterialTable) Len() int { return len(t.Materials) }
