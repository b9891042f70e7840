package fbxio

import (
	"bytes"
	"fmt"

	dmat "github.com/flywave/go3d/float64/mat4"
	dvec2 "github.com/flywave/go3d/float64/vec2"
	dvec3 "github.com/flywave/go3d/float64/vec3"
	"github.com/qmuntal/gltf"
)

var emptyMatrix = [16]float32{}

// SceneFromGltf builds host nodes from the default scene of doc. glTF
// materials become shared ShaderMaterials so identical references dedupe.
func SceneFromGltf(doc *gltf.Document) ([]SceneObject, error) {
	c := &gltfConverter{doc: doc, materials: make(map[uint32]*ShaderMaterial)}
	var roots []uint32
	switch {
	case doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		roots = doc.Scenes[0].Nodes
	default:
		roots = c.parentless()
	}
	out := make([]SceneObject, 0, len(roots))
	for _, r := range roots {
		n, err := c.node(r, 0)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

type gltfConverter struct {
	doc       *gltf.Document
	materials map[uint32]*ShaderMaterial
}

func (c *gltfConverter) parentless() []uint32 {
	child := make(map[uint32]bool)
	for _, n := range c.doc.Nodes {
		for _, k := range n.Children {
			child[k] = true
		}
	}
	var out []uint32
	for i := range c.doc.Nodes {
		if !child[uint32(i)] {
			out = append(out, uint32(i))
		}
	}
	return out
}

func (c *gltfConverter) node(idx uint32, depth int) (*Node, error) {
	if int(idx) >= len(c.doc.Nodes) {
		return nil, fmt.Errorf("node %d out of range", idx)
	}
	if depth > maxDecodeDepth {
		return nil, fmt.Errorf("node hierarchy deeper than %d", maxDecodeDepth)
	}
	gn := c.doc.Nodes[idx]
	n := &Node{NodeName: gn.Name, Matrix: nodeMatrix(gn)}
	if n.NodeName == "" {
		n.NodeName = fmt.Sprintf("node_%d", idx)
	}
	for _, k := range gn.Children {
		child, err := c.node(k, depth+1)
		if err != nil {
			return nil, err
		}
		n.Kids = append(n.Kids, child)
	}
	if gn.Mesh != nil {
		if err := c.mesh(n, *gn.Mesh); err != nil {
			return nil, fmt.Errorf("node %q: %w", n.NodeName, err)
		}
	}
	return n, nil
}

func toMat(m [16]float32) dmat.T {
	var out dmat.T
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = float64(m[c*4+r])
		}
	}
	return out
}

// nodeMatrix prefers the explicit matrix and otherwise composes T * R * S.
func nodeMatrix(n *gltf.Node) dmat.T {
	if n.Matrix != emptyMatrix {
		return toMat(n.Matrix)
	}
	t := n.Translation
	q := n.Rotation
	if q == [4]float32{} {
		q = [4]float32{0, 0, 0, 1}
	}
	s := n.Scale
	if s == [3]float32{} {
		s = [3]float32{1, 1, 1}
	}
	x, y, z, w := float64(q[0]), float64(q[1]), float64(q[2]), float64(q[3])
	sx, sy, sz := float64(s[0]), float64(s[1]), float64(s[2])

	var m dmat.T
	m[0] = [4]float64{(1 - 2*(y*y+z*z)) * sx, 2 * (x*y + z*w) * sx, 2 * (x*z - y*w) * sx, 0}
	m[1] = [4]float64{2 * (x*y - z*w) * sy, (1 - 2*(x*x+z*z)) * sy, 2 * (y*z + x*w) * sy, 0}
	m[2] = [4]float64{2 * (x*z + y*w) * sz, 2 * (y*z - x*w) * sz, (1 - 2*(x*x+y*y)) * sz, 0}
	m[3] = [4]float64{float64(t[0]), float64(t[1]), float64(t[2]), 1}
	return m
}

func (c *gltfConverter) material(idx uint32) (*ShaderMaterial, error) {
	if sm, ok := c.materials[idx]; ok {
		return sm, nil
	}
	if int(idx) >= len(c.doc.Materials) {
		return nil, fmt.Errorf("material %d out of range", idx)
	}
	gm := c.doc.Materials[idx]
	node := &PrincipledNode{}
	base := [4]float32{1, 1, 1, 1}
	metal, rough := float32(1), float32(1)
	if pbr := gm.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			base = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			metal = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			rough = *pbr.RoughnessFactor
		}
	}
	node.Set(INPUT_BASE_COLOR, float64(base[0]), float64(base[1]), float64(base[2]), float64(base[3]))
	node.Set(INPUT_METALLIC, float64(metal))
	node.Set(INPUT_ROUGHNESS, float64(rough))
	e := gm.EmissiveFactor
	node.Set(INPUT_EMISSION, float64(e[0]), float64(e[1]), float64(e[2]))

	name := gm.Name
	if name == "" {
		name = fmt.Sprintf("material_%d", idx)
	}
	sm := &ShaderMaterial{MaterialName: name, Principled: node}
	c.materials[idx] = sm
	return sm, nil
}

// accessorBytes returns one byte slice per element of acc.
func (c *gltfConverter) accessorBytes(idx uint32) ([][]byte, *gltf.Accessor, error) {
	if int(idx) >= len(c.doc.Accessors) {
		return nil, nil, fmt.Errorf("accessor %d out of range", idx)
	}
	acc := c.doc.Accessors[idx]
	if acc.BufferView == nil {
		return nil, nil, fmt.Errorf("accessor %d has no buffer view", idx)
	}
	view := c.doc.BufferViews[*acc.BufferView]
	data := c.doc.Buffers[view.Buffer].Data
	size := componentSize(acc.ComponentType) * typeComponents(acc.Type)
	if size == 0 {
		return nil, nil, fmt.Errorf("accessor %d has unsupported layout", idx)
	}
	stride := int(view.ByteStride)
	if stride == 0 {
		stride = size
	}
	base := int(view.ByteOffset) + int(acc.ByteOffset)
	out := make([][]byte, acc.Count)
	for i := range out {
		off := base + i*stride
		if off+size > len(data) {
			return nil, nil, fmt.Errorf("accessor %d element %d past buffer end", idx, i)
		}
		out[i] = data[off : off+size]
	}
	return out, acc, nil
}

func componentSize(t gltf.ComponentType) int {
	switch t {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	}
	return 0
}

func typeComponents(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	}
	return 0
}

func (c *gltfConverter) readIndices(idx uint32) ([]uint32, error) {
	elems, acc, err := c.accessorBytes(idx)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(elems))
	for i, e := range elems {
		rd := bytes.NewReader(e)
		switch acc.ComponentType {
		case gltf.ComponentUbyte:
			var v uint8
			readLittleByte(rd, &v)
			out[i] = uint32(v)
		case gltf.ComponentUshort:
			var v uint16
			readLittleByte(rd, &v)
			out[i] = uint32(v)
		case gltf.ComponentUint:
			readLittleByte(rd, &out[i])
		default:
			return nil, fmt.Errorf("unsupported index component type %v", acc.ComponentType)
		}
	}
	return out, nil
}

func (c *gltfConverter) readFloats(idx uint32, n int) ([][]float64, error) {
	elems, acc, err := c.accessorBytes(idx)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("accessor %d: expected float components", idx)
	}
	out := make([][]float64, len(elems))
	for i, e := range elems {
		v := make([]float32, n)
		if err := readLittleByte(bytes.NewReader(e), v); err != nil {
			return nil, err
		}
		out[i] = make([]float64, n)
		for k := range v {
			out[i][k] = float64(v[k])
		}
	}
	return out, nil
}

// mesh merges every triangle primitive of a glTF mesh into one PolyMesh
// and gives n one material slot per distinct glTF material.
func (c *gltfConverter) mesh(n *Node, idx uint32) error {
	if int(idx) >= len(c.doc.Meshes) {
		return fmt.Errorf("mesh %d out of range", idx)
	}
	gm := c.doc.Meshes[idx]
	pm := &PolyMesh{MeshName: gm.Name}
	if pm.MeshName == "" {
		pm.MeshName = n.NodeName
	}
	slots := make(map[uint32]int)
	noMaterial := -1
	var normals, uvs []dvec3.T
	var hasNormals, hasUVs bool

	for _, ps := range gm.Primitives {
		if ps.Mode != gltf.PrimitiveTriangles {
			continue
		}
		posIdx, ok := ps.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		pos, err := c.readFloats(posIdx, 3)
		if err != nil {
			return err
		}
		offset := uint32(len(pm.Positions))
		for _, p := range pos {
			pm.Positions = append(pm.Positions, dvec3.T{p[0], p[1], p[2]})
		}

		var primNormals, primUVs [][]float64
		if ni, ok := ps.Attributes[gltf.NORMAL]; ok {
			if primNormals, err = c.readFloats(ni, 3); err != nil {
				return err
			}
			hasNormals = true
		}
		if ti, ok := ps.Attributes[gltf.TEXCOORD_0]; ok {
			if primUVs, err = c.readFloats(ti, 2); err != nil {
				return err
			}
			hasUVs = true
		}

		var indices []uint32
		if ps.Indices != nil {
			if indices, err = c.readIndices(*ps.Indices); err != nil {
				return err
			}
		} else {
			indices = make([]uint32, len(pos))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		var slot int
		if ps.Material == nil {
			if noMaterial < 0 {
				noMaterial = len(n.Slots)
				n.Slots = append(n.Slots, nil)
			}
			slot = noMaterial
		} else {
			s, ok := slots[*ps.Material]
			if !ok {
				sm, err := c.material(*ps.Material)
				if err != nil {
					return err
				}
				s = len(n.Slots)
				n.Slots = append(n.Slots, sm)
				slots[*ps.Material] = s
			}
			slot = s
		}

		for t := 0; t+2 < len(indices); t += 3 {
			face := Polygon{MaterialSlot: slot}
			for k := 0; k < 3; k++ {
				vi := indices[t+k]
				if int(vi) >= len(pos) {
					return fmt.Errorf("%w: index %d of %d positions", ErrMalformedMesh, vi, len(pos))
				}
				face.Vertices = append(face.Vertices, vi+offset)
				var nv, uv dvec3.T
				if int(vi) < len(primNormals) {
					nv = dvec3.T{primNormals[vi][0], primNormals[vi][1], primNormals[vi][2]}
				}
				if int(vi) < len(primUVs) {
					uv = dvec3.T{primUVs[vi][0], 1 - primUVs[vi][1], 0}
				}
				normals = append(normals, nv)
				uvs = append(uvs, uv)
			}
			pm.Faces = append(pm.Faces, face)
		}
	}

	if len(slots) == 0 {
		n.Slots = nil
		for i := range pm.Faces {
			pm.Faces[i].MaterialSlot = 0
		}
	}
	if hasNormals {
		pm.SplitNormals = normals
	}
	if hasUVs {
		layer := UVLayer{Name: DEFAULT_UV_NAME, UV: make([]dvec2.T, len(uvs))}
		for i, uv := range uvs {
			layer.UV[i] = dvec2.T{uv[0], uv[1]}
		}
		pm.Layers = append(pm.Layers, layer)
	}
	n.Mesh = pm
	return nil
}
