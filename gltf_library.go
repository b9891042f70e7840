package fbxio

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

const GLTF_VERSION = "2.0"

const GLTF_GENERATOR = "go-fbxio"

// GltfOptions configures the pure Go backend.
type GltfOptions struct {
	// FlipYZ wraps the scene in a node turning Z-up into glTF's Y-up.
	FlipYZ bool
	Logger *zap.Logger
}

// GltfLibrary is a Library writing and reading glTF 2.0 through the same
// record contract the native exporter consumes.
type GltfLibrary struct {
	mu     sync.Mutex
	closed bool
	opts   GltfOptions
	logger *zap.Logger
}

func NewGltfLibrary(opts GltfOptions) *GltfLibrary {
	l := &GltfLibrary{opts: opts, logger: opts.Logger}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	return l
}

func (l *GltfLibrary) Export(path string, buf *ExportBuffer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLibraryClosed
	}
	data, err := buf.Decode()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNativeExport, path, err)
	}
	doc, err := ExportDataToGltf(data, l.opts.FlipYZ)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNativeExport, path, err)
	}
	if err := WriteGltf(path, doc, data.IsBinary); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNativeExport, path, err)
	}
	l.logger.Info("gltf written",
		zap.String("path", path),
		zap.Bool("binary", data.IsBinary),
		zap.Int("nodes", len(doc.Nodes)),
		zap.Int("meshes", len(doc.Meshes)),
		zap.Int("materials", len(doc.Materials)))
	return nil
}

func (l *GltfLibrary) Import(path string) (*ImportBuffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLibraryClosed
	}
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNativeImport, path, err)
	}
	objs, err := SceneFromGltf(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNativeImport, path, err)
	}
	format := FormatASCII
	if strings.EqualFold(filepath.Ext(path), ".glb") {
		format = FormatBinary
	}
	data, err := BuildExportData(objs, BuildOptions{Format: format, Logger: l.logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNativeImport, path, err)
	}
	return newImportBuffer(data, nil), nil
}

func (l *GltfLibrary) VertexNormalFromPolyNormal(indices, polys []uint32, polyNormals []Vector4) ([]Vector4, error) {
	return VertexNormalFromPolyNormal(indices, polys, polyNormals)
}

func (l *GltfLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLibraryClosed
	}
	l.closed = true
	return nil
}

func CreateDoc() *gltf.Document {
	doc := &gltf.Document{}
	doc.Asset.Version = GLTF_VERSION
	doc.Asset.Generator = GLTF_GENERATOR
	srcIndex := uint32(0)
	doc.Scene = &srcIndex
	doc.Scenes = append(doc.Scenes, &gltf.Scene{})
	doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	return doc
}

type calcSizeWriter struct {
	writer io.Writer
	Size   int
}

func (w *calcSizeWriter) Write(p []byte) (n int, err error) {
	si := len(p)
	w.writer.Write(p)
	w.Size += int(si)
	return si, nil
}

func (w *calcSizeWriter) Bytes() []byte {
	return w.writer.(*bytes.Buffer).Bytes()
}

func newSizeWriter() calcSizeWriter {
	wt := bytes.NewBuffer([]byte{})
	return calcSizeWriter{Size: int(0), writer: wt}
}

func GetGltfBinary(doc *gltf.Document, paddingUnit int) ([]byte, error) {
	w := newSizeWriter()
	enc := gltf.NewEncoder(&w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	padding := calcPadding(w.Size, paddingUnit)
	if padding == 0 {
		return w.Bytes(), nil
	}
	pad := make([]byte, padding)
	for i := range pad {
		pad[i] = 0x20
	}
	w.Write(pad)
	return w.Bytes(), nil
}

// GetGltfJSON embeds the buffer as a data URI and encodes the document as
// a single .gltf file.
func GetGltfJSON(doc *gltf.Document) ([]byte, error) {
	for _, b := range doc.Buffers {
		if len(b.Data) > 0 && b.URI == "" {
			b.URI = "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(b.Data)
		}
	}
	w := newSizeWriter()
	enc := gltf.NewEncoder(&w)
	enc.AsBinary = false
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func WriteGltf(path string, doc *gltf.Document, binary bool) error {
	var bt []byte
	var err error
	if binary {
		bt, err = GetGltfBinary(doc, 4)
	} else {
		bt, err = GetGltfJSON(doc)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, bt, 0o644)
}

// ExportDataToGltf converts the records of one export into a glTF
// document. Faces are fan triangulated and split into one primitive per
// material index.
func ExportDataToGltf(d *ExportData, flipYZ bool) (*gltf.Document, error) {
	doc := CreateDoc()
	fillMaterials(doc, d.Materials)
	g := &gltfBuilder{doc: doc, materialCount: len(d.Materials)}

	roots := make([]uint32, 0, len(d.Root.Children))
	for i := range d.Root.Children {
		idx, err := g.node(&d.Root.Children[i])
		if err != nil {
			return nil, err
		}
		roots = append(roots, idx)
	}

	scale := d.UnitScale
	if scale <= 0 {
		scale = DEFAULT_UNIT
	}
	if flipYZ || scale != DEFAULT_UNIT {
		wrapper := &gltf.Node{Name: ROOT_NAME, Children: roots, Matrix: axisMatrix(flipYZ, scale)}
		doc.Nodes = append(doc.Nodes, wrapper)
		roots = []uint32{uint32(len(doc.Nodes) - 1)}
	}
	doc.Scenes[0].Nodes = roots
	if len(doc.Buffers[0].Data) == 0 {
		doc.Buffers = nil
	}
	return doc, nil
}

// axisMatrix scales by s and, when flip is set, rotates -90 degrees about X.
func axisMatrix(flip bool, s float64) [16]float32 {
	f := float32(s)
	if !flip {
		return [16]float32{f, 0, 0, 0, 0, f, 0, 0, 0, 0, f, 0, 0, 0, 0, 1}
	}
	// column major: x -> x, y -> -z, z -> y
	return [16]float32{f, 0, 0, 0, 0, 0, -f, 0, 0, f, 0, 0, 0, 0, 0, 1}
}

// toGltfMatrix transposes a row-major record matrix to glTF column order.
func toGltfMatrix(f *[MATRIX_ELEMENTS]float64) [16]float32 {
	var out [16]float32
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = float32(f[r*4+c])
		}
	}
	return out
}

func fillMaterials(doc *gltf.Document, mats []Material) {
	for i := range mats {
		s := &mats[i].Surface
		cl := &[4]float32{float32(s.BaseColor.X), float32(s.BaseColor.Y), float32(s.BaseColor.Z), float32(s.Opacity)}
		mc := float32(s.Metalness)
		rs := float32(s.SpecularRoughness)
		gm := &gltf.Material{Name: mats[i].Name, DoubleSided: true, AlphaMode: gltf.AlphaOpaque}
		gm.PBRMetallicRoughness = &gltf.PBRMetallicRoughness{BaseColorFactor: cl, MetallicFactor: &mc, RoughnessFactor: &rs}
		gm.EmissiveFactor[0] = float32(s.EmissionColor.X * s.Emission)
		gm.EmissiveFactor[1] = float32(s.EmissionColor.Y * s.Emission)
		gm.EmissiveFactor[2] = float32(s.EmissionColor.Z * s.Emission)
		if s.Opacity < 1 {
			gm.AlphaMode = gltf.AlphaBlend
		}
		doc.Materials = append(doc.Materials, gm)
	}
}

type gltfBuilder struct {
	doc           *gltf.Document
	materialCount int
}

func (g *gltfBuilder) node(o *Object) (uint32, error) {
	nd := &gltf.Node{Name: o.Name, Matrix: toGltfMatrix(&o.LocalMatrix)}
	idx := uint32(len(g.doc.Nodes))
	g.doc.Nodes = append(g.doc.Nodes, nd)
	for i := range o.Children {
		c, err := g.node(&o.Children[i])
		if err != nil {
			return 0, err
		}
		nd.Children = append(nd.Children, c)
	}
	if o.Mesh != nil && len(o.Mesh.Polys) > 0 {
		mi, err := g.mesh(o)
		if err != nil {
			return 0, fmt.Errorf("object %q: %w", o.Name, err)
		}
		nd.Mesh = &mi
	}
	return idx, nil
}

func (g *gltfBuilder) addView(buf *bytes.Buffer, start uint32, v interface{}) uint32 {
	view := &gltf.BufferView{Buffer: 0}
	view.ByteOffset = uint32(buf.Len()) + start
	writeLittleByte(buf, v)
	view.ByteLength = uint32(buf.Len()) + start - view.ByteOffset
	g.doc.BufferViews = append(g.doc.BufferViews, view)
	return uint32(len(g.doc.BufferViews) - 1)
}

func (g *gltfBuilder) addAccessor(acc *gltf.Accessor) uint32 {
	g.doc.Accessors = append(g.doc.Accessors, acc)
	return uint32(len(g.doc.Accessors) - 1)
}

// mesh unrolls every face corner into its own glTF vertex so corner
// normals and UVs survive unchanged.
func (g *gltfBuilder) mesh(o *Object) (uint32, error) {
	m := o.Mesh
	if err := m.Validate(); err != nil {
		return 0, err
	}
	positions := make([][3]float32, len(m.Indices))
	minP := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	maxP := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for j, vi := range m.Indices {
		v := m.Vertices[vi]
		p := [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
		positions[j] = p
		for k := 0; k < 3; k++ {
			minP[k] = float32(math.Min(float64(minP[k]), float64(p[k])))
			maxP[k] = float32(math.Max(float64(maxP[k]), float64(p[k])))
		}
	}

	var order []int32
	groups := make(map[int32][]uint32)
	for f := range m.Polys {
		s, e := m.FaceRange(f)
		mi := m.MaterialIndices[f]
		if _, ok := groups[mi]; !ok {
			order = append(order, mi)
		}
		for k := s + 1; k+1 < e; k++ {
			groups[mi] = append(groups[mi], uint32(s), uint32(k), uint32(k+1))
		}
	}

	buffer := g.doc.Buffers[0]
	start := buffer.ByteLength
	buf := bytes.NewBuffer(nil)

	posView := g.addView(buf, start, positions)
	attrs := gltf.Attribute{}
	attrs[gltf.POSITION] = g.addAccessor(&gltf.Accessor{
		BufferView:    &posView,
		ComponentType: gltf.ComponentFloat,
		Type:          gltf.AccessorVec3,
		Count:         uint32(len(positions)),
		Min:           minP[:],
		Max:           maxP[:],
	})

	if len(m.NormalSets) > 0 {
		ns := m.NormalSets[0].Normals
		normals := make([][3]float32, len(ns))
		for i, n := range ns {
			normals[i] = [3]float32{float32(n.X), float32(n.Y), float32(n.Z)}
		}
		nlView := g.addView(buf, start, normals)
		attrs[gltf.NORMAL] = g.addAccessor(&gltf.Accessor{
			BufferView:    &nlView,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec3,
			Count:         uint32(len(normals)),
		})
	}

	for si, set := range m.UVSets {
		uvs := make([][2]float32, len(set.UV))
		for i, uv := range set.UV {
			uvs[i] = [2]float32{float32(uv.X), float32(1 - uv.Y)}
		}
		texView := g.addView(buf, start, uvs)
		attrs[fmt.Sprintf("TEXCOORD_%d", si)] = g.addAccessor(&gltf.Accessor{
			BufferView:    &texView,
			ComponentType: gltf.ComponentFloat,
			Type:          gltf.AccessorVec2,
			Count:         uint32(len(uvs)),
		})
	}

	mesh := &gltf.Mesh{Name: m.Name}
	for _, mi := range order {
		tris := groups[mi]
		if len(tris) == 0 {
			continue
		}
		idxView := g.addView(buf, start, tris)
		index := g.addAccessor(&gltf.Accessor{
			BufferView:    &idxView,
			ComponentType: gltf.ComponentUint,
			Type:          gltf.AccessorScalar,
			Count:         uint32(len(tris)),
		})
		ps := &gltf.Primitive{Attributes: attrs, Indices: &index, Mode: gltf.PrimitiveTriangles}
		if mtl, ok := g.slotMaterial(o, mi); ok {
			ps.Material = &mtl
		}
		mesh.Primitives = append(mesh.Primitives, ps)
	}

	buffer.ByteLength += uint32(buf.Len())
	buffer.Data = append(buffer.Data, buf.Bytes()...)
	g.doc.Meshes = append(g.doc.Meshes, mesh)
	return uint32(len(g.doc.Meshes) - 1), nil
}

func (g *gltfBuilder) slotMaterial(o *Object, mi int32) (uint32, bool) {
	if mi < 0 || int(mi) >= len(o.MaterialSlots) {
		return 0, false
	}
	slot := o.MaterialSlots[mi]
	if slot < 0 || slot >= g.materialCount {
		return 0, false
	}
	return uint32(slot), true
}
