package fbxio

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
)

// State of an ExportBuffer. Transitions only move forward.
type State uint8

const (
	StateEmpty State = iota
	StateBuilt
	StateSubmitted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilt:
		return "built"
	case StateSubmitted:
		return "submitted"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

func lifecycleViolation(op string, s State) error {
	return fmt.Errorf("%w: %s while %s", ErrLifecycle, op, s)
}

// ExportBuffer owns every record of one export. It is built once, handed
// to a Library once and released exactly once.
type ExportBuffer struct {
	state  State
	arena  *Arena
	header Ref
	names  *NameEncoder
	logger *zap.Logger
}

func NewExportBuffer() *ExportBuffer {
	return &ExportBuffer{logger: zap.NewNop()}
}

func (b *ExportBuffer) State() State { return b.state }

// Build flattens objs and lays the records out. On error the buffer stays
// empty and nothing is retained.
func (b *ExportBuffer) Build(objs []SceneObject, opts BuildOptions) error {
	if b.state != StateEmpty {
		panic(lifecycleViolation("build", b.state))
	}
	data, err := BuildExportData(objs, opts)
	if err != nil {
		return err
	}
	b.logger = opts.logger()
	return b.BuildData(data, opts.Names)
}

// BuildData lays out an already flattened tree.
func (b *ExportBuffer) BuildData(d *ExportData, names *NameEncoder) error {
	if b.state != StateEmpty {
		panic(lifecycleViolation("build", b.state))
	}
	a := NewArena(estimateSize(d))
	hdr, err := writeExportData(a, d, names)
	if err != nil {
		return err
	}
	a.Seal()
	b.arena, b.header, b.names = a, hdr, names
	b.state = StateBuilt
	b.logger.Debug("export buffer built",
		zap.Int("bytes", a.Len()),
		zap.Int("blocks", a.Blocks()))
	return nil
}

func estimateSize(d *ExportData) int {
	n := EXPORT_DATA_SIZE + len(d.Materials)*(MATERIAL_SIZE+32)
	d.Root.Walk(func(o *Object, _ int) bool {
		n += OBJECT_SIZE + len(o.Name) + 8 + len(o.MaterialSlots)*POINTER_SIZE
		if m := o.Mesh; m != nil {
			n += MESH_SIZE + len(m.Vertices)*VECTOR4_SIZE + len(m.Indices)*4 + len(m.Polys)*8
			n += len(m.UVSets) * (UV_SIZE + len(m.Indices)*VECTOR2_SIZE + 16)
			n += len(m.NormalSets) * (NORMAL_SIZE + len(m.Indices)*VECTOR4_SIZE + 16)
		}
		return true
	})
	return n + ARENA_HEADER
}

// Address is the native address of the ExportData record.
func (b *ExportBuffer) Address() uint64 {
	if b.state != StateBuilt && b.state != StateSubmitted {
		panic(lifecycleViolation("address", b.state))
	}
	return b.arena.Addr(b.header)
}

// Memory exposes the sealed records for decoding.
func (b *ExportBuffer) Memory() Memory {
	return b.arena
}

// Names is the encoder the records were written with.
func (b *ExportBuffer) Names() *NameEncoder {
	return b.names
}

// Decode copies the records back into Go values.
func (b *ExportBuffer) Decode() (*ExportData, error) {
	return Decode(b.arena, b.Address(), b.names)
}

// Blocks is the number of blocks the buffer allocated.
func (b *ExportBuffer) Blocks() int {
	if b.arena == nil {
		return 0
	}
	return b.arena.Blocks()
}

// Submit hands the buffer to lib. Whatever the outcome the buffer must be
// released afterwards.
func (b *ExportBuffer) Submit(lib Library, path string) error {
	if b.state != StateBuilt {
		panic(lifecycleViolation("submit", b.state))
	}
	b.state = StateSubmitted
	return lib.Export(path, b)
}

// Release frees every block reachable from the root exactly once and
// returns how many were freed.
func (b *ExportBuffer) Release() int {
	if b.state != StateBuilt && b.state != StateSubmitted {
		panic(lifecycleViolation("release", b.state))
	}
	r := &releaser{a: b.arena}
	r.exportData(b.header)
	if leaked := b.arena.Leaked(); len(leaked) > 0 {
		panic(fmt.Errorf("%w: %d blocks unreachable from root", ErrLifecycle, len(leaked)))
	}
	b.arena.Drop()
	b.state = StateReleased
	b.logger.Debug("export buffer released", zap.Int("blocks", r.n))
	return r.n
}

// releaser walks the ownership tree. Material slots point into the
// material array and are not followed.
type releaser struct {
	a *Arena
	n int
}

func (r *releaser) ptr(at Ref) Ref {
	v := binary.LittleEndian.Uint64(r.a.slot(at, 8))
	if v == 0 {
		return 0
	}
	ref, err := r.a.RefOf(v)
	if err != nil {
		panic(fmt.Errorf("%w: %v", ErrLifecycle, err))
	}
	return ref
}

func (r *releaser) count(at Ref) int {
	return int(binary.LittleEndian.Uint64(r.a.slot(at, 8)))
}

func (r *releaser) free(ref Ref) {
	if ref.IsNil() {
		return
	}
	r.a.Free(ref)
	r.n++
}

func (r *releaser) exportData(hdr Ref) {
	mats := r.ptr(hdr.Add(exportMaterialsOff))
	for i := 0; i < r.count(hdr.Add(exportMaterialCountOff)); i++ {
		r.free(r.ptr(mats.Add(i * MATERIAL_SIZE)))
	}
	r.free(mats)
	if root := r.ptr(hdr.Add(exportRootOff)); !root.IsNil() {
		r.object(root)
		r.free(root)
	}
	r.free(hdr)
}

// object frees what the record at rec owns, not rec itself.
func (r *releaser) object(rec Ref) {
	r.free(r.ptr(rec.Add(nameOff)))
	children := r.ptr(rec.Add(objectChildrenOff))
	for i := 0; i < r.count(rec.Add(objectChildCntOff)); i++ {
		r.object(children.Add(i * OBJECT_SIZE))
	}
	r.free(children)
	if mesh := r.ptr(rec.Add(objectMeshOff)); !mesh.IsNil() {
		r.mesh(mesh)
	}
	r.free(r.ptr(rec.Add(objectSlotsOff)))
}

func (r *releaser) mesh(rec Ref) {
	r.free(r.ptr(rec.Add(nameOff)))
	r.free(r.ptr(rec.Add(meshVerticesOff)))
	r.free(r.ptr(rec.Add(meshIndicesOff)))
	r.free(r.ptr(rec.Add(meshPolysOff)))
	r.free(r.ptr(rec.Add(meshMaterialIndicesOff)))
	r.channels(r.ptr(rec.Add(meshUVSetsOff)), r.count(rec.Add(meshUVSetCountOff)), UV_SIZE)
	r.channels(r.ptr(rec.Add(meshNormalSetsOff)), r.count(rec.Add(meshNormalSetCountOff)), NORMAL_SIZE)
	r.free(rec)
}

func (r *releaser) channels(arr Ref, n, size int) {
	for i := 0; i < n; i++ {
		at := arr.Add(i * size)
		r.free(r.ptr(at.Add(nameOff)))
		r.free(r.ptr(at.Add(channelDataOff)))
	}
	r.free(arr)
}
