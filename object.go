package fbxio

import (
	"fmt"

	dmat "github.com/flywave/go3d/float64/mat4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// BuildOptions configures one export.
type BuildOptions struct {
	Format    Format
	UnitScale float64
	Flatten   FlattenOptions
	// Normals derives corner normals from face normals, GoNormals when nil.
	Normals NormalDeriver
	// Names encodes object, mesh and material names, UTF-8 when nil.
	Names  *NameEncoder
	Logger *zap.Logger
}

func (o *BuildOptions) unitScale() float64 {
	if o.UnitScale <= 0 {
		return DEFAULT_UNIT
	}
	return o.UnitScale
}

func (o *BuildOptions) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type treeBuilder struct {
	table   *MaterialTable
	opts    *BuildOptions
	normals NormalDeriver
	log     *zap.Logger
	objects int
	meshes  int
}

// BuildExportData flattens objs under a synthetic identity root. Nothing is
// returned unless every object converts.
func BuildExportData(objs []SceneObject, opts BuildOptions) (*ExportData, error) {
	b := &treeBuilder{
		table:   BuildMaterialTable(objs),
		opts:    &opts,
		normals: opts.Normals,
		log:     opts.logger(),
	}
	if b.normals == nil {
		b.normals = GoNormals
	}

	root := Object{Name: ROOT_NAME, LocalMatrix: FlattenMatrix(&dmat.Ident)}
	if len(objs) > 0 {
		root.Children = make([]Object, len(objs))
	}
	var errs error
	for i, o := range objs {
		errs = multierr.Append(errs, b.object(o, &root.Children[i], ROOT_NAME))
	}
	if errs != nil {
		return nil, errs
	}

	b.log.Debug("export tree built",
		zap.Int("objects", b.objects),
		zap.Int("meshes", b.meshes),
		zap.Int("materials", b.table.Len()))

	return &ExportData{
		IsBinary:  opts.Format == FormatBinary,
		UnitScale: opts.unitScale(),
		Root:      root,
		Materials: b.table.Materials,
	}, nil
}

func (b *treeBuilder) object(src SceneObject, dst *Object, parent string) error {
	b.objects++
	path := parent + "/" + src.Name()
	m := src.LocalMatrix()
	dst.Name = src.Name()
	dst.LocalMatrix = FlattenMatrix(&m)

	var errs error
	if geom, ok := src.Geometry(); ok {
		errs = multierr.Append(errs, b.geometry(src, geom, dst, path))
	}

	kids := src.Children()
	if len(kids) > 0 {
		dst.Children = make([]Object, len(kids))
	}
	for i, c := range kids {
		errs = multierr.Append(errs, b.object(c, &dst.Children[i], path))
	}
	return errs
}

func (b *treeBuilder) geometry(src SceneObject, geom SourceMesh, dst *Object, path string) error {
	slots := src.MaterialSlots()
	mesh, err := FlattenMesh(geom, len(slots), b.opts.Flatten)
	if err != nil {
		return fmt.Errorf("object %q: %w", path, err)
	}
	if mesh.NormalSets, err = ResolveNormals(geom, mesh, b.normals); err != nil {
		return fmt.Errorf("object %q: %w", path, err)
	}

	dst.MaterialSlots = make([]int, len(slots))
	for i, s := range slots {
		idx, ok := b.table.Lookup(s)
		if !ok {
			return fmt.Errorf("%w: object %q slot %d not in material table", ErrMaterialSlot, path, i)
		}
		dst.MaterialSlots[i] = idx
	}
	dst.Mesh = mesh
	b.meshes++

	b.log.Debug("mesh flattened",
		zap.String("object", path),
		zap.Int("vertices", mesh.VertexCount()),
		zap.Int("corners", mesh.IndexCount()),
		zap.Int("faces", mesh.PolyCount()),
		zap.Int("uv_sets", len(mesh.UVSets)),
		zap.Int("normal_sets", len(mesh.NormalSets)))
	return nil
}
