package fbxio

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Exporter drives one Library: every Export builds a fresh buffer, submits
// it and always releases it.
type Exporter struct {
	lib    Library
	opts   BuildOptions
	logger *zap.Logger
}

func NewExporter(lib Library, opts BuildOptions) *Exporter {
	e := &Exporter{lib: lib, opts: opts, logger: opts.logger()}
	if e.opts.Normals == nil {
		e.opts.Normals = lib
	}
	return e
}

func (e *Exporter) Library() Library { return e.lib }

// Export writes objs to path. An empty selection still produces a file
// holding only the root.
func (e *Exporter) Export(objs []SceneObject, path string) error {
	return e.export(objs, path, e.opts)
}

func (e *Exporter) export(objs []SceneObject, path string, opts BuildOptions) error {
	start := time.Now()
	buf := NewExportBuffer()
	if err := buf.Build(objs, opts); err != nil {
		e.logger.Error("export build failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("build %s: %w", path, err)
	}
	defer func() {
		n := buf.Release()
		e.logger.Debug("export buffer torn down", zap.Int("blocks", n))
	}()

	if err := buf.Submit(e.lib, path); err != nil {
		e.logger.Error("export failed", zap.String("path", path), zap.Error(err))
		return err
	}
	e.logger.Info("exported",
		zap.String("path", path),
		zap.Int("objects", len(objs)),
		zap.Stringer("format", opts.Format),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Import reads path through the library and returns a Go copy of the
// records; the library's memory is released before returning.
func (e *Exporter) Import(path string) (*ExportData, error) {
	ib, err := e.lib.Import(path)
	if err != nil {
		e.logger.Error("import failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	defer ib.Release()
	var objects, meshes int
	ib.Data.Root.Walk(func(o *Object, depth int) bool {
		if depth > 0 {
			objects++
		}
		if o.Mesh != nil {
			meshes++
		}
		return true
	})
	e.logger.Info("imported",
		zap.String("path", path),
		zap.Int("objects", objects),
		zap.Int("meshes", meshes),
		zap.Int("materials", len(ib.Data.Materials)))
	return ib.Data, nil
}

// Convert imports src and exports the result to dst. Imported faces carry
// 0-based slots, so the one-based shift is never applied here.
func (e *Exporter) Convert(src, dst string) error {
	ib, err := e.lib.Import(src)
	if err != nil {
		return err
	}
	objs := ib.Scene()
	ib.Release()
	opts := e.opts
	opts.Flatten.OneBasedMaterialSlots = false
	return e.export(objs, dst, opts)
}
