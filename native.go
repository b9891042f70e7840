package fbxio

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
)

// exported symbols of the native exporter
const (
	SYM_EXPORT_FBX            = "export_fbx"
	SYM_EXPORT_FBX_DIAGNOSTIC = "export_fbx_diagnostic"
	SYM_IMPORT_FBX            = "import_fbx"
	SYM_DELETE_IODATA         = "delete_iodata"
	SYM_VERTEX_NORMAL         = "vertex_normal_from_poly_normal"
)

type NativeOptions struct {
	// Paths encodes file paths before they cross the boundary.
	Paths *NameEncoder
	// Names decodes names of imported records.
	Names *NameEncoder
	// Diagnostic prefers export_fbx_diagnostic when the library has it.
	Diagnostic bool
	Logger     *zap.Logger
}

// NativeLibrary binds the exporter's C entry points without cgo. Calls are
// serialised since the library keeps global SDK state.
type NativeLibrary struct {
	mu     sync.Mutex
	path   string
	handle uintptr
	closed bool
	opts   NativeOptions
	logger *zap.Logger

	exportFbx    func(path string, data uintptr) bool
	exportDiag   func(path string, data uintptr) string
	importFbx    func(path string) uintptr
	deleteIOData func(data uintptr)
	vertexNormal func(indices, indexCount, polys, polyCount, polyNormals, out uintptr)
}

// OpenNativeLibrary loads the shared library at path and resolves its
// symbols. export_fbx and vertex_normal_from_poly_normal are required.
func OpenNativeLibrary(path string, opts NativeOptions) (*NativeLibrary, error) {
	h, err := openLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	l := &NativeLibrary{path: path, handle: h, opts: opts, logger: opts.Logger}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}

	required := []struct {
		name string
		fn   interface{}
	}{
		{SYM_EXPORT_FBX, &l.exportFbx},
		{SYM_VERTEX_NORMAL, &l.vertexNormal},
	}
	for _, s := range required {
		if err := l.bind(s.name, s.fn); err != nil {
			closeLibrary(h)
			return nil, err
		}
	}

	optional := []struct {
		name string
		fn   interface{}
	}{
		{SYM_EXPORT_FBX_DIAGNOSTIC, &l.exportDiag},
		{SYM_IMPORT_FBX, &l.importFbx},
		{SYM_DELETE_IODATA, &l.deleteIOData},
	}
	for _, s := range optional {
		if err := l.bind(s.name, s.fn); err != nil {
			l.logger.Debug("optional symbol not found", zap.String("symbol", s.name))
		}
	}

	l.logger.Info("native library loaded",
		zap.String("path", path),
		zap.Bool("diagnostic", l.exportDiag != nil),
		zap.Bool("import", l.importFbx != nil && l.deleteIOData != nil))
	return l, nil
}

func (l *NativeLibrary) bind(name string, fn interface{}) error {
	sym, err := lookupSymbol(l.handle, name)
	if err != nil || sym == 0 {
		return fmt.Errorf("%w: %s in %s", ErrSymbolMissing, name, l.path)
	}
	purego.RegisterFunc(fn, sym)
	return nil
}

func (l *NativeLibrary) Path() string { return l.path }

func (l *NativeLibrary) encodePath(path string) (string, error) {
	b, err := l.opts.Paths.Encode(path)
	if err != nil {
		return "", fmt.Errorf("encode path: %w", err)
	}
	return string(b), nil
}

func (l *NativeLibrary) Export(path string, buf *ExportBuffer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLibraryClosed
	}
	p, err := l.encodePath(path)
	if err != nil {
		return err
	}
	addr := uintptr(buf.Address())

	if l.opts.Diagnostic && l.exportDiag != nil {
		msg := l.exportDiag(p, addr)
		runtime.KeepAlive(buf)
		if msg != "" {
			return fmt.Errorf("%w: %s: %s", ErrNativeExport, path, msg)
		}
		return nil
	}
	ok := l.exportFbx(p, addr)
	runtime.KeepAlive(buf)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNativeExport, path)
	}
	return nil
}

func (l *NativeLibrary) Import(path string) (*ImportBuffer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLibraryClosed
	}
	if l.importFbx == nil || l.deleteIOData == nil {
		return nil, fmt.Errorf("%w: %s", ErrSymbolMissing, SYM_IMPORT_FBX)
	}
	p, err := l.encodePath(path)
	if err != nil {
		return nil, err
	}
	addr := l.importFbx(p)
	if addr == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNativeImport, path)
	}
	data, err := Decode(foreignMemory{}, uint64(addr), l.opts.Names)
	if err != nil {
		l.deleteIOData(addr)
		return nil, fmt.Errorf("%w: %s: %v", ErrNativeImport, path, err)
	}
	return newImportBuffer(data, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if !l.closed {
			l.deleteIOData(addr)
		}
	}), nil
}

// VertexNormalFromPolyNormal runs the native deriver. Inputs are staged in
// a scratch arena so the callee only ever sees heap memory.
func (l *NativeLibrary) VertexNormalFromPolyNormal(indices, polys []uint32, polyNormals []Vector4) ([]Vector4, error) {
	if len(indices) == 0 {
		return []Vector4{}, nil
	}
	if len(polyNormals) != len(polys) {
		return nil, fmt.Errorf("%w: %d face normals for %d faces", ErrMalformedMesh, len(polyNormals), len(polys))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLibraryClosed
	}

	a := NewArena(len(indices)*(4+VECTOR4_SIZE) + len(polys)*(4+VECTOR4_SIZE) + 64)
	w := &recordWriter{a: a}
	ir := w.uint32s(indices)
	pr := w.uint32s(polys)
	nr := w.vector4s(polyNormals)
	out := a.Alloc(len(indices)*VECTOR4_SIZE, RECORD_ALIGN)
	a.Seal()

	l.vertexNormal(
		uintptr(a.Addr(ir)), uintptr(len(indices)),
		uintptr(a.Addr(pr)), uintptr(len(polys)),
		uintptr(a.Addr(nr)), uintptr(a.Addr(out)))
	runtime.KeepAlive(a)

	r := &recordReader{mem: a}
	return r.vector4s(a.Addr(out), uint64(len(indices)))
}

func (l *NativeLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLibraryClosed
	}
	l.closed = true
	if err := closeLibrary(l.handle); err != nil {
		return fmt.Errorf("unload %s: %w", l.path, err)
	}
	l.logger.Info("native library unloaded", zap.String("path", l.path))
	return nil
}
