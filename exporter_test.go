package fbxio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestExporterGltf 测试导出器完整流程
func TestExporterGltf(t *testing.T) {
	dir := t.TempDir()
	lib := NewGltfLibrary(GltfOptions{})
	defer lib.Close()
	core, logs := observer.New(zap.InfoLevel)
	e := NewExporter(lib, BuildOptions{Format: FormatBinary, Logger: zap.New(core)})

	src := filepath.Join(dir, "scene.glb")
	if err := e.Export(newTestScene().objects(), src); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("exported").Len() != 1 {
		t.Error("export not logged")
	}

	d, err := e.Import(src)
	if err != nil {
		t.Fatal(err)
	}
	if d.Root.Find("Panel") == nil {
		t.Error("imported tree lost the panel")
	}

	dst := filepath.Join(dir, "copy.glb")
	if err := e.Convert(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("converted file missing: %v", err)
	}
}

func TestExporterEmptySelection(t *testing.T) {
	lib := &fakeLibrary{}
	if err := NewExporter(lib, BuildOptions{}).Export(nil, "empty.fbx"); err != nil {
		t.Fatal(err)
	}
	if len(lib.decoded) != 1 || lib.decoded[0].Root.Name != ROOT_NAME || len(lib.decoded[0].Root.Children) != 0 {
		t.Errorf("empty export = %+v", lib.decoded)
	}
}

func TestExporterSubmitError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lib := &fakeLibrary{err: ErrNativeExport}
	e := NewExporter(lib, BuildOptions{Logger: zap.New(core)})
	if err := e.Export(newTestScene().objects(), "fail.fbx"); !errors.Is(err, ErrNativeExport) {
		t.Fatalf("Export() = %v", err)
	}
	if logs.FilterMessage("export buffer torn down").Len() != 1 {
		t.Error("buffer not released after a failed submit")
	}
}

func TestExporterBuildError(t *testing.T) {
	s := newTestScene()
	s.panel.Mesh.Faces[0].MaterialSlot = 7
	lib := &fakeLibrary{}
	if err := NewExporter(lib, BuildOptions{}).Export(s.objects(), "bad.fbx"); !errors.Is(err, ErrMaterialSlot) {
		t.Fatalf("Export() = %v", err)
	}
	if len(lib.paths) != 0 {
		t.Error("library called after a failed build")
	}
}

func TestExporterUsesLibraryNormals(t *testing.T) {
	calls := 0
	lib := &derivingLibrary{fakeLibrary: &fakeLibrary{}, calls: &calls}
	if err := NewExporter(lib, BuildOptions{}).Export(newTestScene().objects(), "n.fbx"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("library deriver called %d times, want 1", calls)
	}
}

type derivingLibrary struct {
	*fakeLibrary
	calls *int
}

func (l *derivingLibrary) VertexNormalFromPolyNormal(indices, polys []uint32, pn []Vector4) ([]Vector4, error) {
	*l.calls++
	return l.fakeLibrary.VertexNormalFromPolyNormal(indices, polys, pn)
}
