package fbxio

import (
	"errors"
	"testing"
)

// fakeLibrary records what it was handed and decodes it while the buffer
// is still alive.
type fakeLibrary struct {
	err     error
	paths   []string
	decoded []*ExportData
	closed  bool
}

func (l *fakeLibrary) Export(path string, buf *ExportBuffer) error {
	l.paths = append(l.paths, path)
	d, err := buf.Decode()
	if err != nil {
		return err
	}
	l.decoded = append(l.decoded, d)
	return l.err
}

func (l *fakeLibrary) Import(path string) (*ImportBuffer, error) {
	if len(l.decoded) == 0 {
		return nil, errors.New("nothing exported")
	}
	return newImportBuffer(l.decoded[len(l.decoded)-1], nil), nil
}

func (l *fakeLibrary) VertexNormalFromPolyNormal(indices, polys []uint32, pn []Vector4) ([]Vector4, error) {
	return GoNormals.VertexNormalFromPolyNormal(indices, polys, pn)
}

func (l *fakeLibrary) Close() error {
	l.closed = true
	return nil
}

// TestExportBufferLifecycle 测试缓冲区状态流转
func TestExportBufferLifecycle(t *testing.T) {
	buf := NewExportBuffer()
	if buf.State() != StateEmpty || buf.Blocks() != 0 {
		t.Fatal("new buffer is not empty")
	}
	expectLifecycle(t, func() { buf.Address() })
	expectLifecycle(t, func() { buf.Submit(&fakeLibrary{}, "x.fbx") })
	expectLifecycle(t, func() { buf.Release() })

	if err := buf.Build(newTestScene().objects(), BuildOptions{}); err != nil {
		t.Fatal(err)
	}
	if buf.State() != StateBuilt || buf.Address() == 0 {
		t.Fatal("build did not produce records")
	}
	expectLifecycle(t, func() { buf.Build(nil, BuildOptions{}) })

	lib := &fakeLibrary{}
	if err := buf.Submit(lib, "scene.fbx"); err != nil {
		t.Fatal(err)
	}
	if buf.State() != StateSubmitted || len(lib.decoded) != 1 {
		t.Fatal("library did not see the buffer")
	}
	expectLifecycle(t, func() { buf.Submit(lib, "again.fbx") })

	blocks := buf.Blocks()
	if n := buf.Release(); n != blocks {
		t.Errorf("Release() freed %d of %d blocks", n, blocks)
	}
	if buf.State() != StateReleased {
		t.Error("state after release")
	}
	expectLifecycle(t, func() { buf.Release() })
	expectLifecycle(t, func() { buf.Address() })
}

func TestExportBufferReleaseUnsubmitted(t *testing.T) {
	buf := NewExportBuffer()
	if err := buf.Build(newTestScene().objects(), BuildOptions{}); err != nil {
		t.Fatal(err)
	}
	if n := buf.Release(); n != buf.Blocks() {
		t.Errorf("Release() freed %d of %d blocks", n, buf.Blocks())
	}
}

func TestExportBufferEmptyScene(t *testing.T) {
	buf := NewExportBuffer()
	if err := buf.Build(nil, BuildOptions{}); err != nil {
		t.Fatal(err)
	}
	d, err := buf.Decode()
	if err != nil {
		t.Fatal(err)
	}
	if d.Root.Name != ROOT_NAME || len(d.Root.Children) != 0 || len(d.Materials) != 0 {
		t.Errorf("empty export = %+v", d)
	}
	// header, root record and root name
	if n := buf.Release(); n != 3 {
		t.Errorf("Release() freed %d blocks, want 3", n)
	}
}

func TestExportBufferBuildError(t *testing.T) {
	s := newTestScene()
	s.cube.Mesh.Faces[0].Vertices = []uint32{0}
	buf := NewExportBuffer()
	if err := buf.Build(s.objects(), BuildOptions{}); !errors.Is(err, ErrMalformedMesh) {
		t.Fatalf("Build() error = %v", err)
	}
	if buf.State() != StateEmpty || buf.Blocks() != 0 {
		t.Error("failed build retained records")
	}
}

func TestExportBufferSubmitError(t *testing.T) {
	buf := NewExportBuffer()
	if err := buf.Build(newTestScene().objects(), BuildOptions{}); err != nil {
		t.Fatal(err)
	}
	lib := &fakeLibrary{err: ErrNativeExport}
	if err := buf.Submit(lib, "fail.fbx"); !errors.Is(err, ErrNativeExport) {
		t.Fatalf("Submit() error = %v", err)
	}
	if buf.State() != StateSubmitted {
		t.Error("a failed submit still counts as submitted")
	}
	if n := buf.Release(); n != buf.Blocks() {
		t.Errorf("Release() freed %d of %d blocks", n, buf.Blocks())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateEmpty:     "empty",
		StateBuilt:     "built",
		StateSubmitted: "submitted",
		StateReleased:  "released",
		State(9):       "state(9)",
	} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q", s, s.String())
		}
	}
}
