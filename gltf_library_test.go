package fbxio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
)

func exportWith(t *testing.T, lib Library, objs []SceneObject, path string, opts BuildOptions) {
	t.Helper()
	buf := NewExportBuffer()
	if err := buf.Build(objs, opts); err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	if err := buf.Submit(lib, path); err != nil {
		t.Fatal(err)
	}
}

// TestGltfRoundTrip 测试 glb 导出后再导入
func TestGltfRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		format Format
	}{
		{"binary", "scene.glb", FormatBinary},
		{"ascii", "scene.gltf", FormatASCII},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := NewGltfLibrary(GltfOptions{})
			defer lib.Close()
			path := filepath.Join(t.TempDir(), tt.file)
			exportWith(t, lib, newTestScene().objects(), path, BuildOptions{Format: tt.format})

			ib, err := lib.Import(path)
			if err != nil {
				t.Fatal(err)
			}
			defer ib.Release()
			d := ib.Data
			if d.IsBinary != (tt.format == FormatBinary) {
				t.Errorf("IsBinary = %v", d.IsBinary)
			}
			if len(d.Root.Children) != 2 {
				t.Fatalf("root has %d children", len(d.Root.Children))
			}

			if len(d.Materials) != 2 || d.Materials[0].Name != "Red" || d.Materials[1].Name != "Plain" {
				t.Fatalf("materials = %+v", d.Materials)
			}
			red := d.Materials[0].Surface
			if red.BaseColor != (Vector4{1, 0, 0, 1}) || red.Metalness != 0.25 || red.SpecularRoughness != 0.75 {
				t.Errorf("red surface = %v metal %v rough %v", red.BaseColor, red.Metalness, red.SpecularRoughness)
			}

			cube := d.Root.Find("Cube")
			if cube == nil || cube.Mesh == nil {
				t.Fatal("cube missing")
			}
			if cube.Mesh.PolyCount() != 12 {
				t.Errorf("cube has %d triangles, want 12", cube.Mesh.PolyCount())
			}
			if len(cube.MaterialSlots) != 2 || cube.MaterialSlots[0] != 0 || cube.MaterialSlots[1] != -1 {
				t.Errorf("cube slots = %v", cube.MaterialSlots)
			}
			empty := 0
			for _, mi := range cube.Mesh.MaterialIndices {
				if mi == 1 {
					empty++
				}
			}
			if empty != 2 {
				t.Errorf("%d triangles use the empty slot, want 2", empty)
			}
			if len(cube.Mesh.NormalSets) != 1 {
				t.Fatal("corner normals lost")
			}
			for i, n := range cube.Mesh.NormalSets[0].Normals {
				if l := math.Sqrt(n.X*n.X + n.Y*n.Y + n.Z*n.Z); math.Abs(l-math.Sqrt(1.0/3)) > 1e-6 {
					t.Fatalf("corner %d normal %v has length %v", i, n, l)
				}
			}

			panel := d.Root.Find("Panel")
			if panel == nil || len(cube.Children) != 1 {
				t.Fatal("panel is not the cube's child")
			}
			if panel.LocalMatrix[3] != 2 {
				t.Errorf("panel translation = %v", panel.LocalMatrix[3])
			}
			if len(panel.Mesh.UVSets) != 1 {
				t.Fatal("panel uvs lost")
			}
			uv := panel.Mesh.UVSets[0].UV
			if uv[0] != (Vector2{0, 0}) || uv[2] != (Vector2{1, 1}) {
				t.Errorf("uvs = %v", uv)
			}
			if d.Root.Find("Lamp").Mesh != nil {
				t.Error("lamp gained a mesh")
			}
		})
	}
}

func TestGltfAsciiEmbedsBuffer(t *testing.T) {
	lib := NewGltfLibrary(GltfOptions{})
	path := filepath.Join(t.TempDir(), "scene.gltf")
	exportWith(t, lib, newTestScene().objects(), path, BuildOptions{Format: FormatASCII})
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "data:application/octet-stream;base64,") {
		t.Error("buffer not embedded as a data uri")
	}
}

func TestGltfWrapperNode(t *testing.T) {
	lib := NewGltfLibrary(GltfOptions{FlipYZ: true})
	path := filepath.Join(t.TempDir(), "scene.glb")
	exportWith(t, lib, newTestScene().objects(), path, BuildOptions{Format: FormatBinary, UnitScale: 0.01})

	doc, err := gltf.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	roots := doc.Scenes[0].Nodes
	if len(roots) != 1 || doc.Nodes[roots[0]].Name != ROOT_NAME {
		t.Fatalf("scene roots = %v", roots)
	}
	m := doc.Nodes[roots[0]].Matrix
	if m[0] != 0.01 || m[6] != -0.01 || m[9] != 0.01 {
		t.Errorf("wrapper matrix = %v", m)
	}
	if len(doc.Nodes[roots[0]].Children) != 2 {
		t.Error("wrapper must hold both objects")
	}
}

func TestGltfEmptyScene(t *testing.T) {
	doc, err := ExportDataToGltf(&ExportData{Root: Object{Name: ROOT_NAME}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 0 || doc.Buffers != nil {
		t.Errorf("empty scene produced %d nodes", len(doc.Nodes))
	}
	if _, err := GetGltfBinary(doc, 4); err != nil {
		t.Fatal(err)
	}
}

func TestGltfLibraryClosed(t *testing.T) {
	lib := NewGltfLibrary(GltfOptions{})
	if err := lib.Close(); err != nil {
		t.Fatal(err)
	}
	if err := lib.Close(); !errors.Is(err, ErrLibraryClosed) {
		t.Errorf("second Close() = %v", err)
	}
	buf := NewExportBuffer()
	if err := buf.Build(nil, BuildOptions{}); err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	if err := buf.Submit(lib, filepath.Join(t.TempDir(), "x.glb")); !errors.Is(err, ErrLibraryClosed) {
		t.Errorf("Submit() on closed library = %v", err)
	}
	if _, err := lib.Import("x.glb"); !errors.Is(err, ErrLibraryClosed) {
		t.Errorf("Import() on closed library = %v", err)
	}
}

func TestGltfImportMissing(t *testing.T) {
	lib := NewGltfLibrary(GltfOptions{})
	if _, err := lib.Import(filepath.Join(t.TempDir(), "missing.glb")); !errors.Is(err, ErrNativeImport) {
		t.Errorf("Import() = %v", err)
	}
}

func TestGetGltfBinaryPadding(t *testing.T) {
	doc, err := ExportDataToGltf(mustBuild(t), false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GetGltfBinary(doc, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(b)%8 != 0 {
		t.Errorf("glb of %d bytes is not padded to 8", len(b))
	}
}

func mustBuild(t *testing.T) *ExportData {
	t.Helper()
	d, err := BuildExportData(newTestScene().objects(), BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return d
}
