package fbxio

import (
	"bytes"
	"testing"
)

func TestNameEncoderUTF8(t *testing.T) {
	for _, label := range []string{"", "utf-8", "UTF8", " utf-8 "} {
		e, err := NewNameEncoder(label)
		if err != nil {
			t.Fatalf("NewNameEncoder(%q): %v", label, err)
		}
		if e.Charset() != "utf-8" {
			t.Errorf("Charset() = %q", e.Charset())
		}
		b, _ := e.Encode("立方体")
		if string(b) != "立方体" {
			t.Errorf("utf-8 encoding changed the bytes")
		}
	}

	var nilEnc *NameEncoder
	if b, err := nilEnc.Encode("Cube"); err != nil || string(b) != "Cube" {
		t.Error("nil encoder must pass names through")
	}
}

// TestNameEncoderShiftJIS 测试非 UTF-8 名称编码
func TestNameEncoderShiftJIS(t *testing.T) {
	e, err := NewNameEncoder("shift_jis")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Encode("キューブ")
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte{0x83, 0x4c, 0x83, 0x85, 0x81, 0x5b, 0x83, 0x75}; !bytes.Equal(b, want) {
		t.Errorf("Encode() = % x, want % x", b, want)
	}
	s, err := e.Decode(b)
	if err != nil || s != "キューブ" {
		t.Errorf("Decode() = %q, %v", s, err)
	}
}

func TestNameEncoderErrors(t *testing.T) {
	if _, err := NewNameEncoder("no-such-charset"); err == nil {
		t.Error("unknown charset accepted")
	}
	e, err := NewNameEncoder("windows-1252")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Encode("立方体"); err == nil {
		t.Error("unrepresentable name accepted")
	}
}

func TestNamesThroughBuffer(t *testing.T) {
	e, err := NewNameEncoder("gbk")
	if err != nil {
		t.Fatal(err)
	}
	n := NewNode("立方体")
	n.Mesh = cubeMesh()
	n.Mesh.MeshName = "网格"
	buf := NewExportBuffer()
	if err := buf.Build([]SceneObject{n}, BuildOptions{Names: e}); err != nil {
		t.Fatal(err)
	}
	defer buf.Release()
	d, err := buf.Decode()
	if err != nil {
		t.Fatal(err)
	}
	o := d.Root.Find("立方体")
	if o == nil || o.Mesh.Name != "网格" {
		t.Errorf("names lost through gbk: %+v", d.Root.Children)
	}
}
