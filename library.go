package fbxio

import "fmt"

// Library is the exporter/importer on the far side of the call boundary.
// A handle is opened once and closed once; Export never retains buf.
type Library interface {
	NormalDeriver
	Export(path string, buf *ExportBuffer) error
	Import(path string) (*ImportBuffer, error)
	Close() error
}

// ImportBuffer holds a file read by a Library. Data is a Go copy, Release
// hands the foreign memory back and must be called exactly once.
type ImportBuffer struct {
	Data *ExportData

	released bool
	release  func()
}

func newImportBuffer(d *ExportData, release func()) *ImportBuffer {
	return &ImportBuffer{Data: d, release: release}
}

func (b *ImportBuffer) Release() {
	if b.released {
		panic(fmt.Errorf("%w: import buffer released twice", ErrLifecycle))
	}
	b.released = true
	if b.release != nil {
		b.release()
	}
}

// Scene rebuilds host nodes from the imported tree so it can be exported
// again.
func (b *ImportBuffer) Scene() []SceneObject {
	if b.Data == nil {
		return nil
	}
	nodes := SceneFromObject(&b.Data.Root, b.Data.Materials)
	out := make([]SceneObject, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out
}
