package fbxio

import (
	"fmt"
	"unsafe"
)

// foreignMemory reads memory owned by the native library. Slices alias
// that memory and are only valid until delete_iodata.
type foreignMemory struct{}

func (foreignMemory) Read(addr uint64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if addr == 0 {
		return nil, fmt.Errorf("%w: null read of %d bytes", ErrBadPointer, n)
	}
	// addr is C-owned memory the Go heap never moves or collects.
	p := uintptr(addr)
	base := *(*unsafe.Pointer)(unsafe.Pointer(&p))
	return unsafe.Slice((*byte)(base), n), nil
}
