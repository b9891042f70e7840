package fbxio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"unsafe"
)

// ARENA_HEADER keeps offset 0 unused so a zero Ref is always a null pointer.
const ARENA_HEADER = 8

// Ref addresses a block inside an Arena by byte offset. The zero Ref is null.
type Ref int64

func (r Ref) IsNil() bool { return r == 0 }

// Add returns the Ref n bytes past r.
func (r Ref) Add(n int) Ref { return r + Ref(n) }

type block struct {
	size  int
	freed bool
}

// Arena is one growable byte region holding every record of an export.
// Records point at each other by offset while the arena is being filled;
// every pointer slot is recorded so Seal can rebase them to real addresses
// in one pass. Nothing can be allocated after sealing.
type Arena struct {
	buf    []byte
	blocks map[Ref]*block
	order  []Ref
	relocs []Ref
	base   uint64
	sealed bool
	live   int
}

func NewArena(sizeHint int) *Arena {
	if sizeHint < ARENA_HEADER {
		sizeHint = ARENA_HEADER
	}
	buf := make([]byte, ARENA_HEADER, sizeHint)
	return &Arena{buf: buf, blocks: make(map[Ref]*block)}
}

func calcPadding(offset, paddingUnit int) int {
	padding := offset % paddingUnit
	if padding != 0 {
		padding = paddingUnit - padding
	}
	return padding
}

// Alloc reserves size zeroed bytes aligned to align and returns their Ref.
// A zero size yields the null Ref and no block.
func (a *Arena) Alloc(size, align int) Ref {
	if a.sealed {
		panic(fmt.Errorf("%w: alloc on sealed arena", ErrLifecycle))
	}
	if size <= 0 {
		return 0
	}
	if align <= 0 {
		align = RECORD_ALIGN
	}
	pad := calcPadding(len(a.buf), align)
	off := len(a.buf) + pad
	need := off + size
	if need > cap(a.buf) {
		grown := make([]byte, len(a.buf), growCap(cap(a.buf), need))
		copy(grown, a.buf)
		a.buf = grown
	}
	a.buf = a.buf[:need]
	for i := off - pad; i < need; i++ {
		a.buf[i] = 0
	}
	ref := Ref(off)
	a.blocks[ref] = &block{size: size}
	a.order = append(a.order, ref)
	a.live++
	return ref
}

func growCap(cur, need int) int {
	n := cur * 2
	if n < 64 {
		n = 64
	}
	for n < need {
		n *= 2
	}
	return n
}

func (a *Arena) slot(at Ref, n int) []byte {
	return a.buf[int(at) : int(at)+n]
}

func (a *Arena) PutUint64(at Ref, v uint64) {
	binary.LittleEndian.PutUint64(a.slot(at, 8), v)
}

func (a *Arena) PutUint32(at Ref, v uint32) {
	binary.LittleEndian.PutUint32(a.slot(at, 4), v)
}

func (a *Arena) PutInt32(at Ref, v int32) {
	a.PutUint32(at, uint32(v))
}

func (a *Arena) PutFloat64(at Ref, v float64) {
	a.PutUint64(at, math.Float64bits(v))
}

func (a *Arena) PutBool(at Ref, v bool) {
	if v {
		a.buf[at] = 1
	} else {
		a.buf[at] = 0
	}
}

func (a *Arena) PutBytes(at Ref, b []byte) {
	copy(a.slot(at, len(b)), b)
}

// PutPointer stores target in the pointer slot at. Non-null targets are
// recorded for relocation at Seal.
func (a *Arena) PutPointer(at Ref, target Ref) {
	if a.sealed {
		panic(fmt.Errorf("%w: pointer write on sealed arena", ErrLifecycle))
	}
	a.PutUint64(at, uint64(target))
	if !target.IsNil() {
		a.relocs = append(a.relocs, at)
	}
}

// Seal rebases every recorded pointer to the arena's own memory address so
// the bytes can be handed to native code as is.
func (a *Arena) Seal() {
	a.SealAt(uint64(uintptr(unsafe.Pointer(&a.buf[0]))))
}

// SealAt rebases pointers against an arbitrary base. A zero base leaves a
// position independent image where pointers are arena offsets.
func (a *Arena) SealAt(base uint64) {
	if a.sealed {
		panic(fmt.Errorf("%w: arena sealed twice", ErrLifecycle))
	}
	for _, at := range a.relocs {
		s := a.slot(at, 8)
		binary.LittleEndian.PutUint64(s, binary.LittleEndian.Uint64(s)+base)
	}
	a.base = base
	a.sealed = true
}

func (a *Arena) Sealed() bool { return a.sealed }
func (a *Arena) Base() uint64 { return a.base }
func (a *Arena) Len() int     { return len(a.buf) }

// Bytes exposes the backing store. Callers must not grow it.
func (a *Arena) Bytes() []byte { return a.buf }

// Addr is the address of r once sealed, or its offset before.
func (a *Arena) Addr(r Ref) uint64 {
	if r.IsNil() {
		return 0
	}
	return a.base + uint64(r)
}

// RefOf maps an address produced by Addr back to a Ref.
func (a *Arena) RefOf(addr uint64) (Ref, error) {
	if addr == 0 {
		return 0, nil
	}
	if addr < a.base+ARENA_HEADER || addr >= a.base+uint64(len(a.buf)) {
		return 0, fmt.Errorf("%w: 0x%x outside arena", ErrBadPointer, addr)
	}
	return Ref(addr - a.base), nil
}

// Read implements Memory over the sealed arena.
func (a *Arena) Read(addr uint64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	r, err := a.RefOf(addr)
	if err != nil {
		return nil, err
	}
	if r.IsNil() || int(r)+n > len(a.buf) {
		return nil, fmt.Errorf("%w: read of %d bytes at 0x%x", ErrBadPointer, n, addr)
	}
	return a.buf[int(r) : int(r)+n], nil
}

// Blocks is the number of blocks ever allocated.
func (a *Arena) Blocks() int { return len(a.order) }

// Live is the number of allocated blocks not yet freed.
func (a *Arena) Live() int { return a.live }

// BlockSize reports the size of the block starting at r.
func (a *Arena) BlockSize(r Ref) (int, bool) {
	b, ok := a.blocks[r]
	if !ok {
		return 0, false
	}
	return b.size, true
}

// Free marks the block at r released. Freeing twice or freeing something
// that is not a block start panics.
func (a *Arena) Free(r Ref) {
	b, ok := a.blocks[r]
	if !ok {
		panic(fmt.Errorf("%w: free of unknown block at offset %d", ErrLifecycle, r))
	}
	if b.freed {
		panic(fmt.Errorf("%w: block at offset %d freed twice", ErrLifecycle, r))
	}
	b.freed = true
	a.live--
}

// Leaked lists the blocks still live, in allocation order.
func (a *Arena) Leaked() []Ref {
	var out []Ref
	for _, r := range a.order {
		if !a.blocks[r].freed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Drop discards the backing store after every block was freed.
func (a *Arena) Drop() {
	a.buf = nil
	a.relocs = nil
}
