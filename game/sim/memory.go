package sim

import (
	"encoding/binary"
	"math"
	"sort"
)

// region is one contiguous, addressable block in the simulated process.
type region struct {
	base uint64
	data []byte
}

func (r *region) end() uint64 { return r.base + uint64(len(r.data)) }

// addressSpace is a sparse byte-addressed memory made of regions.
// Callers hold World.mu.
type addressSpace struct {
	regions []*region
	next    uint64
	faults  map[uint64]bool
}

const (
	heapBase    uint64 = 0x10000000
	globalsBase uint64 = 0x00B00000
	globalsSize        = 0x100000
	managerBase uint64 = 0x00A00000
	managerSize        = 0x100
	allocAlign  uint64 = 0x1000
)

func newAddressSpace() *addressSpace {
	as := &addressSpace{next: heapBase, faults: make(map[uint64]bool)}
	as.insert(&region{base: globalsBase, data: make([]byte, globalsSize)})
	as.insert(&region{base: managerBase, data: make([]byte, managerSize)})
	return as
}

func (as *addressSpace) insert(r *region) {
	i := sort.Search(len(as.regions), func(i int) bool { return as.regions[i].base >= r.base })
	as.regions = append(as.regions, nil)
	copy(as.regions[i+1:], as.regions[i:])
	as.regions[i] = r
}

// alloc reserves size bytes at a fresh aligned address.
func (as *addressSpace) alloc(size int) uint64 {
	base := as.next
	as.insert(&region{base: base, data: make([]byte, size)})
	span := (uint64(size) + allocAlign - 1) / allocAlign * allocAlign
	as.next += span + allocAlign
	return base
}

func (as *addressSpace) free(base uint64) {
	for i, r := range as.regions {
		if r.base == base {
			as.regions = append(as.regions[:i], as.regions[i+1:]...)
			return
		}
	}
}

// find returns the region holding [addr, addr+n).
func (as *addressSpace) find(addr uint64, n int) *region {
	i := sort.Search(len(as.regions), func(i int) bool { return as.regions[i].end() > addr })
	if i == len(as.regions) {
		return nil
	}
	r := as.regions[i]
	if addr < r.base || addr+uint64(n) > r.end() {
		return nil
	}
	return r
}

func (as *addressSpace) faulted(addr uint64, n int) bool {
	for a := range as.faults {
		if a >= addr && a < addr+uint64(n) {
			return true
		}
	}
	return false
}

func (as *addressSpace) read(addr uint64, dst []byte) bool {
	if as.faulted(addr, len(dst)) {
		return false
	}
	r := as.find(addr, len(dst))
	if r == nil {
		return false
	}
	copy(dst, r.data[addr-r.base:])
	return true
}

func (as *addressSpace) write(addr uint64, src []byte) {
	r := as.find(addr, len(src))
	if r == nil {
		return
	}
	copy(r.data[addr-r.base:], src)
}

func (as *addressSpace) put8(addr uint64, v uint8) { as.write(addr, []byte{v}) }

func (as *addressSpace) put32(addr uint64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	as.write(addr, b[:])
}

func (as *addressSpace) put64(addr uint64, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	as.write(addr, b[:])
}

func (as *addressSpace) putF32(addr uint64, v float32) {
	as.put32(addr, math.Float32bits(v))
}

func (as *addressSpace) putString(addr uint64, s string, max int) {
	buf := make([]byte, max)
	copy(buf[:max-1], s)
	as.write(addr, buf)
}
