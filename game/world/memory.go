package world

import (
	"encoding/binary"
	"math"
)

// Memory wraps a Provider with typed little-endian reads. The plain
// accessors return the zero value on any fault; the Try variants report it.
type Memory struct {
	p Provider
}

func NewMemory(p Provider) Memory { return Memory{p: p} }

// Provider returns the wrapped provider.
func (m Memory) Provider() Provider { return m.p }

func (m Memory) Read(h Handle, off uint32, dst []byte) error {
	if m.p == nil {
		return ErrReadFault
	}
	return m.p.ReadField(h, off, dst)
}

func (m Memory) TryU8(h Handle, off uint32) (uint8, bool) {
	var b [1]byte
	if err := m.Read(h, off, b[:]); err != nil {
		return 0, false
	}
	return b[0], true
}

func (m Memory) TryU32(h Handle, off uint32) (uint32, bool) {
	var b [4]byte
	if err := m.Read(h, off, b[:]); err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:]), true
}

func (m Memory) TryU64(h Handle, off uint32) (uint64, bool) {
	var b [8]byte
	if err := m.Read(h, off, b[:]); err != nil {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[:]), true
}

func (m Memory) U8(h Handle, off uint32) uint8 {
	v, _ := m.TryU8(h, off)
	return v
}

func (m Memory) U16(h Handle, off uint32) uint16 {
	var b [2]byte
	if err := m.Read(h, off, b[:]); err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b[:])
}

func (m Memory) U32(h Handle, off uint32) uint32 {
	v, _ := m.TryU32(h, off)
	return v
}

func (m Memory) I32(h Handle, off uint32) int32 {
	return int32(m.U32(h, off))
}

func (m Memory) U64(h Handle, off uint32) uint64 {
	v, _ := m.TryU64(h, off)
	return v
}

func (m Memory) F32(h Handle, off uint32) float32 {
	return math.Float32frombits(m.U32(h, off))
}

func (m Memory) GUID(h Handle, off uint32) GUID {
	return GUID(m.U64(h, off))
}

// Ptr reads a 32-bit pointer and returns it as a Handle.
func (m Memory) Ptr(h Handle, off uint32) Handle {
	return Handle(m.U32(h, off))
}

// CString reads a NUL-terminated string of at most max bytes.
func (m Memory) CString(h Handle, off uint32, max int) string {
	buf := make([]byte, max)
	if err := m.Read(h, off, buf); err != nil {
		return ""
	}
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
