package world

import (
	"fmt"
	"strconv"
	"strings"
)

// GUID identifies an entity in the world. It is made of two 32-bit halves;
// the zero value never names a live entity.
type GUID uint64

// NewGUID assembles a GUID from its halves.
func NewGUID(high, low uint32) GUID {
	return GUID(uint64(high)<<32 | uint64(low))
}

func (g GUID) Low() uint32  { return uint32(g) }
func (g GUID) High() uint32 { return uint32(g >> 32) }

// IsValid reports whether g is nonzero.
func (g GUID) IsValid() bool { return g != 0 }

// Compare orders GUIDs by high half, then low half.
func (g GUID) Compare(o GUID) int {
	switch {
	case g.High() != o.High():
		if g.High() < o.High() {
			return -1
		}
		return 1
	case g.Low() != o.Low():
		if g.Low() < o.Low() {
			return -1
		}
		return 1
	}
	return 0
}

func (g GUID) String() string {
	return fmt.Sprintf("0x%016X", uint64(g))
}

// ParseGUID accepts "0x"-prefixed hex or plain decimal.
func ParseGUID(s string) (GUID, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("world: parse guid %q: %w", s, err)
	}
	return GUID(v), nil
}

// MarshalText renders the GUID as hex so JSON clients never lose precision.
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *GUID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*g = 0
		return nil
	}
	v, err := ParseGUID(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
