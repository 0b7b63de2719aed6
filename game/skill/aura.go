package skill

import (
	"encoding/binary"

	"github.com/kasuganosora/rotationbot/game/world"
)

// Aura is one decoded entry of a unit's aura table.
type Aura struct {
	Caster   world.GUID `json:"caster"`
	SpellID  uint32     `json:"spell_id"`
	Flags    uint8      `json:"flags"`
	Level    uint8      `json:"level"`
	Stacks   uint8      `json:"stacks"`
	Duration uint32     `json:"duration"`
	Expire   uint32     `json:"expire"`
}

// AuraReader decodes aura tables straight from a unit's storage. It holds no
// state and is safe for concurrent use.
type AuraReader struct {
	mem world.Memory
}

func NewAuraReader(p world.Provider) *AuraReader {
	return &AuraReader{mem: world.NewMemory(p)}
}

// table resolves the entry count and table base for h.
func (ar *AuraReader) table(h world.Handle) (int, world.Handle) {
	count, ok := ar.mem.TryU32(h, world.OffAuraCount)
	if !ok {
		return 0, 0
	}
	base := h + world.Handle(world.OffAuraTableInline)
	if count == world.AuraCountUnset {
		count, ok = ar.mem.TryU32(h, world.OffAuraCountOverflow)
		if !ok {
			return 0, 0
		}
		base = ar.mem.Ptr(h, world.OffAuraTableOverflow)
		if base == 0 {
			return 0, 0
		}
	}
	if count > world.AuraMaxEntries {
		count = world.AuraMaxEntries
	}
	return int(count), base
}

// Count returns the number of aura slots on h.
func (ar *AuraReader) Count(h world.Handle) int {
	n, _ := ar.table(h)
	return n
}

func (ar *AuraReader) entry(base world.Handle, i int) (Aura, bool) {
	var b [world.AuraEntrySize]byte
	if err := ar.mem.Read(base, uint32(i)*world.AuraEntrySize, b[:]); err != nil {
		return Aura{}, false
	}
	return Aura{
		Caster:   world.GUID(binary.LittleEndian.Uint64(b[world.AuraEntryCaster:])),
		SpellID:  binary.LittleEndian.Uint32(b[world.AuraEntrySpellID:]),
		Flags:    b[world.AuraEntryFlags],
		Level:    b[world.AuraEntryLevel],
		Stacks:   b[world.AuraEntryStacks],
		Duration: binary.LittleEndian.Uint32(b[world.AuraEntryDuration:]),
		Expire:   binary.LittleEndian.Uint32(b[world.AuraEntryExpire:]),
	}, true
}

// each visits readable entries until fn returns false.
func (ar *AuraReader) each(h world.Handle, fn func(Aura) bool) {
	n, base := ar.table(h)
	for i := 0; i < n; i++ {
		a, ok := ar.entry(base, i)
		if !ok || a.SpellID == 0 {
			continue
		}
		if !fn(a) {
			return
		}
	}
}

// Auras returns every readable entry on h.
func (ar *AuraReader) Auras(h world.Handle) []Aura {
	var out []Aura
	ar.each(h, func(a Aura) bool {
		out = append(out, a)
		return true
	})
	return out
}

// HasAura reports whether h carries spellID. A zero caster matches any caster.
func (ar *AuraReader) HasAura(h world.Handle, spellID uint32, caster world.GUID) bool {
	return ar.HasAuraWithMinStacks(h, spellID, 0, caster)
}

// HasAuraWithMinStacks requires a single entry with at least minStacks.
// minStacks <= 0 behaves like HasAura.
func (ar *AuraReader) HasAuraWithMinStacks(h world.Handle, spellID uint32, minStacks int, caster world.GUID) bool {
	found := false
	ar.each(h, func(a Aura) bool {
		if a.SpellID != spellID || (caster.IsValid() && a.Caster != caster) {
			return true
		}
		if minStacks <= 0 || int(a.Stacks) >= minStacks {
			found = true
			return false
		}
		return true
	})
	return found
}

// StackCount returns the highest stack count of spellID on h, or 0.
func (ar *AuraReader) StackCount(h world.Handle, spellID uint32, caster world.GUID) int {
	best := 0
	ar.each(h, func(a Aura) bool {
		if a.SpellID == spellID && (!caster.IsValid() || a.Caster == caster) && int(a.Stacks) > best {
			best = int(a.Stacks)
		}
		return true
	})
	return best
}
