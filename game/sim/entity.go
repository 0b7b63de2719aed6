package sim

import (
	"fmt"

	"github.com/kasuganosora/rotationbot/game/world"
)

// Aura is one entry in a unit's aura table.
type Aura struct {
	SpellID  uint32     `json:"spell_id"`
	Caster   world.GUID `json:"caster"`
	Flags    uint8      `json:"flags"`
	Level    uint8      `json:"level"`
	Stacks   uint8      `json:"stacks"`
	Duration uint32     `json:"duration"`
	Expire   uint32     `json:"expire"`
}

// UnitSpec describes a unit or player to place in the world.
type UnitSpec struct {
	GUID     world.GUID    `json:"guid"`
	Name     string        `json:"name"`
	Player   bool          `json:"player"`
	Class    uint8         `json:"class"`
	Position world.Vector3 `json:"position"`
	Facing   float32       `json:"facing"`

	Health    int32           `json:"health"`
	MaxHealth int32           `json:"max_health"`
	Level     int32           `json:"level"`
	PowerType world.PowerType `json:"power_type"`
	// Power and MaxPower are raw descriptor values; rage is in tenths.
	Power    map[world.PowerType]int32 `json:"power"`
	MaxPower map[world.PowerType]int32 `json:"max_power"`

	Flags         uint32     `json:"flags"`
	Faction       uint32     `json:"faction"`
	Target        world.GUID `json:"target"`
	MovementFlags uint32     `json:"movement_flags"`

	CastSpellID    uint32 `json:"cast_spell_id"`
	CastEndMs      uint32 `json:"cast_end_ms"`
	ChannelSpellID uint32 `json:"channel_spell_id"`
	ChannelEndMs   uint32 `json:"channel_end_ms"`

	HighestThreat world.GUID         `json:"highest_threat"`
	TopThreat     *world.ThreatEntry `json:"top_threat,omitempty"`

	Auras []Aura `json:"auras"`
}

// GameObjectSpec describes an interactable object.
type GameObjectSpec struct {
	GUID     world.GUID    `json:"guid"`
	Name     string        `json:"name"`
	Position world.Vector3 `json:"position"`
	Bobbing  bool          `json:"bobbing"`
}

// AddUnit places a unit. An existing entity with the same GUID is replaced.
func (w *World) AddUnit(s UnitSpec) world.GUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(s.GUID)

	typ := world.TypeUnit
	if s.Player {
		typ = world.TypePlayer
	}
	e := &entity{
		guid:   s.GUID,
		typ:    typ,
		name:   s.Name,
		obj:    w.mem.alloc(objectSize),
		desc:   w.mem.alloc(descriptorSize),
		move:   w.mem.alloc(movementSize),
		threat: w.mem.alloc(threatSize),
	}
	w.entities[s.GUID] = e
	w.byHandle[e.obj] = e

	m := w.mem
	m.put32(e.obj+uint64(world.OffObjectType), uint32(typ))
	m.put32(e.obj+uint64(world.OffDescriptorPtr), uint32(e.desc))
	m.put32(e.obj+uint64(world.OffMovementPtr), uint32(e.move))
	w.writePositionLocked(e, s.Position)
	m.putF32(e.obj+uint64(world.OffUnitFacing), s.Facing)
	m.put32(e.obj+uint64(world.OffCastSpellID), s.CastSpellID)
	m.put32(e.obj+uint64(world.OffCastEndMs), s.CastEndMs)
	m.put32(e.obj+uint64(world.OffChannelSpellID), s.ChannelSpellID)
	m.put32(e.obj+uint64(world.OffChannelEndMs), s.ChannelEndMs)
	m.put64(e.obj+uint64(world.OffHighestThreatGUID), uint64(s.HighestThreat))
	w.writeThreatLocked(e, s.TopThreat)
	m.put32(e.move+uint64(world.OffMovementFlags), s.MovementFlags)

	m.put64(e.desc+uint64(world.DescTargetGUID), uint64(s.Target))
	m.put32(e.desc+uint64(world.DescHealth), uint32(s.Health))
	m.put32(e.desc+uint64(world.DescMaxHealth), uint32(s.MaxHealth))
	m.put32(e.desc+uint64(world.DescLevel), uint32(s.Level))
	m.put32(e.desc+uint64(world.DescFactionTemplate), s.Faction)
	m.put32(e.desc+uint64(world.DescUnitFlags), s.Flags)
	m.put8(e.desc+uint64(world.DescBytes0)+1, s.Class)
	for t, v := range s.Power {
		w.writePowerLocked(e, t, v, -1)
	}
	for t, v := range s.MaxPower {
		w.writePowerLocked(e, t, -1, v)
	}
	m.put8(e.desc+uint64(world.DescPowerType), uint8(s.PowerType))

	w.writeAurasLocked(e, s.Auras)
	return s.GUID
}

// AddGameObject places an interactable object.
func (w *World) AddGameObject(s GameObjectSpec) world.GUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(s.GUID)

	e := &entity{guid: s.GUID, typ: world.TypeGameObject, name: s.Name, obj: w.mem.alloc(objectSize)}
	w.entities[s.GUID] = e
	w.byHandle[e.obj] = e
	w.mem.put32(e.obj+uint64(world.OffObjectType), uint32(world.TypeGameObject))
	w.writePositionLocked(e, s.Position)
	w.writeBobbingLocked(e, s.Bobbing)
	return s.GUID
}

// Remove deletes an entity and frees its memory; stale handles fault.
func (w *World) Remove(id world.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(id)
}

func (w *World) removeLocked(id world.GUID) {
	e, ok := w.entities[id]
	if !ok {
		return
	}
	for _, base := range []uint64{e.obj, e.desc, e.move, e.threat, e.auras} {
		if base != 0 {
			w.mem.free(base)
		}
	}
	delete(w.entities, id)
	delete(w.byHandle, e.obj)
}

func (w *World) unit(id world.GUID) (*entity, error) {
	e, ok := w.entities[id]
	if !ok || e.desc == 0 {
		return nil, fmt.Errorf("sim: no unit %s", id)
	}
	return e, nil
}

// ---- per-entity mutators ----

func (w *World) SetHealth(id world.GUID, health, max int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put32(e.desc+uint64(world.DescHealth), uint32(health))
	w.mem.put32(e.desc+uint64(world.DescMaxHealth), uint32(max))
	return nil
}

// SetPower writes raw current and max values; a negative value is left as is.
func (w *World) SetPower(id world.GUID, t world.PowerType, cur, max int32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.writePowerLocked(e, t, cur, max)
	return nil
}

func (w *World) SetPosition(id world.GUID, pos world.Vector3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("sim: no entity %s", id)
	}
	w.writePositionLocked(e, pos)
	return nil
}

func (w *World) SetFacing(id world.GUID, facing float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.putF32(e.obj+uint64(world.OffUnitFacing), facing)
	return nil
}

func (w *World) SetFlags(id world.GUID, flags uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put32(e.desc+uint64(world.DescUnitFlags), flags)
	return nil
}

func (w *World) SetTarget(id, target world.GUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put64(e.desc+uint64(world.DescTargetGUID), uint64(target))
	return nil
}

func (w *World) SetMovementFlags(id world.GUID, flags uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put32(e.move+uint64(world.OffMovementFlags), flags)
	return nil
}

// SetCasting sets the active cast; spellID 0 clears it.
func (w *World) SetCasting(id world.GUID, spellID, endMs uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put32(e.obj+uint64(world.OffCastSpellID), spellID)
	w.mem.put32(e.obj+uint64(world.OffCastEndMs), endMs)
	return nil
}

func (w *World) SetChanneling(id world.GUID, spellID, endMs uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put32(e.obj+uint64(world.OffChannelSpellID), spellID)
	w.mem.put32(e.obj+uint64(world.OffChannelEndMs), endMs)
	return nil
}

func (w *World) SetThreat(id world.GUID, highest world.GUID, top *world.ThreatEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.mem.put64(e.obj+uint64(world.OffHighestThreatGUID), uint64(highest))
	w.writeThreatLocked(e, top)
	return nil
}

// SetAuras replaces the whole aura table.
func (w *World) SetAuras(id world.GUID, auras []Aura) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, err := w.unit(id)
	if err != nil {
		return err
	}
	w.writeAurasLocked(e, auras)
	return nil
}

func (w *World) SetBobbing(id world.GUID, bobbing bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok || e.typ != world.TypeGameObject {
		return fmt.Errorf("sim: no game object %s", id)
	}
	w.writeBobbingLocked(e, bobbing)
	return nil
}

// ---- layout writers, callers hold w.mu ----

func (w *World) writePositionLocked(e *entity, p world.Vector3) {
	if e.typ == world.TypeGameObject {
		w.mem.putF32(e.obj+uint64(world.OffGameObjectPosX), p.X)
		w.mem.putF32(e.obj+uint64(world.OffGameObjectPosY), p.Y)
		w.mem.putF32(e.obj+uint64(world.OffGameObjectPosZ), p.Z)
		return
	}
	w.mem.putF32(e.obj+uint64(world.OffUnitPosX), p.X)
	w.mem.putF32(e.obj+uint64(world.OffUnitPosY), p.Y)
	w.mem.putF32(e.obj+uint64(world.OffUnitPosZ), p.Z)
}

func (w *World) writeBobbingLocked(e *entity, bobbing bool) {
	var v uint8
	if bobbing {
		v = 1
	}
	w.mem.put8(e.obj+uint64(world.OffGameObjectBobbing), v)
}

// writePowerLocked ignores types past the descriptor's seven power slots.
func (w *World) writePowerLocked(e *entity, t world.PowerType, cur, max int32) {
	if t >= powerSlots {
		return
	}
	slot := uint64(t) * 4
	if cur >= 0 {
		w.mem.put32(e.desc+uint64(world.DescPowerBase)+slot, uint32(cur))
	}
	if max >= 0 {
		w.mem.put32(e.desc+uint64(world.DescMaxPowerBase)+slot, uint32(max))
	}
}

func (w *World) writeThreatLocked(e *entity, top *world.ThreatEntry) {
	if top == nil {
		w.mem.put32(e.obj+uint64(world.OffTopThreatEntryPtr), 0)
		return
	}
	w.mem.put32(e.obj+uint64(world.OffTopThreatEntryPtr), uint32(e.threat))
	w.mem.put64(e.threat+uint64(world.OffThreatTargetGUID), uint64(top.Target))
	w.mem.put8(e.threat+uint64(world.OffThreatStatus), top.Status)
	w.mem.put8(e.threat+uint64(world.OffThreatPercent), top.Percent)
	w.mem.put32(e.threat+uint64(world.OffThreatRawValue), top.Raw)
}

// writeAurasLocked uses the inline table when it fits and the overflow heap
// otherwise.
func (w *World) writeAurasLocked(e *entity, auras []Aura) {
	if e.auras != 0 {
		w.mem.free(e.auras)
		e.auras = 0
	}
	table := e.obj + uint64(world.OffAuraTableInline)
	if len(auras) <= inlineAuraCap {
		w.mem.put32(e.obj+uint64(world.OffAuraCount), uint32(len(auras)))
	} else {
		e.auras = w.mem.alloc(len(auras) * int(world.AuraEntrySize))
		table = e.auras
		w.mem.put32(e.obj+uint64(world.OffAuraCount), world.AuraCountUnset)
		w.mem.put32(e.obj+uint64(world.OffAuraCountOverflow), uint32(len(auras)))
		w.mem.put32(e.obj+uint64(world.OffAuraTableOverflow), uint32(e.auras))
	}
	for i, a := range auras {
		base := table + uint64(i)*uint64(world.AuraEntrySize)
		w.mem.put64(base+uint64(world.AuraEntryCaster), uint64(a.Caster))
		w.mem.put32(base+uint64(world.AuraEntrySpellID), a.SpellID)
		w.mem.put8(base+uint64(world.AuraEntryFlags), a.Flags)
		w.mem.put8(base+uint64(world.AuraEntryLevel), a.Level)
		w.mem.put8(base+uint64(world.AuraEntryStacks), a.Stacks)
		w.mem.put32(base+uint64(world.AuraEntryDuration), a.Duration)
		w.mem.put32(base+uint64(world.AuraEntryExpire), a.Expire)
	}
}
