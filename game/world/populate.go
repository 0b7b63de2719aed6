package world

// descPowerSlots is the number of power fields laid out before max health.
const descPowerSlots = 7

// snapshotter builds Objects from raw provider reads. One is created per
// refresh so the game clock and local id are read once.
type snapshotter struct {
	mem   Memory
	local GUID
	nowMs uint32
}

func (s *snapshotter) build(id GUID, h Handle, typ ObjectType) *Object {
	obj := &Object{GUID: id, Type: typ, Handle: h}
	if name, err := s.mem.Provider().ObjectName(h); err == nil {
		obj.Name = name
	}

	switch typ {
	case TypeUnit, TypePlayer:
		obj.Position = Vector3{
			X: s.mem.F32(h, OffUnitPosX),
			Y: s.mem.F32(h, OffUnitPosY),
			Z: s.mem.F32(h, OffUnitPosZ),
		}
		obj.Facing = s.mem.F32(h, OffUnitFacing)
		obj.unit = s.unit(id, h)
		if typ == TypePlayer {
			obj.player = s.player(h, obj.unit)
		}
	case TypeGameObject:
		obj.Position = Vector3{
			X: s.mem.F32(h, OffGameObjectPosX),
			Y: s.mem.F32(h, OffGameObjectPosY),
			Z: s.mem.F32(h, OffGameObjectPosZ),
		}
		obj.gameObject = &GameObjectInfo{
			Bobbing: s.mem.U8(h, OffGameObjectBobbing) == 1,
		}
	}
	return obj
}

func (s *snapshotter) unit(id GUID, h Handle) *UnitInfo {
	u := &UnitInfo{
		CastSpellID:         s.mem.U32(h, OffCastSpellID),
		CastEndMs:           s.mem.U32(h, OffCastEndMs),
		ChannelSpellID:      s.mem.U32(h, OffChannelSpellID),
		ChannelEndMs:        s.mem.U32(h, OffChannelEndMs),
		HighestThreatTarget: s.mem.GUID(h, OffHighestThreatGUID),
	}
	u.Casting = u.CastSpellID != 0 && s.nowMs < u.CastEndMs
	u.Channeling = u.ChannelSpellID != 0 && s.nowMs < u.ChannelEndMs

	if desc := s.mem.Ptr(h, OffDescriptorPtr); desc != 0 {
		u.Health = s.mem.I32(desc, DescHealth)
		u.MaxHealth = s.mem.I32(desc, DescMaxHealth)
		u.Level = s.mem.I32(desc, DescLevel)
		u.Flags = s.mem.U32(desc, DescUnitFlags)
		u.FactionTemplate = s.mem.U32(desc, DescFactionTemplate)
		u.Target = s.mem.GUID(desc, DescTargetGUID)
		u.PowerType = PowerType(s.mem.U8(desc, DescPowerType))
		if int(u.PowerType) >= PowerTypeCount {
			u.PowerType = PowerMana
		}
		for i := uint32(0); i < descPowerSlots; i++ {
			u.Power[i] = s.mem.I32(desc, DescPowerBase+i*4)
			u.MaxPower[i] = s.mem.I32(desc, DescMaxPowerBase+i*4)
		}
	}

	if te := s.mem.Ptr(h, OffTopThreatEntryPtr); te != 0 {
		u.TopThreat = &ThreatEntry{
			Target:  s.mem.GUID(te, OffThreatTargetGUID),
			Status:  s.mem.U8(te, OffThreatStatus),
			Percent: s.mem.U8(te, OffThreatPercent),
			Raw:     s.mem.U32(te, OffThreatRawValue),
		}
	}

	if id == s.local && s.local.IsValid() {
		if mv := s.mem.Ptr(h, OffMovementPtr); mv != 0 {
			u.MovementFlags = s.mem.U32(mv, OffMovementFlags)
		}
		u.ComboPoints = s.mem.U8(0, GlobalComboPoints)
		u.ComboTarget = s.mem.GUID(0, GlobalComboTargetGUID)
	}
	return u
}

func (s *snapshotter) player(h Handle, u *UnitInfo) *PlayerInfo {
	p := &PlayerInfo{Looting: u.HasFlag(UnitFlagLooting)}
	if desc := s.mem.Ptr(h, OffDescriptorPtr); desc != 0 {
		p.Class = s.mem.U8(desc, DescBytes0+1)
	}
	return p
}
