package world

// Object is an immutable point-in-time snapshot of one entity. Capability
// views return nil when the entity lacks that capability.
type Object struct {
	GUID     GUID
	Type     ObjectType
	Handle   Handle
	Name     string
	Position Vector3
	Facing   float32

	unit       *UnitInfo
	player     *PlayerInfo
	gameObject *GameObjectInfo
}

// AsUnit returns the unit view. Players carry one too.
func (o *Object) AsUnit() *UnitInfo {
	if o == nil {
		return nil
	}
	return o.unit
}

func (o *Object) AsPlayer() *PlayerInfo {
	if o == nil {
		return nil
	}
	return o.player
}

func (o *Object) AsGameObject() *GameObjectInfo {
	if o == nil {
		return nil
	}
	return o.gameObject
}

// IsPlayer reports whether the snapshot was taken from a player entity.
func (o *Object) IsPlayer() bool { return o != nil && o.player != nil }

// IsDead is true for units at zero health. Non-units are never dead.
func (o *Object) IsDead() bool {
	u := o.AsUnit()
	return u != nil && u.IsDead()
}

// DistanceTo returns the straight-line distance between two snapshots.
func (o *Object) DistanceTo(other *Object) float32 {
	return o.Position.Distance(other.Position)
}

// ThreatEntry is the top entry of a unit's own threat table.
type ThreatEntry struct {
	Target  GUID   `json:"target"`
	Status  uint8  `json:"status"`
	Percent uint8  `json:"percent"`
	Raw     uint32 `json:"raw"`
}

// UnitInfo holds the combat fields of a unit or player.
type UnitInfo struct {
	Health    int32 `json:"health"`
	MaxHealth int32 `json:"max_health"`
	Level     int32 `json:"level"`

	PowerType PowerType             `json:"power_type"`
	Power     [PowerTypeCount]int32 `json:"power"`
	MaxPower  [PowerTypeCount]int32 `json:"max_power"`

	Flags           uint32 `json:"flags"`
	FactionTemplate uint32 `json:"faction_template"`
	Target          GUID   `json:"target"`
	MovementFlags   uint32 `json:"movement_flags"`

	CastSpellID    uint32 `json:"cast_spell_id"`
	CastEndMs      uint32 `json:"cast_end_ms"`
	ChannelSpellID uint32 `json:"channel_spell_id"`
	ChannelEndMs   uint32 `json:"channel_end_ms"`
	// Casting and Channeling are resolved against the game clock at refresh.
	Casting    bool `json:"casting"`
	Channeling bool `json:"channeling"`

	HighestThreatTarget GUID         `json:"highest_threat_target"`
	TopThreat           *ThreatEntry `json:"top_threat,omitempty"`

	// Only populated for the local player.
	ComboPoints uint8 `json:"combo_points"`
	ComboTarget GUID  `json:"combo_target"`
}

func (u *UnitInfo) IsDead() bool { return u.Health <= 0 }

// HealthPercent is 0 when max health is unknown.
func (u *UnitInfo) HealthPercent() float64 {
	if u.MaxHealth <= 0 {
		return 0
	}
	return float64(u.Health) / float64(u.MaxHealth) * 100
}

// PowerOf returns the current value of a resource. Rage is stored in tenths.
func (u *UnitInfo) PowerOf(t PowerType) int32 {
	if int(t) >= PowerTypeCount {
		return 0
	}
	if t == PowerRage {
		return u.Power[t] / 10
	}
	return u.Power[t]
}

func (u *UnitInfo) MaxPowerOf(t PowerType) int32 {
	if int(t) >= PowerTypeCount {
		return 0
	}
	if t == PowerRage {
		return u.MaxPower[t] / 10
	}
	return u.MaxPower[t]
}

// PowerPercent is 0 when the resource has no maximum.
func (u *UnitInfo) PowerPercent(t PowerType) float64 {
	max := u.MaxPowerOf(t)
	if max <= 0 {
		return 0
	}
	return float64(u.PowerOf(t)) / float64(max) * 100
}

func (u *UnitInfo) HasFlag(f uint32) bool { return u.Flags&f != 0 }
func (u *UnitInfo) IsInCombat() bool      { return u.HasFlag(UnitFlagInCombat) }
func (u *UnitInfo) IsFleeing() bool       { return u.HasFlag(UnitFlagFleeing) }
func (u *UnitInfo) IsMoving() bool        { return u.MovementFlags&MovementActiveMask != 0 }
func (u *UnitInfo) HasTarget() bool       { return u.Target.IsValid() }
func (u *UnitInfo) IsCasting() bool       { return u.Casting }
func (u *UnitInfo) IsChanneling() bool    { return u.Channeling }

// PlayerInfo holds the player-only fields.
type PlayerInfo struct {
	Class   uint8 `json:"class"`
	Looting bool  `json:"looting"`
}

// GameObjectInfo holds the interactable-object fields.
type GameObjectInfo struct {
	Bobbing bool `json:"bobbing"`
}
