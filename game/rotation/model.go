package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
)

var (
	// ErrProfileNotFound is returned when a named profile does not exist.
	ErrProfileNotFound = errors.New("rotation: profile not found")
	// ErrInvalidProfile wraps decode and compile failures.
	ErrInvalidProfile = errors.New("rotation: invalid profile")
)

// ConditionType selects the predicate a Condition evaluates.
type ConditionType string

const (
	CondHealthPercentBelow        ConditionType = "HEALTH_PERCENT_BELOW"
	CondManaPercentAbove          ConditionType = "MANA_PERCENT_ABOVE"
	CondTargetIsCasting           ConditionType = "TARGET_IS_CASTING"
	CondPlayerHasAura             ConditionType = "PLAYER_HAS_AURA"
	CondTargetHasAura             ConditionType = "TARGET_HAS_AURA"
	CondPlayerMissingAura         ConditionType = "PLAYER_MISSING_AURA"
	CondTargetMissingAura         ConditionType = "TARGET_MISSING_AURA"
	CondSpellOffCooldown          ConditionType = "SPELL_OFF_COOLDOWN"
	CondSpellNotOnCooldown        ConditionType = "SPELL_NOT_ON_COOLDOWN"
	CondMeleeUnitsAroundPlayerGT  ConditionType = "MELEE_UNITS_AROUND_PLAYER_GREATER_THAN"
	CondUnitsInFrontalConeGT      ConditionType = "UNITS_IN_FRONTAL_CONE_GT"
	CondPlayerThreatOnTargetBelow ConditionType = "PLAYER_THREAT_ON_TARGET_BELOW_PERCENT"
	CondSpellHasCharges           ConditionType = "SPELL_HAS_CHARGES"
	CondPlayerIsFacingTarget      ConditionType = "PLAYER_IS_FACING_TARGET"
	CondComboPointsAtLeast        ConditionType = "COMBO_POINTS_GREATER_THAN_OR_EQUAL_TO"
	CondExpression                ConditionType = "EXPRESSION"
	CondScript                    ConditionType = "SCRIPT"
	CondUnknown                   ConditionType = "UNKNOWN"
)

// AuraLogic combines multiAuraIds.
type AuraLogic string

const (
	AnyOf AuraLogic = "ANY_OF"
	AllOf AuraLogic = "ALL_OF"
)

// Condition gates a step. All of a step's conditions must hold.
type Condition struct {
	Type             ConditionType `json:"type"`
	SpellID          uint32        `json:"spellId"`
	MultiAuraIDs     []uint32      `json:"multiAuraIds,omitempty"`
	MultiAuraLogic   AuraLogic     `json:"multiAuraLogic"`
	CasterGUID       uint64        `json:"casterGuid"`
	MinStacks        int           `json:"minStacks"`
	Value            float64       `json:"value"`
	MeleeRangeValue  float64       `json:"meleeRangeValue"`
	ConeAngleDegrees float64       `json:"coneAngleDegrees"`
	FacingConeAngle  float64       `json:"facingConeAngle"`
	TargetIsPlayer   bool          `json:"targetIsPlayer"`
	TargetIsFriendly bool          `json:"targetIsFriendly"`
	Expression       string        `json:"expression,omitempty"`
	Script           string        `json:"script,omitempty"`
}

func (c *Condition) UnmarshalJSON(b []byte) error {
	type plain Condition
	v := plain{
		MultiAuraLogic:   AnyOf,
		MeleeRangeValue:  5,
		ConeAngleDegrees: 90,
		FacingConeAngle:  60,
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Type == "" {
		v.Type = CondUnknown
	}
	*c = Condition(v)
	return nil
}

// auraIDs returns the ids an aura condition checks.
func (c *Condition) auraIDs() []uint32 {
	if len(c.MultiAuraIDs) > 0 {
		return c.MultiAuraIDs
	}
	if c.SpellID != 0 {
		return []uint32{c.SpellID}
	}
	return nil
}

// BoostType selects the predicate of a PriorityBoost.
type BoostType string

const (
	BoostPlayerHasAura              BoostType = "PLAYER_HAS_AURA"
	BoostTargetHasAura              BoostType = "TARGET_HAS_AURA"
	BoostTargetHealthPercentBelow   BoostType = "TARGET_HEALTH_PERCENT_BELOW"
	BoostPlayerHealthPercentBelow   BoostType = "PLAYER_HEALTH_PERCENT_BELOW"
	BoostPlayerResourcePercentAbove BoostType = "PLAYER_RESOURCE_PERCENT_ABOVE"
	BoostPlayerResourcePercentBelow BoostType = "PLAYER_RESOURCE_PERCENT_BELOW"
	BoostTargetDistanceBelow        BoostType = "TARGET_DISTANCE_BELOW"
	BoostUnknown                    BoostType = "UNKNOWN"
)

// PriorityBoost adds to a step's priority while its predicate holds.
type PriorityBoost struct {
	Type              BoostType `json:"type"`
	AuraID            uint32    `json:"auraId"`
	ThresholdValue    float64   `json:"thresholdValue"`
	PriorityBoost     int       `json:"priorityBoost"`
	ResourceType      Resource  `json:"resourceType"`
	DistanceThreshold float64   `json:"distanceThreshold"`
	MinStacks         int       `json:"minStacks"`
}

func (p *PriorityBoost) UnmarshalJSON(b []byte) error {
	type plain PriorityBoost
	v := plain{PriorityBoost: 50, ResourceType: ResourceMana}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if v.Type == "" {
		v.Type = BoostUnknown
	}
	*p = PriorityBoost(v)
	return nil
}

// Resource names the power a step spends. "None" means the step is free.
type Resource string

const (
	ResourceMana Resource = "Mana"
	ResourceNone Resource = "None"
)

// PowerType maps r to a power slot. ok is false for None and unknown names.
func (r Resource) PowerType() (world.PowerType, bool) {
	if r == ResourceNone {
		return world.PowerMana, false
	}
	return world.ParsePowerType(string(r))
}

// Range is a [Min, Max] distance window. Max 0 means unbounded. In JSON it
// is either a bare number (the max) or {"min":..,"max":..}.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*r = Range{Max: n}
		return nil
	}
	type plain Range
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("rotation: range must be a number or {min,max}: %w", err)
	}
	*r = Range(v)
	return nil
}

// Step is one candidate action of a profile.
type Step struct {
	SpellID             uint32            `json:"id"`
	Name                string            `json:"name"`
	Range               Range             `json:"range"`
	ResourceType        Resource          `json:"resourceType"`
	ResourceCost        int32             `json:"resourceCost"`
	CastTime            float64           `json:"castTime"`
	IsChanneled         bool              `json:"isChanneled"`
	TargetType          target.TargetType `json:"targetType"`
	RequiresTarget      bool              `json:"requiresTarget"`
	BasePriority        int               `json:"basePriority"`
	PriorityBoosts      []PriorityBoost   `json:"priorityBoosts"`
	Conditions          []Condition       `json:"conditions"`
	CastableWhileMoving bool              `json:"castableWhileMoving"`
	BaseDamage          int               `json:"baseDamage"`
	MaxCharges          int               `json:"maxCharges"`
	RechargeTime        float64           `json:"rechargeTime"` // seconds
	IsHeal              bool              `json:"isHeal"`
}

func (s *Step) UnmarshalJSON(b []byte) error {
	type plain Step
	v := plain{
		ResourceType:   ResourceMana,
		TargetType:     target.TargetEnemy,
		RequiresTarget: true,
		BasePriority:   10,
		MaxCharges:     1,
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Step(v)
	return nil
}

// Recharge returns RechargeTime as a duration.
func (s *Step) Recharge() time.Duration {
	return time.Duration(s.RechargeTime * float64(time.Second))
}

// Profile is a named, ordered list of steps.
type Profile struct {
	Name         string    `json:"name"`
	ClassName    string    `json:"className"`
	Steps        []Step    `json:"steps"`
	FilePath     string    `json:"-"`
	LastModified time.Time `json:"-"`
}

// ParseProfile decodes a profile document.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	return &p, nil
}

// Decision is the action chosen by one evaluation.
type Decision struct {
	ID             string     `json:"id"`
	SpellID        uint32     `json:"spell_id"`
	Name           string     `json:"name"`
	Target         world.GUID `json:"target"`
	RequiresTarget bool       `json:"requires_target"`
	Priority       int        `json:"priority"`
	MaxCharges     int        `json:"max_charges"`
	RechargeMs     int64      `json:"recharge_ms"`
	Profile        string     `json:"profile"`
	At             time.Time  `json:"at"`
}
