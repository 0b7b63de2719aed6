package world

import "math"

// Handle is an opaque provider reference to an entity's storage. Handle 0
// combined with an absolute offset addresses process-wide globals.
type Handle uint64

// ObjectType is the classification tag stored with every entity.
type ObjectType uint8

const (
	TypeNone          ObjectType = 0
	TypeItem          ObjectType = 1
	TypeContainer     ObjectType = 2
	TypeUnit          ObjectType = 3
	TypePlayer        ObjectType = 4
	TypeGameObject    ObjectType = 5
	TypeDynamicObject ObjectType = 6
	TypeCorpse        ObjectType = 7
)

var objectTypeNames = [...]string{
	"None", "Item", "Container", "Unit", "Player", "GameObject", "DynamicObject", "Corpse",
}

func (t ObjectType) String() string {
	if int(t) < len(objectTypeNames) {
		return objectTypeNames[t]
	}
	return "Unknown"
}

// ParseObjectType maps a type name (case-sensitive, as returned by String)
// back to its tag.
func ParseObjectType(s string) (ObjectType, bool) {
	for i, n := range objectTypeNames {
		if n == s {
			return ObjectType(i), true
		}
	}
	return TypeNone, false
}

// PowerType indexes the per-resource power arrays on a unit.
type PowerType uint8

const (
	PowerMana       PowerType = 0
	PowerRage       PowerType = 1
	PowerFocus      PowerType = 2
	PowerEnergy     PowerType = 3
	PowerHappiness  PowerType = 4
	PowerRune       PowerType = 6
	PowerRunicPower PowerType = 7

	PowerTypeCount = 8
)

func (p PowerType) String() string {
	switch p {
	case PowerMana:
		return "Mana"
	case PowerRage:
		return "Rage"
	case PowerFocus:
		return "Focus"
	case PowerEnergy:
		return "Energy"
	case PowerHappiness:
		return "Happiness"
	case PowerRune:
		return "Rune"
	case PowerRunicPower:
		return "RunicPower"
	}
	return "Unknown"
}

// ParsePowerType maps the resource names used in rotation files.
// "None" and unknown names report ok=false.
func ParsePowerType(s string) (PowerType, bool) {
	switch s {
	case "Mana", "mana", "":
		return PowerMana, s != ""
	case "Rage", "rage":
		return PowerRage, true
	case "Focus", "focus":
		return PowerFocus, true
	case "Energy", "energy":
		return PowerEnergy, true
	case "Happiness":
		return PowerHappiness, true
	case "Rune", "Runes":
		return PowerRune, true
	case "RunicPower", "Runic Power":
		return PowerRunicPower, true
	}
	return PowerMana, false
}

// Unit flag bits.
const (
	UnitFlagNotAttackable   uint32 = 0x00000002
	UnitFlagLooting         uint32 = 0x00000400
	UnitFlagInCombat        uint32 = 0x00080000
	UnitFlagFleeing         uint32 = 0x00800000
	UnitFlagHealingExcluded uint32 = 0x00008808 // all bits set marks a unit heals should skip
)

// MovementActiveMask covers the locomotion bits that mean the unit is moving.
const MovementActiveMask uint32 = 0x00000001 | // forward
	0x00000002 | // backward
	0x00000004 | // strafe left
	0x00000008 | // strafe right
	0x00001000 | // falling
	0x00002000 | // falling far
	0x00200000 | // swimming
	0x00400000 | // ascending
	0x00800000 | // descending
	0x02000000 | // flying
	0x04000000 | // spline elevation
	0x08000000 | // spline enabled
	0x40000000 // hover

// IntersectFlags select which geometry a collision probe tests against.
type IntersectFlags uint32

const (
	IntersectDoodadCollision IntersectFlags = 0x1
	IntersectWmoCollision    IntersectFlags = 0x2
	IntersectTerrain         IntersectFlags = 0x100
	IntersectEntityCollision IntersectFlags = 0x100000

	GameGenericLOS        IntersectFlags = 0x100111
	GameObservedPlayerLOS IntersectFlags = 0x1000124
)

// Vector3 is a world position.
type Vector3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Scale(f float32) Vector3 {
	return Vector3{v.X * f, v.Y * f, v.Z * f}
}

// Lerp returns the point at fraction t along v→o.
func (v Vector3) Lerp(o Vector3, t float32) Vector3 {
	return v.Add(o.Sub(v).Scale(t))
}

func (v Vector3) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

func (v Vector3) DistanceSq(o Vector3) float32 {
	d := v.Sub(o)
	return d.X*d.X + d.Y*d.Y + d.Z*d.Z
}

func (v Vector3) Distance(o Vector3) float32 {
	return float32(math.Sqrt(float64(v.DistanceSq(o))))
}

// Distance2D ignores height.
func (v Vector3) Distance2D(o Vector3) float32 {
	dx, dy := float64(o.X-v.X), float64(o.Y-v.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}
