package target

import (
	"math"

	"github.com/kasuganosora/rotationbot/game/world"
)

const twoPi = 2 * math.Pi

// normalizeAngle maps a to [-π, π].
func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= twoPi
	}
	for a < -math.Pi {
		a += twoPi
	}
	return a
}

// angleDelta is the signed angle between a's facing and the bearing to pos.
func angleDelta(a *world.Object, pos world.Vector3) float64 {
	bearing := math.Atan2(float64(pos.Y-a.Position.Y), float64(pos.X-a.Position.X))
	if bearing < 0 {
		bearing += twoPi
	}
	return normalizeAngle(bearing - float64(a.Facing))
}

// IsFacing reports whether b lies inside a's frontal cone. Coincident
// positions count as facing.
func IsFacing(a, b *world.Object, coneDegrees float64) bool {
	if a == nil || b == nil {
		return false
	}
	dx := math.Abs(float64(b.Position.X - a.Position.X))
	dy := math.Abs(float64(b.Position.Y - a.Position.Y))
	if dx < 0.001 && dy < 0.001 {
		return true
	}
	half := coneDegrees * math.Pi / 180 / 2
	return math.Abs(angleDelta(a, b.Position)) <= half
}

// reactionFilter selects which reaction bands are counted.
type reactionFilter struct {
	hostile, neutral, friendly bool
}

func (rf reactionFilter) match(r int) bool {
	switch {
	case r <= ReactionUnfriendly:
		return rf.hostile
	case r == ReactionNeutral:
		return rf.neutral
	}
	return rf.friendly
}

func (f *Finder) countUnits(center *world.Object, rf reactionFilter, keep func(*world.Object) bool) int {
	if center == nil || !f.om.IsActive() {
		return 0
	}
	viewer := f.om.LocalPlayer()
	if viewer == nil {
		viewer = center
	}
	n := 0
	for _, o := range f.om.ObjectsByType(world.TypeUnit) {
		if o.GUID == center.GUID || o.IsDead() {
			continue
		}
		if !rf.match(f.cls.Reaction(viewer, o)) || !keep(o) {
			continue
		}
		n++
	}
	return n
}

// CountUnitsInMeleeRange counts living units within rng of center whose
// reaction falls in one of the selected bands.
func (f *Finder) CountUnitsInMeleeRange(center *world.Object, rng float32, hostile, neutral, friendly bool) int {
	return f.countUnits(center, reactionFilter{hostile, neutral, friendly}, func(o *world.Object) bool {
		return center.DistanceTo(o) <= rng
	})
}

// CountUnitsInFrontalCone counts units within rng and coneDegrees of the
// caster's facing.
func (f *Finder) CountUnitsInFrontalCone(caster *world.Object, rng float32, coneDegrees float64, hostile, neutral, friendly bool) int {
	half := coneDegrees * math.Pi / 180 / 2
	return f.countUnits(caster, reactionFilter{hostile, neutral, friendly}, func(o *world.Object) bool {
		if caster.Position.DistanceSq(o.Position) > rng*rng {
			return false
		}
		return math.Abs(angleDelta(caster, o.Position)) <= half
	})
}
