package target

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/rotationbot/game/world"
)

// DefaultMaxRange applies when a search is given no range.
const DefaultMaxRange float32 = 40

// TargetType names who an action is aimed at.
type TargetType int

const (
	TargetEnemy TargetType = iota
	TargetSelf
	TargetFriendly
	TargetSelfOrFriendly
	TargetAny
	TargetNone
)

var targetTypeNames = map[TargetType]string{
	TargetSelf:           "Self",
	TargetEnemy:          "Enemy",
	TargetFriendly:       "Friendly",
	TargetSelfOrFriendly: "SelfOrFriendly",
	TargetAny:            "Any",
	TargetNone:           "None",
}

func (t TargetType) String() string {
	if n, ok := targetTypeNames[t]; ok {
		return n
	}
	return "Unknown"
}

// ParseTargetType accepts the names used in rotation files.
func ParseTargetType(s string) (TargetType, error) {
	for t, n := range targetTypeNames {
		if strings.EqualFold(n, s) {
			return t, nil
		}
	}
	return TargetEnemy, fmt.Errorf("target: unknown target type %q", s)
}

func (t TargetType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TargetType) UnmarshalText(b []byte) error {
	v, err := ParseTargetType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// EnemyOptions tune FindBestEnemy.
type EnemyOptions struct {
	MaxRange   float32
	OnlyCombat bool
	Tanking    bool
	NameFilter string
}

// FriendlyOptions tune FindBestFriendly. A zero HealthThreshold means 100.
type FriendlyOptions struct {
	IncludeSelf     bool
	HealthThreshold float64
	MaxRange        float32
}

// AnyOptions tune FindBestAny.
type AnyOptions struct {
	MaxRange   float32
	NameFilter string
	Healing    bool
}

// Options bundles the per-kind options for FindBestTarget.
type Options struct {
	Enemy    EnemyOptions
	Friendly FriendlyOptions
	Any      AnyOptions
}

// Finder picks targets from the snapshot cache.
type Finder struct {
	om  *world.ObjectManager
	cls *Classifier
}

func NewFinder(om *world.ObjectManager, cls *Classifier) *Finder {
	return &Finder{om: om, cls: cls}
}

func (f *Finder) Classifier() *Classifier { return f.cls }

func rangeOr(r float32) float32 {
	if r <= 0 {
		return DefaultMaxRange
	}
	return r
}

func nameMatches(name, filter string) bool {
	return filter == "" || strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// nearest returns the strictly closest candidate, first seen on ties.
func nearest(self *world.Object, candidates []*world.Object) *world.Object {
	var best *world.Object
	var bestDist float32
	for _, c := range candidates {
		d := self.Position.Distance(c.Position)
		if best == nil || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// FindBestEnemy returns the best attackable unit or zero.
func (f *Finder) FindBestEnemy(opts EnemyOptions) world.GUID {
	self := f.om.LocalPlayer()
	if self == nil {
		return 0
	}
	maxRange := rangeOr(opts.MaxRange)
	inCombatOK := func(o *world.Object) bool {
		return !opts.OnlyCombat || o.AsUnit().IsInCombat()
	}

	if cur := f.om.GetUnit(f.om.CurrentTargetGUID()); cur != nil &&
		f.cls.IsAttackable(self, cur) && self.DistanceTo(cur) <= maxRange && inCombatOK(cur) {
		return cur.GUID
	}

	var candidates []*world.Object
	for _, o := range f.om.ObjectsByType(world.TypeUnit) {
		if o.GUID == self.GUID || o.IsDead() {
			continue
		}
		if !f.cls.IsAttackable(self, o) || self.DistanceTo(o) > maxRange {
			continue
		}
		if !inCombatOK(o) || !nameMatches(o.Name, opts.NameFilter) {
			continue
		}
		candidates = append(candidates, o)
	}

	if opts.Tanking {
		var engaged []*world.Object
		for _, o := range candidates {
			u := o.AsUnit()
			if u.Target == self.GUID || u.HighestThreatTarget == self.GUID {
				engaged = append(engaged, o)
			}
		}
		if len(engaged) > 0 {
			candidates = engaged
		}
	}

	if best := nearest(self, candidates); best != nil {
		return best.GUID
	}
	return 0
}

// FindBestFriendly prefers the current friendly target, else the most
// injured friendly unit under the health threshold.
func (f *Finder) FindBestFriendly(opts FriendlyOptions) world.GUID {
	self := f.om.LocalPlayer()
	if self == nil {
		return 0
	}
	threshold := opts.HealthThreshold
	if threshold <= 0 {
		threshold = 100
	}
	maxRange := rangeOr(opts.MaxRange)

	if cur := f.om.GetUnit(f.om.CurrentTargetGUID()); cur != nil && !cur.IsDead() &&
		(cur.GUID != self.GUID || opts.IncludeSelf) && f.cls.IsFriendly(self, cur) {
		return cur.GUID
	}

	var best *world.Object
	bestPct := threshold
	for _, o := range f.om.ObjectsByType(world.TypeUnit) {
		if o.GUID == self.GUID && !opts.IncludeSelf {
			continue
		}
		if o.IsDead() || f.cls.Blacklist().IsBlacklisted(o.Name) {
			continue
		}
		if !f.cls.IsFriendly(self, o) || self.DistanceTo(o) > maxRange {
			continue
		}
		u := o.AsUnit()
		if u.MaxHealth <= 0 {
			continue
		}
		if pct := u.HealthPercent(); pct < bestPct {
			best, bestPct = o, pct
		}
	}
	if best == nil {
		return 0
	}
	return best.GUID
}

// FindBestAny returns the nearest friendly or attackable unit. Self is
// returned only when nothing else qualifies.
func (f *Finder) FindBestAny(opts AnyOptions) world.GUID {
	self := f.om.LocalPlayer()
	if self == nil {
		return 0
	}
	maxRange := rangeOr(opts.MaxRange)

	var candidates []*world.Object
	selfQualifies := false
	for _, o := range f.om.ObjectsByType(world.TypeUnit) {
		isSelf := o.GUID == self.GUID
		if !isSelf && !f.cls.IsFriendly(self, o) && !f.cls.IsAttackable(self, o) {
			continue
		}
		if o.IsDead() || f.cls.Blacklist().IsBlacklisted(o.Name) || o.Position.IsZero() {
			continue
		}
		if !nameMatches(o.Name, opts.NameFilter) {
			continue
		}
		if opts.Healing && o.AsUnit().Flags&world.UnitFlagHealingExcluded == world.UnitFlagHealingExcluded {
			continue
		}
		if self.DistanceTo(o) > maxRange {
			continue
		}
		if isSelf {
			selfQualifies = true
			continue
		}
		candidates = append(candidates, o)
	}
	if best := nearest(self, candidates); best != nil {
		return best.GUID
	}
	if selfQualifies {
		return self.GUID
	}
	return 0
}

// FindBestTarget dispatches on tt.
func (f *Finder) FindBestTarget(tt TargetType, opts Options) world.GUID {
	switch tt {
	case TargetSelf:
		return f.om.LocalGUID()
	case TargetNone:
		return 0
	case TargetFriendly:
		o := opts.Friendly
		o.IncludeSelf = false
		return f.FindBestFriendly(o)
	case TargetSelfOrFriendly:
		o := opts.Friendly
		o.IncludeSelf = true
		return f.FindBestFriendly(o)
	case TargetAny:
		return f.FindBestAny(opts.Any)
	}
	return f.FindBestEnemy(opts.Enemy)
}

// ShouldHeal reports whether unit is alive and below threshold percent.
func ShouldHeal(unit *world.Object, threshold float64) bool {
	u := unit.AsUnit()
	if u == nil || u.IsDead() || u.MaxHealth <= 0 {
		return false
	}
	return u.HealthPercent() < threshold
}
