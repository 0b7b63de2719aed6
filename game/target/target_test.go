package target

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kasuganosora/rotationbot/game/sim"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	heroGUID world.GUID = 0x100
	wolfGUID world.GUID = 0x200
	boarGUID world.GUID = 0x300
	allyGUID world.GUID = 0x400
)

type fixture struct {
	w      *sim.World
	om     *world.ObjectManager
	cls    *Classifier
	finder *Finder
	clock  time.Time
}

func newFixture(t *testing.T, units ...sim.UnitSpec) *fixture {
	t.Helper()
	w := sim.New()
	w.AddUnit(sim.UnitSpec{
		GUID: heroGUID, Name: "Hero", Player: true,
		Health: 100, MaxHealth: 100, Position: world.Vector3{X: 1, Y: 1},
	})
	for _, u := range units {
		w.AddUnit(u)
	}
	w.SetLocalPlayer(heroGUID)
	w.SetInWorld(true)

	om := world.NewObjectManager(w, time.Millisecond, nil, zap.NewNop())
	cls := NewClassifier(om, skill.NewAuraReader(w), NewBlacklist([]string{"Rat"}, []string{"totem"}), 0, nil, zap.NewNop())
	f := &fixture{w: w, om: om, cls: cls, finder: NewFinder(om, cls), clock: time.Now()}
	f.refresh()
	return f
}

func (f *fixture) refresh() {
	f.clock = f.clock.Add(time.Second)
	f.om.Tick(f.clock)
}

func (f *fixture) obj(id world.GUID) *world.Object { return f.om.Get(id) }

func mob(id world.GUID, name string, x float32) sim.UnitSpec {
	return sim.UnitSpec{GUID: id, Name: name, Health: 50, MaxHealth: 100, Position: world.Vector3{X: x, Y: 1}}
}

// ---- Blacklist ----

func TestBlacklist_IsBlacklisted(t *testing.T) {
	b := NewBlacklist([]string{"Deer", " sheep "}, []string{"Totem"})
	assert.True(t, b.IsBlacklisted("deer"))
	assert.True(t, b.IsBlacklisted("SHEEP"))
	assert.True(t, b.IsBlacklisted("Searing Totem"))
	assert.False(t, b.IsBlacklisted("Deer Hunter"))
	assert.False(t, b.IsBlacklisted(""))

	var nilList *Blacklist
	assert.False(t, nilList.IsBlacklisted("deer"))
}

// ---- ReactionCache ----

func TestReactionCache_Capacity(t *testing.T) {
	rc := NewReactionCache(3)
	for i := 1; i <= 3; i++ {
		assert.True(t, rc.Put(world.GUID(i), i))
	}
	assert.False(t, rc.Put(4, 1), "full cache skips inserts")
	assert.Equal(t, 3, rc.Len())
	_, ok := rc.Get(4)
	assert.False(t, ok)

	r, ok := rc.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, r, "existing entries are never evicted")

	rc.Clear()
	assert.Equal(t, 0, rc.Len())
	assert.True(t, rc.Put(4, 2))
}

func TestReactionCache_PutExisting(t *testing.T) {
	rc := NewReactionCache(0)
	assert.Equal(t, DefaultReactionCacheSize, rc.Cap())
	assert.True(t, rc.Put(1, 2))
	assert.False(t, rc.Put(1, 5))
	r, _ := rc.Get(1)
	assert.Equal(t, 2, r)
	assert.Len(t, rc.Entries(), 1)
}

// ---- Classifier ----

func TestClassifier_Reaction_Memoised(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 5))
	f.w.SetRelation(heroGUID, wolfGUID, 2)

	hero, wolf := f.obj(heroGUID), f.obj(wolfGUID)
	assert.Equal(t, 2, f.cls.Reaction(hero, wolf))

	f.w.SetRelation(heroGUID, wolfGUID, 5)
	assert.Equal(t, 2, f.cls.Reaction(hero, wolf))
	assert.Equal(t, 1, f.cls.Reactions().Len())
}

func TestClassifier_Reaction_ErrorNotCached(t *testing.T) {
	f := newFixture(t)
	ghost := &world.Object{GUID: 0x999, Handle: 0xDEAD0000}
	assert.Equal(t, ReactionFriendly, f.cls.Reaction(f.obj(heroGUID), ghost))
	assert.Equal(t, 0, f.cls.Reactions().Len())
}

func TestClassifier_DefaultMode_OrdinalOnly(t *testing.T) {
	horde := sim.UnitSpec{GUID: wolfGUID, Name: "Orc", Player: true, Health: 10, MaxHealth: 10,
		Auras: []sim.Aura{{SpellID: AuraHordeMarker}}}
	f := newFixture(t, horde, mob(boarGUID, "Boar", 5))
	f.w.SetRelation(heroGUID, wolfGUID, 4)
	f.w.SetRelation(heroGUID, boarGUID, 3)
	hero := f.obj(heroGUID)

	assert.False(t, f.cls.IsAttackable(hero, f.obj(wolfGUID)), "markers ignored outside group contest")
	assert.True(t, f.cls.IsFriendly(hero, f.obj(wolfGUID)))
	assert.True(t, f.cls.IsAttackable(hero, f.obj(boarGUID)))
	assert.False(t, f.cls.IsFriendly(hero, f.obj(boarGUID)))
}

func TestClassifier_GroupContest_Markers(t *testing.T) {
	hero := sim.UnitSpec{GUID: heroGUID, Name: "Hero", Player: true, Health: 10, MaxHealth: 10,
		Position: world.Vector3{X: 1, Y: 1}, Auras: []sim.Aura{{SpellID: AuraAllianceMarker}}}
	orc := sim.UnitSpec{GUID: wolfGUID, Name: "Orc", Player: true, Health: 10, MaxHealth: 10,
		Auras: []sim.Aura{{SpellID: AuraHordeMarker}}}
	human := sim.UnitSpec{GUID: allyGUID, Name: "Human", Player: true, Health: 10, MaxHealth: 10,
		Auras: []sim.Aura{{SpellID: AuraAllianceMarker}}}
	f := newFixture(t, hero, orc, human)
	// Native reactions would say the opposite.
	f.w.SetRelation(heroGUID, wolfGUID, 5)
	f.w.SetRelation(heroGUID, allyGUID, 1)

	f.cls.SetGroupContestMode(true)
	require.Equal(t, FactionAlliance, f.cls.UpdateLocalFaction(f.obj(heroGUID)))

	self := f.obj(heroGUID)
	assert.True(t, f.cls.IsAttackable(self, f.obj(wolfGUID)))
	assert.False(t, f.cls.IsFriendly(self, f.obj(wolfGUID)))
	assert.False(t, f.cls.IsAttackable(self, f.obj(allyGUID)))
	assert.True(t, f.cls.IsFriendly(self, f.obj(allyGUID)))

	f.cls.SetGroupContestMode(false)
	assert.Equal(t, FactionUnknown, f.cls.LocalFaction())
}

func TestClassifier_GroupContest_NonPlayerFallback(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 5), mob(boarGUID, "Boar", 6))
	f.w.SetRelation(heroGUID, wolfGUID, 3)
	f.w.SetRelation(heroGUID, boarGUID, 2)
	f.cls.SetGroupContestMode(true)
	self := f.obj(heroGUID)

	assert.Equal(t, FactionUnknown, f.cls.UpdateLocalFaction(self))
	assert.False(t, f.cls.IsAttackable(self, f.obj(wolfGUID)), "neutral is not attackable in group contest")
	assert.True(t, f.cls.IsAttackable(self, f.obj(boarGUID)))
}

func TestClassifier_Exclusions(t *testing.T) {
	dead := mob(wolfGUID, "Wolf", 5)
	dead.Health = 0
	f := newFixture(t, dead, mob(boarGUID, "Rat", 5))
	f.w.SetDefaultRelation(1)
	f.refresh()
	self := f.obj(heroGUID)

	assert.False(t, f.cls.IsAttackable(self, nil))
	assert.False(t, f.cls.IsAttackable(self, self))
	assert.False(t, f.cls.IsAttackable(self, f.obj(wolfGUID)))
	assert.False(t, f.cls.IsAttackable(self, f.obj(boarGUID)))
	assert.True(t, f.cls.IsFriendly(self, self))
	assert.False(t, f.cls.IsFriendly(self, nil))
	assert.False(t, f.cls.IsFriendly(self, f.obj(wolfGUID)))
}

func TestClassifier_WorldLeaveClearsCache(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 5))
	hc := hook.NewHookCenter()
	f.cls.RegisterHooks(hc)
	f.om.SetHooks(hc)

	f.cls.Reaction(f.obj(heroGUID), f.obj(wolfGUID))
	require.Equal(t, 1, f.cls.Reactions().Len())

	f.w.SetInWorld(false)
	f.refresh()
	assert.Equal(t, 0, f.cls.Reactions().Len())
}

// ---- LineOfSight ----

func countingCollision(blockFirst int) sim.CollisionFunc {
	calls := 0
	return func(_, _ world.Vector3, _ world.IntersectFlags) (bool, float32, error) {
		calls++
		if calls <= blockFirst {
			return true, 0.3, nil
		}
		return false, 1, nil
	}
}

func TestLineOfSight_AlwaysClear(t *testing.T) {
	w := sim.New()
	los := NewLineOfSight(w, LOSConfig{})
	r := los.Explain(world.Vector3{}, world.Vector3{X: 30})
	assert.True(t, r.Visible)
	assert.Equal(t, 14, r.Total)
	assert.Equal(t, 1.0, r.Ratio)
}

func TestLineOfSight_AlwaysBlocked(t *testing.T) {
	w := sim.New()
	w.SetCollision(func(_, _ world.Vector3, _ world.IntersectFlags) (bool, float32, error) {
		return true, 0.5, nil
	})
	los := NewLineOfSight(w, DefaultLOSConfig())
	assert.False(t, los.Visible(world.Vector3{}, world.Vector3{X: 5}))
	assert.False(t, los.Visible(world.Vector3{}, world.Vector3{X: 50}))
}

func TestLineOfSight_NearlyReachedCountsClear(t *testing.T) {
	w := sim.New()
	w.SetCollision(func(_, _ world.Vector3, _ world.IntersectFlags) (bool, float32, error) {
		return true, 0.995, nil
	})
	los := NewLineOfSight(w, DefaultLOSConfig())
	assert.True(t, los.Visible(world.Vector3{}, world.Vector3{X: 50}))
}

func TestLineOfSight_ProbeErrorIsBlocked(t *testing.T) {
	w := sim.New()
	w.SetCollision(func(_, _ world.Vector3, _ world.IntersectFlags) (bool, float32, error) {
		return false, 1, errors.New("boom")
	})
	r := NewLineOfSight(w, DefaultLOSConfig()).Explain(world.Vector3{}, world.Vector3{X: 5})
	assert.False(t, r.Visible)
	assert.Equal(t, 0, r.Clear)
	assert.Equal(t, "boom", r.Probes[0].Error)
}

func TestLineOfSight_DistanceBands(t *testing.T) {
	w := sim.New()
	los := NewLineOfSight(w, DefaultLOSConfig())

	// 10 of 14 clear: 0.71 passes the near band only.
	w.SetCollision(countingCollision(4))
	near := los.Explain(world.Vector3{}, world.Vector3{X: 10})
	assert.True(t, near.Visible)
	assert.Equal(t, 0.7, near.Threshold)

	w.SetCollision(countingCollision(4))
	far := los.Explain(world.Vector3{}, world.Vector3{X: 30})
	assert.False(t, far.Visible)
	assert.Equal(t, 0.8, far.Threshold)

	w.SetCollision(countingCollision(2))
	assert.True(t, los.Visible(world.Vector3{}, world.Vector3{X: 30}))
}

func TestLineOfSight_ProbeLayout(t *testing.T) {
	w := sim.New()
	r := NewLineOfSight(w, DefaultLOSConfig()).Explain(world.Vector3{Z: 1}, world.Vector3{X: 10, Z: 1})
	require.Len(t, r.Probes, 14)

	assert.Equal(t, float32(1), r.Probes[0].Start.Z)
	assert.Equal(t, world.GameGenericLOS, r.Probes[0].Flags)
	assert.Equal(t, world.GameObservedPlayerLOS, r.Probes[1].Flags)
	assert.Equal(t, float32(3), r.Probes[9].Start.Z)
	assert.Equal(t, float32(3), r.Probes[9].End.Z)

	for i, p := range r.Probes[10:] {
		assert.Equal(t, world.GameGenericLOS, p.Flags)
		assert.Equal(t, float32(0), p.Start.X)
		assert.InDelta(t, float64(2*(i+1)), float64(p.End.X), 1e-4)
	}
}

// ---- Finder ----

func TestFinder_FindBestEnemy_Nearest(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 20), mob(boarGUID, "Boar", 10))
	f.w.SetDefaultRelation(1)
	assert.Equal(t, boarGUID, f.finder.FindBestEnemy(EnemyOptions{}))
	assert.Equal(t, wolfGUID, f.finder.FindBestEnemy(EnemyOptions{NameFilter: "wol"}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestEnemy(EnemyOptions{MaxRange: 5}))
}

func TestFinder_FindBestEnemy_PrefersCurrentTarget(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 20), mob(boarGUID, "Boar", 10))
	f.w.SetDefaultRelation(1)
	f.w.SetCurrentTarget(wolfGUID)
	assert.Equal(t, wolfGUID, f.finder.FindBestEnemy(EnemyOptions{}))

	// Out of range current target falls back to the scan.
	assert.Equal(t, boarGUID, f.finder.FindBestEnemy(EnemyOptions{MaxRange: 15}))
}

func TestFinder_FindBestEnemy_OnlyCombat(t *testing.T) {
	fighting := mob(wolfGUID, "Wolf", 20)
	fighting.Flags = world.UnitFlagInCombat
	f := newFixture(t, fighting, mob(boarGUID, "Boar", 10))
	f.w.SetDefaultRelation(1)
	assert.Equal(t, wolfGUID, f.finder.FindBestEnemy(EnemyOptions{OnlyCombat: true}))
}

func TestFinder_FindBestEnemy_Tanking(t *testing.T) {
	engaged := mob(wolfGUID, "Wolf", 20)
	engaged.HighestThreat = heroGUID
	f := newFixture(t, engaged, mob(boarGUID, "Boar", 10))
	f.w.SetDefaultRelation(1)
	assert.Equal(t, wolfGUID, f.finder.FindBestEnemy(EnemyOptions{Tanking: true}))

	f.w.Remove(wolfGUID)
	f.refresh()
	assert.Equal(t, boarGUID, f.finder.FindBestEnemy(EnemyOptions{Tanking: true}), "falls back when nothing is engaged")
}

func TestFinder_FindBestFriendly(t *testing.T) {
	hurt := mob(allyGUID, "Priest", 5)
	hurt.Health = 30
	scratched := mob(boarGUID, "Paladin", 6)
	scratched.Health = 90
	f := newFixture(t, hurt, scratched)
	require.NoError(t, f.w.SetHealth(heroGUID, 10, 100))
	f.refresh()

	assert.Equal(t, allyGUID, f.finder.FindBestFriendly(FriendlyOptions{HealthThreshold: 80}))
	assert.Equal(t, heroGUID, f.finder.FindBestFriendly(FriendlyOptions{HealthThreshold: 80, IncludeSelf: true}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestFriendly(FriendlyOptions{HealthThreshold: 20}))

	f.w.SetCurrentTarget(boarGUID)
	assert.Equal(t, boarGUID, f.finder.FindBestFriendly(FriendlyOptions{HealthThreshold: 80}))
}

func TestFinder_FindBestAny(t *testing.T) {
	excluded := mob(wolfGUID, "Spirit", 3)
	excluded.Flags = world.UnitFlagHealingExcluded
	origin := mob(boarGUID, "Nowhere", 0)
	origin.Position = world.Vector3{}
	f := newFixture(t, excluded, origin, mob(allyGUID, "Priest", 8))

	assert.Equal(t, wolfGUID, f.finder.FindBestAny(AnyOptions{}), "others win over self at distance 0")
	assert.Equal(t, allyGUID, f.finder.FindBestAny(AnyOptions{Healing: true}))
	assert.Equal(t, heroGUID, f.finder.FindBestAny(AnyOptions{NameFilter: "hero"}), "self when nothing else qualifies")
	assert.Equal(t, wolfGUID, f.finder.FindBestAny(AnyOptions{NameFilter: "spir"}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestAny(AnyOptions{NameFilter: "spir", Healing: true}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestAny(AnyOptions{NameFilter: "nowhere"}))
}

func TestFinder_FindBestTarget_Dispatch(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 5))
	f.w.SetDefaultRelation(1)
	assert.Equal(t, heroGUID, f.finder.FindBestTarget(TargetSelf, Options{}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestTarget(TargetNone, Options{}))
	assert.Equal(t, wolfGUID, f.finder.FindBestTarget(TargetEnemy, Options{}))
}

func TestFinder_NoLocalPlayer(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 5))
	f.om.Shutdown()
	assert.Equal(t, world.GUID(0), f.finder.FindBestEnemy(EnemyOptions{}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestFriendly(FriendlyOptions{}))
	assert.Equal(t, world.GUID(0), f.finder.FindBestAny(AnyOptions{}))
}

func TestShouldHeal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.w.SetHealth(heroGUID, 40, 100))
	f.refresh()
	assert.True(t, ShouldHeal(f.obj(heroGUID), 50))
	assert.False(t, ShouldHeal(f.obj(heroGUID), 40))
	assert.False(t, ShouldHeal(nil, 50))
}

func TestParseTargetType(t *testing.T) {
	tt, err := ParseTargetType("selforfriendly")
	require.NoError(t, err)
	assert.Equal(t, TargetSelfOrFriendly, tt)
	_, err = ParseTargetType("Pet")
	assert.Error(t, err)
}

// ---- Geometry ----

func TestIsFacing(t *testing.T) {
	a := &world.Object{Position: world.Vector3{}, Facing: 0}
	ahead := &world.Object{Position: world.Vector3{X: 10, Y: 1}}
	behind := &world.Object{Position: world.Vector3{X: -10}}
	side := &world.Object{Position: world.Vector3{Y: 10}}

	assert.True(t, IsFacing(a, ahead, 60))
	assert.False(t, IsFacing(a, behind, 60))
	assert.False(t, IsFacing(a, side, 60))
	assert.True(t, IsFacing(a, side, 200))
	assert.True(t, IsFacing(a, &world.Object{}, 1))

	north := &world.Object{Facing: float32(3 * math.Pi / 2)}
	assert.True(t, IsFacing(north, &world.Object{Position: world.Vector3{Y: -5}}, 30))
}

func TestFinder_CountUnitsInMeleeRange(t *testing.T) {
	f := newFixture(t, mob(wolfGUID, "Wolf", 3), mob(boarGUID, "Boar", 4), mob(allyGUID, "Priest", 2))
	f.w.SetRelation(heroGUID, wolfGUID, 1)
	f.w.SetRelation(heroGUID, boarGUID, 3)
	hero := f.obj(heroGUID)

	assert.Equal(t, 1, f.finder.CountUnitsInMeleeRange(hero, 5, true, false, false))
	assert.Equal(t, 2, f.finder.CountUnitsInMeleeRange(hero, 5, true, true, false))
	assert.Equal(t, 3, f.finder.CountUnitsInMeleeRange(hero, 5, true, true, true))
	assert.Equal(t, 0, f.finder.CountUnitsInMeleeRange(hero, 0.5, true, true, true))
	assert.Equal(t, 0, f.finder.CountUnitsInMeleeRange(nil, 5, true, true, true))
}

func TestFinder_CountUnitsInFrontalCone(t *testing.T) {
	behind := mob(boarGUID, "Boar", -2)
	f := newFixture(t, mob(wolfGUID, "Wolf", 4), behind)
	f.w.SetDefaultRelation(1)
	f.refresh()
	hero := f.obj(heroGUID)

	assert.Equal(t, 1, f.finder.CountUnitsInFrontalCone(hero, 8, 90, true, false, false))
	assert.Equal(t, 2, f.finder.CountUnitsInFrontalCone(hero, 8, 360, true, false, false))
	assert.Equal(t, 0, f.finder.CountUnitsInFrontalCone(hero, 8, 90, false, false, true))
}
