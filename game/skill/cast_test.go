package skill

import (
	"context"
	"testing"
	"time"

	"github.com/kasuganosora/rotationbot/game/sim"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCaster(t *testing.T) (*Caster, *sim.World, *hook.HookCenter, *CooldownTracker) {
	t.Helper()
	w := sim.New()
	w.AddUnit(sim.UnitSpec{GUID: casterGUID, Name: "Hero", Player: true, Health: 10, MaxHealth: 10})
	w.AddUnit(sim.UnitSpec{GUID: unitGUID, Name: "Wolf", Health: 10, MaxHealth: 10})
	w.SetLocalPlayer(casterGUID)
	w.SetInWorld(true)

	om := world.NewObjectManager(w, time.Millisecond, nil, zap.NewNop())
	om.Tick(time.Now())

	cd := NewCooldownTracker(newTestCache(t), w, "test", 0, zap.NewNop())
	hc := hook.NewHookCenter()
	return NewCaster(om, w, cd, hc, zap.NewNop()), w, hc, cd
}

func TestCaster_Cast_RecordsCooldown(t *testing.T) {
	c, w, _, cd := newCaster(t)
	ctx := context.Background()

	require.True(t, c.Cast(ctx, 133, unitGUID, true))
	require.Len(t, w.Casts(), 1)
	assert.True(t, cd.IsOnCooldown(ctx, 133))
}

func TestCaster_Cast_MissingTarget(t *testing.T) {
	c, w, _, _ := newCaster(t)
	assert.False(t, c.Cast(context.Background(), 133, 0x999, true))
	assert.False(t, c.Cast(context.Background(), 133, 0, true))
	assert.Empty(t, w.Casts())

	// Self buffs need no target.
	assert.True(t, c.Cast(context.Background(), 1126, 0, false))
}

func TestCaster_Cast_HookVeto(t *testing.T) {
	c, w, hc, cd := newCaster(t)
	hc.Register(hook.BeforeCast, 0, "veto", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		if d.(*CastEvent).SpellID == 133 {
			return d, hook.ErrInterrupt
		}
		return d, nil
	})

	assert.False(t, c.Cast(context.Background(), 133, unitGUID, true))
	assert.Empty(t, w.Casts())
	assert.False(t, cd.IsOnCooldown(context.Background(), 133))
	assert.True(t, c.Cast(context.Background(), 116, unitGUID, true))
}

func TestCaster_Cast_AfterHookSeesResult(t *testing.T) {
	c, w, hc, cd := newCaster(t)
	var got *CastEvent
	hc.Register(hook.AfterCast, 0, "audit", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		got = d.(*CastEvent)
		return d, nil
	})

	w.SetAcceptCasts(false)
	assert.False(t, c.Cast(context.Background(), 133, unitGUID, true))
	require.NotNil(t, got)
	assert.False(t, got.Accepted)
	assert.False(t, cd.IsOnCooldown(context.Background(), 133))
}

func TestCaster_Interact(t *testing.T) {
	c, w, _, _ := newCaster(t)
	assert.True(t, c.Interact(unitGUID))
	assert.False(t, c.Interact(0))
	assert.Equal(t, []world.GUID{unitGUID}, w.Interactions())
}
