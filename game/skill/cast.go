package skill

import (
	"context"
	"errors"

	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"go.uber.org/zap"
)

// CastEvent is the payload of hook.BeforeCast and hook.AfterCast.
type CastEvent struct {
	SpellID        uint32
	Target         world.GUID
	RequiresTarget bool
	Accepted       bool
}

// Caster validates and submits casts, recording them in the cooldown ledger.
type Caster struct {
	om        *world.ObjectManager
	exec      world.Executor
	cooldowns *CooldownTracker
	hooks     *hook.HookCenter
	logger    *zap.Logger
}

func NewCaster(om *world.ObjectManager, exec world.Executor, cd *CooldownTracker, hooks *hook.HookCenter, logger *zap.Logger) *Caster {
	return &Caster{om: om, exec: exec, cooldowns: cd, hooks: hooks, logger: logger}
}

// Cast submits spellID. It returns false when the target is missing, a
// before_cast hook vetoes the cast, or the executor refuses it.
func (c *Caster) Cast(ctx context.Context, spellID uint32, target world.GUID, requiresTarget bool) bool {
	if requiresTarget {
		if !target.IsValid() || c.om.GetUnit(target) == nil {
			c.logger.Debug("cast rejected: target not a known unit",
				zap.Uint32("spell_id", spellID), zap.Stringer("target", target))
			return false
		}
	}

	ev := &CastEvent{SpellID: spellID, Target: target, RequiresTarget: requiresTarget}
	if c.hooks != nil {
		if _, err := c.hooks.Trigger(ctx, hook.BeforeCast, ev); errors.Is(err, hook.ErrInterrupt) {
			c.logger.Debug("cast vetoed by hook", zap.Uint32("spell_id", spellID))
			return false
		}
	}

	ev.Accepted = c.exec.Cast(ev.SpellID, ev.Target, ev.RequiresTarget)
	if ev.Accepted && c.cooldowns != nil {
		if err := c.cooldowns.RecordCast(ctx, ev.SpellID); err != nil {
			c.logger.Warn("record cast failed", zap.Uint32("spell_id", ev.SpellID), zap.Error(err))
		}
	}
	if c.hooks != nil {
		_, _ = c.hooks.Trigger(ctx, hook.AfterCast, ev)
	}
	return ev.Accepted
}

// Interact submits an interaction with target.
func (c *Caster) Interact(target world.GUID) bool {
	if !target.IsValid() {
		return false
	}
	return c.exec.Interact(target)
}
