package rotation

import (
	"context"

	"github.com/kasuganosora/rotationbot/game/script"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	"go.uber.org/zap"
)

// stepTargets memoises target resolution for one step within one evaluation.
type stepTargets struct {
	resolved bool
	guid     world.GUID

	healResolved bool
	heal         world.GUID
}

// evalCtx carries the per-evaluation state shared by conditions and boosts.
type evalCtx struct {
	ctx     context.Context
	e       *Engine
	player  *world.Object
	targets []stepTargets
}

func newEvalCtx(ctx context.Context, e *Engine, player *world.Object, steps int) *evalCtx {
	return &evalCtx{ctx: ctx, e: e, player: player, targets: make([]stepTargets, steps)}
}

// stepTarget resolves the GUID the step would be cast at.
func (ec *evalCtx) stepTarget(cs *compiledStep) world.GUID {
	m := &ec.targets[cs.index]
	if m.resolved {
		return m.guid
	}
	m.resolved = true

	tt := cs.TargetType
	switch {
	case tt == target.TargetSelf:
		m.guid = ec.player.GUID
		return m.guid
	case tt == target.TargetNone:
		return 0
	case cs.IsHeal && (tt == target.TargetFriendly || tt == target.TargetSelfOrFriendly):
		if g := ec.healTarget(cs); g.IsValid() {
			m.guid = g
			return g
		}
	}
	m.guid = ec.e.finder.FindBestTarget(tt, ec.e.opts.Targeting)
	return m.guid
}

func (ec *evalCtx) healTarget(cs *compiledStep) world.GUID {
	m := &ec.targets[cs.index]
	if !m.healResolved {
		m.healResolved = true
		m.heal = ec.e.HealingTarget(cs.Conditions)
	}
	return m.heal
}

// target returns the step's resolved target object, falling back to the
// selected target when the step resolves to nothing.
func (ec *evalCtx) target(cs *compiledStep) *world.Object {
	if cs != nil {
		if o := ec.e.om.Get(ec.stepTarget(cs)); o != nil {
			return o
		}
	}
	return ec.e.om.Get(ec.e.om.CurrentTargetGUID())
}

// subject picks the unit a condition inspects.
func (ec *evalCtx) subject(cs *compiledStep, c *compiledCondition) *world.Object {
	switch {
	case c.TargetIsPlayer:
		return ec.player
	case c.TargetIsFriendly:
		return ec.e.om.Get(ec.healTarget(cs))
	}
	return ec.target(cs)
}

func (ec *evalCtx) hasAura(o *world.Object, id uint32, caster world.GUID, minStacks int) bool {
	if o == nil || ec.e.auras == nil {
		return false
	}
	if minStacks > 0 {
		return ec.e.auras.HasAuraWithMinStacks(o.Handle, id, minStacks, caster)
	}
	return ec.e.auras.HasAura(o.Handle, id, caster)
}

func (ec *evalCtx) auraSet(o *world.Object, c *compiledCondition) bool {
	ids := c.auraIDs()
	if len(ids) == 0 {
		return false
	}
	caster := world.GUID(c.CasterGUID)
	if c.MultiAuraLogic == AllOf {
		for _, id := range ids {
			if !ec.hasAura(o, id, caster, c.MinStacks) {
				return false
			}
		}
		return true
	}
	for _, id := range ids {
		if ec.hasAura(o, id, caster, c.MinStacks) {
			return true
		}
	}
	return false
}

func (ec *evalCtx) onCooldown(id uint32) bool {
	if ec.e.cooldowns == nil {
		return false
	}
	return ec.e.cooldowns.IsOnCooldown(ec.ctx, id)
}

func (ec *evalCtx) onLocalCooldown(id uint32) bool {
	if ec.e.cooldowns == nil {
		return false
	}
	return ec.e.cooldowns.LocalRemaining(ec.ctx, id) > 0
}

// comboPoints counts only when the combo target is the selected target.
func (ec *evalCtx) comboPoints() int {
	pu := ec.player.AsUnit()
	cur := ec.e.om.CurrentTargetGUID()
	if pu == nil || !cur.IsValid() || pu.ComboTarget != cur {
		return 0
	}
	return int(pu.ComboPoints)
}

// threatPercent is the player's share of t's threat, 0 when t's top entry
// is someone else.
func (ec *evalCtx) threatPercent(t *world.Object) float64 {
	tu := t.AsUnit()
	if tu == nil || tu.TopThreat == nil || tu.TopThreat.Target != ec.player.GUID {
		return 0
	}
	return float64(tu.TopThreat.Percent)
}

func (ec *evalCtx) spellOf(cs *compiledStep, c *compiledCondition) uint32 {
	if c.SpellID != 0 {
		return c.SpellID
	}
	return cs.SpellID
}

func (ec *evalCtx) condition(cs *compiledStep, c *compiledCondition) bool {
	switch c.Type {
	case CondHealthPercentBelow:
		u := ec.subject(cs, c).AsUnit()
		return u != nil && u.MaxHealth > 0 && u.HealthPercent() < c.Value

	case CondManaPercentAbove:
		return ec.player.AsUnit().PowerPercent(world.PowerMana) > c.Value

	case CondTargetIsCasting:
		u := ec.subject(cs, c).AsUnit()
		return u != nil && (u.IsCasting() || u.IsChanneling())

	case CondPlayerHasAura:
		return ec.auraSet(ec.player, c)
	case CondPlayerMissingAura:
		return len(c.auraIDs()) > 0 && !ec.auraSet(ec.player, c)
	case CondTargetHasAura:
		return ec.auraSet(ec.subject(cs, c), c)
	case CondTargetMissingAura:
		t := ec.subject(cs, c)
		return t != nil && len(c.auraIDs()) > 0 && !ec.auraSet(t, c)

	case CondSpellOffCooldown, CondSpellNotOnCooldown:
		return !ec.onCooldown(ec.spellOf(cs, c))

	case CondMeleeUnitsAroundPlayerGT:
		n := ec.e.finder.CountUnitsInMeleeRange(ec.player, float32(c.MeleeRangeValue), true, false, false)
		return float64(n) > c.Value

	case CondUnitsInFrontalConeGT:
		n := ec.e.finder.CountUnitsInFrontalCone(ec.player, float32(c.MeleeRangeValue), c.ConeAngleDegrees, true, false, false)
		return float64(n) > c.Value

	case CondPlayerThreatOnTargetBelow:
		t := ec.subject(cs, c)
		return t != nil && ec.threatPercent(t) < c.Value

	case CondSpellHasCharges:
		if ec.e.cooldowns == nil {
			return false
		}
		need := int(c.Value)
		if need < 1 {
			need = 1
		}
		return ec.e.cooldowns.Charges(ec.ctx, ec.spellOf(cs, c), cs.MaxCharges, cs.Recharge()) >= need

	case CondPlayerIsFacingTarget:
		t := ec.subject(cs, c)
		return t != nil && target.IsFacing(ec.player, t, c.FacingConeAngle)

	case CondComboPointsAtLeast:
		return float64(ec.comboPoints()) >= c.Value

	case CondExpression:
		if c.program == nil {
			return false
		}
		ok, err := runExpression(c.program, ec.env(cs))
		if err != nil {
			ec.e.faults.Debug("rotation.expression", "expression failed",
				zap.String("step", cs.Name), zap.Error(err))
			return false
		}
		return ok

	case CondScript:
		if c.script == nil || ec.e.scripts == nil {
			return false
		}
		ok, err := ec.e.scripts.Test(ec.ctx, c.script, ec.bindings(cs))
		if err != nil {
			ec.e.faults.Debug("rotation.script", "script failed",
				zap.String("step", cs.Name), zap.Error(err))
			return false
		}
		return ok
	}

	ec.e.faults.Debug("rotation.condition", "unknown condition type",
		zap.String("type", string(c.Type)), zap.String("step", cs.Name))
	return false
}

func (ec *evalCtx) boost(cs *compiledStep, b *PriorityBoost) bool {
	switch b.Type {
	case BoostPlayerHasAura:
		return ec.hasAura(ec.player, b.AuraID, 0, b.MinStacks)
	case BoostTargetHasAura:
		return ec.hasAura(ec.target(cs), b.AuraID, 0, b.MinStacks)
	case BoostTargetHealthPercentBelow:
		u := ec.target(cs).AsUnit()
		return u != nil && u.MaxHealth > 0 && u.HealthPercent() < b.ThresholdValue
	case BoostPlayerHealthPercentBelow:
		u := ec.player.AsUnit()
		return u.MaxHealth > 0 && u.HealthPercent() < b.ThresholdValue
	case BoostPlayerResourcePercentAbove, BoostPlayerResourcePercentBelow:
		pt, ok := b.ResourceType.PowerType()
		if !ok {
			return false
		}
		pct := ec.player.AsUnit().PowerPercent(pt)
		if b.Type == BoostPlayerResourcePercentAbove {
			return pct > b.ThresholdValue
		}
		return pct < b.ThresholdValue
	case BoostTargetDistanceBelow:
		t := ec.target(cs)
		return t != nil && float64(ec.player.DistanceTo(t)) < b.DistanceThreshold
	}
	ec.e.faults.Debug("rotation.boost", "unknown boost type",
		zap.String("type", string(b.Type)), zap.String("step", cs.Name))
	return false
}

func (ec *evalCtx) env(cs *compiledStep) Env {
	return Env{
		Player:      unitEnv(ec.player, ec.player),
		Target:      unitEnv(ec.target(cs), ec.player),
		SpellID:     int(cs.SpellID),
		ComboPoints: ec.comboPoints(),
		ec:          ec,
		step:        cs,
	}
}

func (ec *evalCtx) bindings(cs *compiledStep) script.Bindings {
	t := ec.target(cs)
	return script.Bindings{
		"player":      unitEnv(ec.player, ec.player).jsMap(),
		"target":      unitEnv(t, ec.player).jsMap(),
		"spellId":     int(cs.SpellID),
		"comboPoints": ec.comboPoints(),
		"playerHasAura": func(id int64) bool {
			return ec.hasAura(ec.player, uint32(id), 0, 0)
		},
		"targetHasAura": func(id int64) bool {
			return ec.hasAura(t, uint32(id), 0, 0)
		},
		"onCooldown": func(id int64) bool {
			return ec.onCooldown(uint32(id))
		},
		"enemiesAround": func(r float64) int {
			return ec.e.finder.CountUnitsInMeleeRange(ec.player, float32(r), true, false, false)
		},
	}
}
