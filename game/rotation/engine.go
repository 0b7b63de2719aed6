package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/kasuganosora/rotationbot/game/script"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/logging"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"go.uber.org/zap"
)

// DefaultMeleeRange is the range at or below which no LOS check is made.
const DefaultMeleeRange = 5

// Deps are the collaborators an Engine reads from. Scripts, Hooks and
// Faults may be nil.
type Deps struct {
	Objects   *world.ObjectManager
	Finder    *target.Finder
	LOS       *target.LineOfSight
	Auras     *skill.AuraReader
	Cooldowns *skill.CooldownTracker
	Scripts   *script.Sandbox
	Hooks     *hook.HookCenter
	Faults    *logging.Limiter
	Logger    *zap.Logger
}

// Options tune target resolution.
type Options struct {
	Targeting  target.Options
	MeleeRange float32
}

type compiledCondition struct {
	Condition
	program *vm.Program
	script  *goja.Program
}

type compiledStep struct {
	Step
	index int
	conds []compiledCondition
	power world.PowerType
	costs bool
}

type compiledProfile struct {
	profile *Profile
	steps   []compiledStep
}

// Engine selects one action per evaluation from the active profile.
type Engine struct {
	om        *world.ObjectManager
	finder    *target.Finder
	los       *target.LineOfSight
	auras     *skill.AuraReader
	cooldowns *skill.CooldownTracker
	scripts   *script.Sandbox
	hooks     *hook.HookCenter
	faults    *logging.Limiter
	logger    *zap.Logger
	opts      Options

	mu      sync.RWMutex
	active  *compiledProfile
	queued  *Decision
	enabled bool
}

func NewEngine(d Deps, opts Options) *Engine {
	if opts.MeleeRange <= 0 {
		opts.MeleeRange = DefaultMeleeRange
	}
	return &Engine{
		om:        d.Objects,
		finder:    d.Finder,
		los:       d.LOS,
		auras:     d.Auras,
		cooldowns: d.Cooldowns,
		scripts:   d.Scripts,
		hooks:     d.Hooks,
		faults:    d.Faults,
		logger:    d.Logger,
		opts:      opts,
		enabled:   true,
	}
}

// SetProfile compiles p and makes it active. On error the previous profile
// stays active.
func (e *Engine) SetProfile(p *Profile) error {
	if p == nil {
		return fmt.Errorf("%w: nil profile", ErrInvalidProfile)
	}
	cp, err := e.compile(p)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.active = cp
	e.queued = nil
	e.mu.Unlock()
	e.logger.Info("rotation profile active",
		zap.String("profile", p.Name), zap.Int("steps", len(p.Steps)))
	return nil
}

func (e *Engine) compile(p *Profile) (*compiledProfile, error) {
	cp := &compiledProfile{profile: p, steps: make([]compiledStep, len(p.Steps))}
	for i, s := range p.Steps {
		cs := compiledStep{Step: s, index: i, conds: make([]compiledCondition, len(s.Conditions))}
		cs.power, cs.costs = s.ResourceType.PowerType()
		cs.costs = cs.costs && s.ResourceCost > 0
		for j, c := range s.Conditions {
			cc := compiledCondition{Condition: c}
			switch c.Type {
			case CondExpression:
				prog, err := compileExpression(c.Expression)
				if err != nil {
					return nil, fmt.Errorf("%w: step %q: %v", ErrInvalidProfile, s.Name, err)
				}
				cc.program = prog
			case CondScript:
				if e.scripts == nil {
					return nil, fmt.Errorf("%w: step %q: scripts are disabled", ErrInvalidProfile, s.Name)
				}
				prog, err := e.scripts.Compile(fmt.Sprintf("%s#%d", s.Name, j), c.Script)
				if err != nil {
					return nil, fmt.Errorf("%w: step %q: %v", ErrInvalidProfile, s.Name, err)
				}
				cc.script = prog
			}
			cs.conds[j] = cc
		}
		cp.steps[i] = cs
	}
	return cp, nil
}

// Profile returns the active profile or nil.
func (e *Engine) Profile() *Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.active == nil {
		return nil
	}
	return e.active.profile
}

// SetEnabled turns evaluation on or off. Disabling drops the queued action.
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	e.enabled = on
	if !on {
		e.queued = nil
	}
	e.mu.Unlock()
}

func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// ---- Queue ----

func (e *Engine) HasQueuedAction() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queued != nil
}

// QueuedAction peeks at the pending decision.
func (e *Engine) QueuedAction() (Decision, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.queued == nil {
		return Decision{}, false
	}
	return *e.queued, true
}

// ConsumeQueuedAction removes and returns the pending decision.
func (e *Engine) ConsumeQueuedAction() (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.queued == nil {
		return Decision{}, false
	}
	d := *e.queued
	e.queued = nil
	return d, true
}

// ---- Evaluation ----

// Evaluate scores every step of the active profile and queues the winner.
func (e *Engine) Evaluate(ctx context.Context) (Decision, bool) {
	e.mu.RLock()
	cp, enabled := e.active, e.enabled
	e.mu.RUnlock()
	if !enabled || cp == nil || len(cp.steps) == 0 {
		return Decision{}, false
	}
	player := e.om.LocalPlayer()
	pu := player.AsUnit()
	if pu == nil || pu.IsDead() || pu.IsCasting() || pu.IsChanneling() {
		return Decision{}, false
	}

	ec := newEvalCtx(ctx, e, player, len(cp.steps))
	best, bestPriority := -1, 0
	var bestTarget world.GUID
	for i := range cp.steps {
		priority, tgt, ok := e.evaluateStep(ec, &cp.steps[i])
		if !ok {
			continue
		}
		if best < 0 || priority > bestPriority {
			best, bestPriority, bestTarget = i, priority, tgt
		}
	}
	if best < 0 {
		return Decision{}, false
	}

	s := &cp.steps[best]
	d := Decision{
		ID:             uuid.NewString(),
		SpellID:        s.SpellID,
		Name:           s.Name,
		Target:         bestTarget,
		RequiresTarget: s.RequiresTarget,
		Priority:       bestPriority,
		MaxCharges:     s.MaxCharges,
		RechargeMs:     s.Recharge().Milliseconds(),
		Profile:        cp.profile.Name,
		At:             time.Now(),
	}
	e.mu.Lock()
	e.queued = &d
	e.mu.Unlock()

	if e.hooks != nil {
		_, _ = e.hooks.Trigger(ctx, hook.OnDecision, d)
	}
	return d, true
}

func (e *Engine) evaluateStep(ec *evalCtx, cs *compiledStep) (int, world.GUID, bool) {
	for i := range cs.conds {
		if !ec.condition(cs, &cs.conds[i]) {
			return 0, 0, false
		}
	}

	priority := cs.BasePriority
	for i := range cs.PriorityBoosts {
		if ec.boost(cs, &cs.PriorityBoosts[i]) {
			priority += cs.PriorityBoosts[i].PriorityBoost
		}
	}

	pu := ec.player.AsUnit()
	if cs.costs && pu.PowerOf(cs.power) < cs.ResourceCost {
		return 0, 0, false
	}
	if cs.MaxCharges > 1 {
		// The oracle reports the recharge timer while charges remain, so only
		// the local ledger gates a charged spell besides its charge count.
		if ec.onLocalCooldown(cs.SpellID) ||
			e.cooldowns.Charges(ec.ctx, cs.SpellID, cs.MaxCharges, cs.Recharge()) <= 0 {
			return 0, 0, false
		}
	} else if ec.onCooldown(cs.SpellID) {
		return 0, 0, false
	}
	if pu.IsMoving() && !cs.CastableWhileMoving && cs.CastTime > 0 {
		return 0, 0, false
	}

	tgt := ec.stepTarget(cs)
	if !cs.RequiresTarget {
		return priority, tgt, true
	}
	if !tgt.IsValid() {
		return 0, 0, false
	}
	obj := e.om.Get(tgt)
	if obj == nil {
		return 0, 0, false
	}
	dist := float64(ec.player.DistanceTo(obj))
	if dist < cs.Range.Min || (cs.Range.Max > 0 && dist > cs.Range.Max) {
		return 0, 0, false
	}
	if cs.Range.Max > float64(e.opts.MeleeRange) && obj.GUID != ec.player.GUID && e.los != nil {
		if !e.los.Visible(ec.player.Position, obj.Position) {
			return 0, 0, false
		}
	}
	return priority, tgt, true
}

// HealingTarget picks who a heal gated by conds should land on: the current
// target when friendly and under the lowest friendly health threshold,
// otherwise the most injured friendly unit under it. Zero when conds carry
// no friendly health threshold.
func (e *Engine) HealingTarget(conds []Condition) world.GUID {
	player := e.om.LocalPlayer()
	if player == nil {
		return 0
	}
	threshold, found := 100.0, false
	for _, c := range conds {
		if c.Type == CondHealthPercentBelow && (c.TargetIsFriendly || !c.TargetIsPlayer) {
			found = true
			if c.Value < threshold {
				threshold = c.Value
			}
		}
	}
	if !found {
		return 0
	}
	cls := e.finder.Classifier()

	if cur := e.om.GetUnit(e.om.CurrentTargetGUID()); cur != nil &&
		cls.IsFriendly(player, cur) && target.ShouldHeal(cur, threshold) {
		return cur.GUID
	}

	var best world.GUID
	lowest := 101.0
	for _, o := range e.om.ObjectsByType(world.TypeUnit) {
		if o.GUID == player.GUID || o.IsDead() || !cls.IsFriendly(player, o) {
			continue
		}
		u := o.AsUnit()
		if u.MaxHealth <= 0 {
			continue
		}
		pct := u.HealthPercent()
		if pct < threshold && pct < lowest {
			best, lowest = o.GUID, pct
		}
	}
	return best
}
