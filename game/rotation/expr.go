package rotation

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/kasuganosora/rotationbot/game/world"
)

// UnitEnv is the read-only view of a unit inside expressions and scripts.
type UnitEnv struct {
	Exists     bool
	GUID       uint64
	Name       string
	Level      int
	Health     int
	MaxHealth  int
	HealthPct  float64
	Power      int
	PowerPct   float64
	Distance   float64
	Casting    bool
	Channeling bool
	Moving     bool
	InCombat   bool
	Dead       bool
	IsPlayer   bool
}

func unitEnv(o, from *world.Object) UnitEnv {
	u := o.AsUnit()
	if u == nil {
		return UnitEnv{}
	}
	e := UnitEnv{
		Exists:     true,
		GUID:       uint64(o.GUID),
		Name:       o.Name,
		Level:      int(u.Level),
		Health:     int(u.Health),
		MaxHealth:  int(u.MaxHealth),
		HealthPct:  u.HealthPercent(),
		Power:      int(u.PowerOf(u.PowerType)),
		PowerPct:   u.PowerPercent(u.PowerType),
		Casting:    u.IsCasting(),
		Channeling: u.IsChanneling(),
		Moving:     u.IsMoving(),
		InCombat:   u.IsInCombat(),
		Dead:       u.IsDead(),
		IsPlayer:   o.IsPlayer(),
	}
	if from != nil {
		e.Distance = float64(from.DistanceTo(o))
	}
	return e
}

// jsMap renders u with lower camel keys for scripts.
func (u UnitEnv) jsMap() map[string]interface{} {
	return map[string]interface{}{
		"exists":     u.Exists,
		"guid":       u.GUID,
		"name":       u.Name,
		"level":      u.Level,
		"health":     u.Health,
		"maxHealth":  u.MaxHealth,
		"healthPct":  u.HealthPct,
		"power":      u.Power,
		"powerPct":   u.PowerPct,
		"distance":   u.Distance,
		"casting":    u.Casting,
		"channeling": u.Channeling,
		"moving":     u.Moving,
		"inCombat":   u.InCombat,
		"dead":       u.Dead,
		"isPlayer":   u.IsPlayer,
	}
}

// Env is the environment an EXPRESSION condition is evaluated against.
// Methods are callable from the expression, e.g.
// `Player.HealthPct < 50 && !TargetHasAura(8921)`.
type Env struct {
	Player      UnitEnv
	Target      UnitEnv
	SpellID     int
	ComboPoints int

	ec   *evalCtx
	step *compiledStep
}

func (env Env) PlayerHasAura(id int) bool {
	return env.ec.hasAura(env.ec.player, uint32(id), 0, 0)
}

func (env Env) TargetHasAura(id int) bool {
	return env.ec.hasAura(env.ec.target(env.step), uint32(id), 0, 0)
}

func (env Env) AuraStacks(id int) int {
	t := env.ec.target(env.step)
	if t == nil || env.ec.e.auras == nil {
		return 0
	}
	return env.ec.e.auras.StackCount(t.Handle, uint32(id), 0)
}

func (env Env) OnCooldown(id int) bool {
	return env.ec.onCooldown(uint32(id))
}

// EnemiesAround counts hostile units within r yards of the player.
func (env Env) EnemiesAround(r float64) int {
	return env.ec.e.finder.CountUnitsInMeleeRange(env.ec.player, float32(r), true, false, false)
}

func (env Env) Power(name string) int {
	pt, ok := Resource(name).PowerType()
	if !ok {
		return 0
	}
	return int(env.ec.player.AsUnit().PowerOf(pt))
}

func compileExpression(src string) (*vm.Program, error) {
	prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, err)
	}
	return prog, nil
}

func runExpression(prog *vm.Program, env Env) (bool, error) {
	out, err := expr.Run(prog, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}
