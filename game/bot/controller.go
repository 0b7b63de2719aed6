// Package bot owns the producer tick: refresh the snapshot cache, run
// queued worker tasks, evaluate the rotation and dispatch its decision.
package bot

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/game/dispatch"
	"github.com/kasuganosora/rotationbot/game/rotation"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/target"
	"github.com/kasuganosora/rotationbot/game/world"
	"go.uber.org/zap"
)

// DecisionChannel is the PubSub channel dispatched decisions are published on.
const DecisionChannel = "rotation:decision"

// DecisionEvent is the payload published for every dispatched decision.
type DecisionEvent struct {
	rotation.Decision
	Accepted bool `json:"accepted"`
}

// Deps are the collaborators of a Controller. Audit and PubSub may be nil.
type Deps struct {
	Objects    *world.ObjectManager
	Classifier *target.Classifier
	Engine     *rotation.Engine
	Caster     *skill.Caster
	Cooldowns  *skill.CooldownTracker
	Queue      *dispatch.Queue
	Audit      *audit.Service
	PubSub     cache.PubSub
	Logger     *zap.Logger
}

// Stats are cumulative tick counters.
type Stats struct {
	Ticks        uint64             `json:"ticks"`
	Dispatched   uint64             `json:"dispatched"`
	Rejected     uint64             `json:"rejected"`
	LastTick     time.Time          `json:"last_tick"`
	LastDuration time.Duration      `json:"last_duration"`
	LastDecision *rotation.Decision `json:"last_decision,omitempty"`
}

type Controller struct {
	d            Deps
	drainPerTick int
	now          func() time.Time

	mu sync.Mutex // one tick at a time

	ticks      atomic.Uint64
	dispatched atomic.Uint64
	rejected   atomic.Uint64
	lastTick   atomic.Int64
	lastDur    atomic.Int64
	last       atomic.Pointer[rotation.Decision]
}

func NewController(d Deps, drainPerTick int) *Controller {
	return &Controller{d: d, drainPerTick: drainPerTick, now: time.Now}
}

// Tick runs one producer cycle.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.now()
	defer func() {
		c.ticks.Add(1)
		c.lastTick.Store(start.UnixNano())
		c.lastDur.Store(int64(time.Since(start)))
	}()

	om := c.d.Objects
	om.Tick(start)
	if !om.IsActive() {
		return
	}
	if c.d.Classifier != nil && c.d.Classifier.GroupContestMode() {
		c.d.Classifier.UpdateLocalFaction(om.LocalPlayer())
	}
	if c.d.Queue != nil {
		c.d.Queue.Drain(ctx, c.drainPerTick)
	}

	if c.d.Engine == nil {
		return
	}
	c.d.Engine.Evaluate(ctx)
	if d, ok := c.d.Engine.ConsumeQueuedAction(); ok {
		c.dispatch(ctx, d)
	}
}

func (c *Controller) dispatch(ctx context.Context, d rotation.Decision) {
	accepted := c.d.Caster.Cast(ctx, d.SpellID, d.Target, d.RequiresTarget)
	if accepted {
		c.dispatched.Add(1)
		if d.MaxCharges > 1 && c.d.Cooldowns != nil {
			recharge := time.Duration(d.RechargeMs) * time.Millisecond
			if err := c.d.Cooldowns.RecordChargeUse(ctx, d.SpellID, d.MaxCharges, recharge); err != nil {
				c.d.Logger.Warn("record charge use failed", zap.Uint32("spell_id", d.SpellID), zap.Error(err))
			}
		}
	} else {
		c.rejected.Add(1)
	}
	c.last.Store(&d)

	c.d.Logger.Debug("decision dispatched",
		zap.String("decision_id", d.ID),
		zap.Uint32("spell_id", d.SpellID),
		zap.Stringer("target", d.Target),
		zap.Int("priority", d.Priority),
		zap.Bool("accepted", accepted))

	if c.d.Audit != nil {
		c.d.Audit.Log(audit.CastEntry{
			DecisionID: d.ID,
			Profile:    d.Profile,
			SpellID:    d.SpellID,
			SpellName:  d.Name,
			Target:     d.Target,
			Priority:   d.Priority,
			Accepted:   accepted,
			Source:     audit.SourceRotation,
		})
	}
	if c.d.PubSub != nil {
		payload, err := json.Marshal(DecisionEvent{Decision: d, Accepted: accepted})
		if err == nil {
			err = c.d.PubSub.Publish(ctx, DecisionChannel, string(payload))
		}
		if err != nil {
			c.d.Logger.Warn("publish decision failed", zap.Error(err))
		}
	}
}

func (c *Controller) Stats() Stats {
	s := Stats{
		Ticks:        c.ticks.Load(),
		Dispatched:   c.dispatched.Load(),
		Rejected:     c.rejected.Load(),
		LastDuration: time.Duration(c.lastDur.Load()),
		LastDecision: c.last.Load(),
	}
	if ns := c.lastTick.Load(); ns != 0 {
		s.LastTick = time.Unix(0, ns)
	}
	return s
}
