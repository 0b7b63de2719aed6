// Package fishing runs the background fishing loop: cast, wait for the
// bobber to bite, then interact with it. All game actions go through the
// dispatch queue so they execute on the producer tick.
package fishing

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/rotationbot/audit"
	"github.com/kasuganosora/rotationbot/game/dispatch"
	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/world"
	"go.uber.org/zap"
)

// Config tunes the loop. Zero fields take the defaults below.
type Config struct {
	SpellID        uint32
	BobberName     string
	MaxDistance    float32
	BiteTimeoutMin time.Duration
	BiteTimeoutMax time.Duration
	PollInterval   time.Duration
	// CastSettle is how long after a cast the bobber is looked for.
	CastSettleMin time.Duration
	CastSettleMax time.Duration
	// LootDelay follows a successful interact before the next cast.
	LootDelayMin time.Duration
	LootDelayMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.SpellID == 0 {
		c.SpellID = 7620
	}
	if c.BobberName == "" {
		c.BobberName = "Fishing Bobber"
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = 30
	}
	if c.BiteTimeoutMin <= 0 {
		c.BiteTimeoutMin = 5 * time.Second
	}
	if c.BiteTimeoutMax < c.BiteTimeoutMin {
		c.BiteTimeoutMax = 20 * time.Second
		if c.BiteTimeoutMax < c.BiteTimeoutMin {
			c.BiteTimeoutMax = c.BiteTimeoutMin
		}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.CastSettleMin <= 0 {
		c.CastSettleMin = 1500 * time.Millisecond
	}
	if c.CastSettleMax < c.CastSettleMin {
		c.CastSettleMax = c.CastSettleMin + time.Second
	}
	if c.LootDelayMin <= 0 {
		c.LootDelayMin = 500 * time.Millisecond
	}
	if c.LootDelayMax < c.LootDelayMin {
		c.LootDelayMax = c.LootDelayMin + time.Second
	}
	return c
}

// Deps are the collaborators of a Bot. Audit may be nil.
type Deps struct {
	Objects   *world.ObjectManager
	Cooldowns *skill.CooldownTracker
	Caster    *skill.Caster
	Queue     *dispatch.Queue
	Audit     *audit.Service
	Logger    *zap.Logger
}

// Stats are cumulative loop counters.
type Stats struct {
	Running      bool   `json:"running"`
	Casts        uint64 `json:"casts"`
	Bites        uint64 `json:"bites"`
	Timeouts     uint64 `json:"timeouts"`
	MissedBobber uint64 `json:"missed_bobber"`
	LastBobber   string `json:"last_bobber"`
}

type Bot struct {
	d   Deps
	cfg Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	lastBobber atomic.Uint64
	casts      atomic.Uint64
	bites      atomic.Uint64
	timeouts   atomic.Uint64
	missed     atomic.Uint64
}

func NewBot(d Deps, cfg Config) *Bot {
	return &Bot{d: d, cfg: cfg.withDefaults()}
}

// Start launches the loop under ctx. It returns false when already running.
func (b *Bot) Start(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return false
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	go func() {
		defer close(done)
		b.loop(ctx)
	}()
	b.d.Logger.Info("fishing started", zap.Uint32("spell_id", b.cfg.SpellID))
	return true
}

// Stop cancels the loop and waits for it to exit. Stopping a stopped bot is
// a no-op.
func (b *Bot) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	b.d.Logger.Info("fishing stopped")
}

func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *Bot) Stats() Stats {
	return Stats{
		Running:      b.Running(),
		Casts:        b.casts.Load(),
		Bites:        b.bites.Load(),
		Timeouts:     b.timeouts.Load(),
		MissedBobber: b.missed.Load(),
		LastBobber:   world.GUID(b.lastBobber.Load()).String(),
	}
}

func (b *Bot) loop(ctx context.Context) {
	for ctx.Err() == nil {
		if !b.d.Objects.IsActive() || b.d.Objects.LocalPlayer() == nil {
			sleep(ctx, b.cfg.PollInterval)
			continue
		}
		if b.d.Cooldowns != nil && b.d.Cooldowns.IsOnCooldown(ctx, b.cfg.SpellID) {
			sleep(ctx, b.cfg.PollInterval)
			continue
		}
		if !b.submitCast() {
			sleep(ctx, b.cfg.PollInterval)
			continue
		}
		if !sleep(ctx, jitter(b.cfg.CastSettleMin, b.cfg.CastSettleMax)) {
			return
		}

		bobber := b.findBobber()
		if bobber == nil {
			b.missed.Add(1)
			b.d.Logger.Debug("fishing: no bobber found")
			continue
		}
		b.waitForBite(ctx, bobber.GUID)
	}
}

func (b *Bot) submitCast() bool {
	spell := b.cfg.SpellID
	ok := b.d.Queue.Submit(dispatch.Task{Name: "fishing.cast", Run: func(ctx context.Context) {
		accepted := b.d.Caster.Cast(ctx, spell, 0, false)
		if accepted {
			b.casts.Add(1)
		}
		if b.d.Audit != nil {
			b.d.Audit.Log(audit.CastEntry{SpellID: spell, SpellName: "Fishing", Accepted: accepted, Source: audit.SourceFishing})
		}
	}})
	return ok
}

// findBobber returns the nearest bobber within range that is not the one
// last interacted with.
func (b *Bot) findBobber() *world.Object {
	player := b.d.Objects.LocalPlayer()
	if player == nil {
		return nil
	}
	last := world.GUID(b.lastBobber.Load())
	var best *world.Object
	var bestDist float32
	for _, o := range b.d.Objects.ObjectsByType(world.TypeGameObject) {
		if o.GUID == last || !strings.EqualFold(o.Name, b.cfg.BobberName) {
			continue
		}
		d := player.DistanceTo(o)
		if d > b.cfg.MaxDistance {
			continue
		}
		if best == nil || d < bestDist {
			best, bestDist = o, d
		}
	}
	return best
}

func (b *Bot) waitForBite(ctx context.Context, id world.GUID) {
	deadline := time.Now().Add(jitter(b.cfg.BiteTimeoutMin, b.cfg.BiteTimeoutMax))
	for time.Now().Before(deadline) {
		if !sleep(ctx, b.cfg.PollInterval) {
			return
		}
		o := b.d.Objects.Get(id)
		if o == nil {
			b.d.Logger.Debug("fishing: bobber vanished", zap.Stringer("guid", id))
			return
		}
		if gi := o.AsGameObject(); gi == nil || !gi.Bobbing {
			continue
		}

		b.bites.Add(1)
		b.lastBobber.Store(uint64(id))
		caster := b.d.Caster
		if !b.d.Queue.Submit(dispatch.Task{Name: "fishing.interact", Run: func(context.Context) {
			caster.Interact(id)
		}}) {
			return
		}
		sleep(ctx, jitter(b.cfg.LootDelayMin, b.cfg.LootDelayMax))
		return
	}
	b.timeouts.Add(1)
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

// sleep waits for d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
