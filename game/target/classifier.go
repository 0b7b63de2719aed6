package target

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/rotationbot/game/skill"
	"github.com/kasuganosora/rotationbot/game/world"
	"github.com/kasuganosora/rotationbot/logging"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"go.uber.org/zap"
)

// Reaction ordinals as reported by the provider.
const (
	ReactionHostile    = 1
	ReactionUnfriendly = 2
	ReactionNeutral    = 3
	ReactionFriendly   = 4
	ReactionExalted    = 8
)

// Faction is the local player's side in group-contest mode.
type Faction int

const (
	FactionUnknown Faction = iota
	FactionAlliance
	FactionHorde
)

func (f Faction) String() string {
	switch f {
	case FactionAlliance:
		return "alliance"
	case FactionHorde:
		return "horde"
	}
	return "unknown"
}

// Marker auras applied to every player inside a group contest.
const (
	AuraAllianceMarker uint32 = 86475
	AuraHordeMarker    uint32 = 86476
)

// Classifier decides friend or foe between two snapshots.
type Classifier struct {
	om        *world.ObjectManager
	auras     *skill.AuraReader
	blacklist *Blacklist
	reactions *ReactionCache
	faults    *logging.Limiter
	logger    *zap.Logger

	groupContest atomic.Bool

	mu      sync.RWMutex
	faction Faction
}

func NewClassifier(om *world.ObjectManager, auras *skill.AuraReader, bl *Blacklist, cacheSize int, faults *logging.Limiter, logger *zap.Logger) *Classifier {
	if bl == nil {
		bl = NewBlacklist(nil, nil)
	}
	return &Classifier{
		om:        om,
		auras:     auras,
		blacklist: bl,
		reactions: NewReactionCache(cacheSize),
		faults:    faults,
		logger:    logger,
	}
}

// RegisterHooks clears the reaction memo whenever the world is left.
func (c *Classifier) RegisterHooks(hc *hook.HookCenter) {
	hc.Register(hook.OnWorldLeave, 0, "target.reaction_cache", func(_ context.Context, _ string, d interface{}) (interface{}, error) {
		c.reactions.Clear()
		return d, nil
	})
}

func (c *Classifier) Reactions() *ReactionCache { return c.reactions }
func (c *Classifier) Blacklist() *Blacklist      { return c.blacklist }

// Reaction returns the reaction of self towards other, memoised by other's
// GUID. Provider failures read as 4 and are not cached.
func (c *Classifier) Reaction(self, other *world.Object) int {
	if self == nil || other == nil {
		return ReactionFriendly
	}
	if r, ok := c.reactions.Get(other.GUID); ok {
		return r
	}
	r, err := c.om.Provider().NativeRelationship(self.Handle, other.Handle)
	if err != nil {
		c.faults.Debug("target.reaction", "reaction lookup failed",
			zap.Stringer("guid", other.GUID), zap.Error(err))
		return ReactionFriendly
	}
	c.reactions.Put(other.GUID, r)
	return r
}

// SetGroupContestMode toggles faction-marker classification. Turning it off
// forgets the local faction.
func (c *Classifier) SetGroupContestMode(on bool) {
	c.groupContest.Store(on)
	if !on {
		c.mu.Lock()
		c.faction = FactionUnknown
		c.mu.Unlock()
	}
}

func (c *Classifier) GroupContestMode() bool { return c.groupContest.Load() }

// UpdateLocalFaction reads the marker aura carried by player.
func (c *Classifier) UpdateLocalFaction(player *world.Object) Faction {
	f := c.markerOf(player)
	c.mu.Lock()
	c.faction = f
	c.mu.Unlock()
	return f
}

func (c *Classifier) LocalFaction() Faction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.faction
}

func (c *Classifier) markerOf(o *world.Object) Faction {
	if o == nil || c.auras == nil {
		return FactionUnknown
	}
	switch {
	case c.auras.HasAura(o.Handle, AuraAllianceMarker, 0):
		return FactionAlliance
	case c.auras.HasAura(o.Handle, AuraHordeMarker, 0):
		return FactionHorde
	}
	return FactionUnknown
}

func (c *Classifier) excluded(self, other *world.Object) bool {
	return other == nil || other.IsDead() || c.blacklist.IsBlacklisted(other.Name) ||
		(self != nil && other.GUID == self.GUID)
}

// IsAttackable reports whether self may attack other.
func (c *Classifier) IsAttackable(self, other *world.Object) bool {
	if c.excluded(self, other) {
		return false
	}
	if c.groupContest.Load() {
		local := c.LocalFaction()
		if local == FactionUnknown || !other.IsPlayer() {
			return c.Reaction(self, other) <= ReactionUnfriendly
		}
		theirs := c.markerOf(other)
		return theirs != FactionUnknown && theirs != local
	}
	return c.Reaction(self, other) <= ReactionNeutral
}

// IsFriendly reports whether other is on self's side. Self is always friendly.
func (c *Classifier) IsFriendly(self, other *world.Object) bool {
	if other == nil {
		return false
	}
	if self != nil && other.GUID == self.GUID {
		return true
	}
	if other.IsDead() {
		return false
	}
	if c.groupContest.Load() {
		local := c.LocalFaction()
		if local == FactionUnknown || !other.IsPlayer() {
			return c.Reaction(self, other) >= ReactionFriendly
		}
		return c.markerOf(other) == local
	}
	return c.Reaction(self, other) >= ReactionFriendly
}
