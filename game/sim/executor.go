package sim

import (
	"time"

	"github.com/kasuganosora/rotationbot/game/world"
)

// CastCall is one request received through Cast.
type CastCall struct {
	SpellID        uint32     `json:"spell_id"`
	Target         world.GUID `json:"target"`
	RequiresTarget bool       `json:"requires_target"`
	At             time.Time  `json:"at"`
}

// ---- world.Executor ----

func (w *World) Cast(spellID uint32, target world.GUID, requiresTarget bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.acceptCasts || !w.inWorld {
		return false
	}
	w.casts = append(w.casts, CastCall{SpellID: spellID, Target: target, RequiresTarget: requiresTarget, At: time.Now()})
	return true
}

func (w *World) Interact(target world.GUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inWorld {
		return false
	}
	if _, ok := w.entities[target]; !ok {
		return false
	}
	w.interactions = append(w.interactions, target)
	if e := w.entities[target]; e.typ == world.TypeGameObject {
		w.writeBobbingLocked(e, false)
	}
	return true
}

// SetAcceptCasts makes Cast reject every request when false.
func (w *World) SetAcceptCasts(accept bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acceptCasts = accept
}

// Casts returns a copy of every accepted cast.
func (w *World) Casts() []CastCall {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]CastCall, len(w.casts))
	copy(out, w.casts)
	return out
}

func (w *World) Interactions() []world.GUID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]world.GUID, len(w.interactions))
	copy(out, w.interactions)
	return out
}

// ---- world.CooldownOracle ----

func (w *World) RemainingCooldown(spellID uint32) (int64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.oracleErr != nil {
		return -1, w.oracleErr
	}
	return w.cooldowns[spellID], nil
}

// SetCooldown sets the remaining cooldown reported for a spell.
func (w *World) SetCooldown(spellID uint32, remainingMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if remainingMs <= 0 {
		delete(w.cooldowns, spellID)
		return
	}
	w.cooldowns[spellID] = remainingMs
}

// SetOracleError makes RemainingCooldown fail until cleared with nil.
func (w *World) SetOracleError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.oracleErr = err
}

var (
	_ world.Provider       = (*World)(nil)
	_ world.Executor       = (*World)(nil)
	_ world.CooldownOracle = (*World)(nil)
)
