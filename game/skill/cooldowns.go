package skill

import (
	"context"
	"strconv"
	"time"

	"github.com/kasuganosora/rotationbot/cache"
	"github.com/kasuganosora/rotationbot/game/world"
	"go.uber.org/zap"
)

// DefaultGCD is the global cooldown enforced after every recorded cast.
const DefaultGCD = 1500 * time.Millisecond

// CooldownTracker answers cooldown questions from the client oracle first and
// falls back to a local cast ledger kept in the cache.
type CooldownTracker struct {
	cache  cache.Cache
	oracle world.CooldownOracle
	owner  string
	gcd    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewCooldownTracker creates a tracker. owner namespaces the ledger so bots
// sharing a Redis instance do not see each other's casts.
func NewCooldownTracker(c cache.Cache, oracle world.CooldownOracle, owner string, gcd time.Duration, logger *zap.Logger) *CooldownTracker {
	if gcd <= 0 {
		gcd = DefaultGCD
	}
	if owner == "" {
		owner = "local"
	}
	return &CooldownTracker{cache: c, oracle: oracle, owner: owner, gcd: gcd, now: time.Now, logger: logger}
}

func (ct *CooldownTracker) ledgerKey() string {
	return "bot:" + ct.owner + ":cast_ledger"
}

// chargedKey indexes the spells that have a charge list, so Reset can find them.
func (ct *CooldownTracker) chargedKey() string {
	return "bot:" + ct.owner + ":charged"
}

func (ct *CooldownTracker) chargeKey(spellID uint32) string {
	return "bot:" + ct.owner + ":charges:" + strconv.FormatUint(uint64(spellID), 10)
}

// GCD returns the configured global cooldown.
func (ct *CooldownTracker) GCD() time.Duration { return ct.gcd }

// RecordCast stores the cast time of spellID.
func (ct *CooldownTracker) RecordCast(ctx context.Context, spellID uint32) error {
	ms := ct.now().UnixMilli()
	return ct.cache.HSet(ctx, ct.ledgerKey(), strconv.FormatUint(uint64(spellID), 10), strconv.FormatInt(ms, 10))
}

// lastCast returns the ledger time of spellID; ok is false when none is recorded
// or the ledger cannot be read.
func (ct *CooldownTracker) lastCast(ctx context.Context, spellID uint32) (time.Time, bool) {
	val, err := ct.cache.HGet(ctx, ct.ledgerKey(), strconv.FormatUint(uint64(spellID), 10))
	if err != nil || val == "" {
		if err != nil && !cache.IsNotFound(err) {
			ct.logger.Debug("cast ledger read failed", zap.Uint32("spell_id", spellID), zap.Error(err))
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// oracleRemaining treats oracle errors and negative answers as zero.
func (ct *CooldownTracker) oracleRemaining(spellID uint32) time.Duration {
	if ct.oracle == nil {
		return 0
	}
	ms, err := ct.oracle.RemainingCooldown(spellID)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// IsOnCooldown reports whether spellID cannot be cast right now.
func (ct *CooldownTracker) IsOnCooldown(ctx context.Context, spellID uint32) bool {
	return ct.RemainingCooldown(ctx, spellID) > 0
}

// RemainingCooldown returns the oracle value when positive, else what is left
// of the local global cooldown.
func (ct *CooldownTracker) RemainingCooldown(ctx context.Context, spellID uint32) time.Duration {
	if d := ct.oracleRemaining(spellID); d > 0 {
		return d
	}
	return ct.LocalRemaining(ctx, spellID)
}

// LocalRemaining returns what is left of the local global cooldown for
// spellID, ignoring the oracle.
func (ct *CooldownTracker) LocalRemaining(ctx context.Context, spellID uint32) time.Duration {
	last, ok := ct.lastCast(ctx, spellID)
	if !ok {
		return 0
	}
	left := ct.gcd - ct.now().Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// Active returns the remaining local cooldown of every spell in the ledger.
// Entries whose GCD has lapsed are pruned.
func (ct *CooldownTracker) Active(ctx context.Context) (map[uint32]time.Duration, error) {
	all, err := ct.cache.HGetAll(ctx, ct.ledgerKey())
	if err != nil {
		return nil, err
	}
	now := ct.now()
	active := make(map[uint32]time.Duration, len(all))
	var stale []string
	for field, val := range all {
		id, err1 := strconv.ParseUint(field, 10, 32)
		ms, err2 := strconv.ParseInt(val, 10, 64)
		if err1 != nil || err2 != nil {
			stale = append(stale, field)
			continue
		}
		left := ct.gcd - now.Sub(time.UnixMilli(ms))
		if left <= 0 {
			stale = append(stale, field)
			continue
		}
		active[uint32(id)] = left
	}
	if len(stale) > 0 {
		if err := ct.cache.HDel(ctx, ct.ledgerKey(), stale...); err != nil {
			ct.logger.Debug("cast ledger prune failed", zap.Error(err))
		}
	}
	return active, nil
}

// ---- Charges ----

// RecordChargeUse appends a charge use for spellID. Only the newest
// maxCharges uses are kept. A recharge <= 0 means the charges never come
// back until Reset.
func (ct *CooldownTracker) RecordChargeUse(ctx context.Context, spellID uint32, maxCharges int, recharge time.Duration) error {
	if maxCharges < 1 {
		maxCharges = 1
	}
	key := ct.chargeKey(spellID)
	if err := ct.cache.HSet(ctx, ct.chargedKey(), strconv.FormatUint(uint64(spellID), 10), "1"); err != nil {
		return err
	}
	if err := ct.cache.LPush(ctx, key, strconv.FormatInt(ct.now().UnixMilli(), 10)); err != nil {
		return err
	}
	if err := ct.cache.LTrim(ctx, key, 0, int64(maxCharges-1)); err != nil {
		return err
	}
	if recharge > 0 {
		return ct.cache.Expire(ctx, key, recharge*time.Duration(maxCharges))
	}
	return nil
}

// Charges returns how many charges of spellID are available.
func (ct *CooldownTracker) Charges(ctx context.Context, spellID uint32, maxCharges int, recharge time.Duration) int {
	if maxCharges < 1 {
		maxCharges = 1
	}
	uses, err := ct.cache.LRange(ctx, ct.chargeKey(spellID), 0, int64(maxCharges-1))
	if err != nil {
		return maxCharges
	}
	now := ct.now()
	recharging := 0
	for _, u := range uses {
		ms, err := strconv.ParseInt(u, 10, 64)
		if err != nil {
			continue
		}
		if recharge <= 0 || now.Sub(time.UnixMilli(ms)) < recharge {
			recharging++
		}
	}
	if recharging > maxCharges {
		recharging = maxCharges
	}
	return maxCharges - recharging
}

// Reset forgets every recorded cast and charge use.
func (ct *CooldownTracker) Reset(ctx context.Context) error {
	keys := []string{ct.ledgerKey(), ct.chargedKey()}
	charged, err := ct.cache.HGetAll(ctx, ct.chargedKey())
	if err != nil && !cache.IsNotFound(err) {
		return err
	}
	for field := range charged {
		id, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			continue
		}
		keys = append(keys, ct.chargeKey(uint32(id)))
	}
	return ct.cache.Del(ctx, keys...)
}
