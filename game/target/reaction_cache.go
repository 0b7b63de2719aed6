package target

import (
	"sync"
	"time"

	"github.com/kasuganosora/rotationbot/game/world"
)

// DefaultReactionCacheSize bounds the reaction memo.
const DefaultReactionCacheSize = 30

// ReactionEntry is one memoised reaction.
type ReactionEntry struct {
	Target     world.GUID `json:"target"`
	Reaction   int        `json:"reaction"`
	CapturedAt time.Time  `json:"captured_at"`
}

// ReactionCache memoises reactions by target GUID. It never evicts: once
// full, new entries are dropped until Clear.
type ReactionCache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[world.GUID]ReactionEntry
}

func NewReactionCache(capacity int) *ReactionCache {
	if capacity <= 0 {
		capacity = DefaultReactionCacheSize
	}
	return &ReactionCache{capacity: capacity, entries: make(map[world.GUID]ReactionEntry, capacity)}
}

func (rc *ReactionCache) Get(id world.GUID) (int, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	e, ok := rc.entries[id]
	return e.Reaction, ok
}

// Put stores reaction for id. It returns false when id is already present
// or the cache is full.
func (rc *ReactionCache) Put(id world.GUID, reaction int) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.entries[id]; ok || len(rc.entries) >= rc.capacity {
		return false
	}
	rc.entries[id] = ReactionEntry{Target: id, Reaction: reaction, CapturedAt: time.Now()}
	return true
}

func (rc *ReactionCache) Len() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return len(rc.entries)
}

func (rc *ReactionCache) Cap() int { return rc.capacity }

func (rc *ReactionCache) Clear() {
	rc.mu.Lock()
	rc.entries = make(map[world.GUID]ReactionEntry, rc.capacity)
	rc.mu.Unlock()
}

// Entries returns a copy of the cache contents.
func (rc *ReactionCache) Entries() []ReactionEntry {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]ReactionEntry, 0, len(rc.entries))
	for _, e := range rc.entries {
		out = append(out, e)
	}
	return out
}
