package world

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/rotationbot/logging"
	"github.com/kasuganosora/rotationbot/plugin/hook"
	"go.uber.org/zap"
)

// DefaultRefreshInterval throttles full world refreshes.
const DefaultRefreshInterval = 500 * time.Millisecond

// State is the activation state of an ObjectManager.
type State int

const (
	StateUninitialized State = iota
	StateInactive
	StateActive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	}
	return "uninitialized"
}

// RefreshEvent is the payload of hook.AfterRefresh.
type RefreshEvent struct {
	Count     int
	LocalGUID GUID
	At        time.Time
}

// ObjectManager caches snapshots of every visible entity. A single producer
// calls Tick; any goroutine may query.
type ObjectManager struct {
	provider Provider
	mem      Memory
	interval time.Duration
	logger   *zap.Logger
	faults   *logging.Limiter
	hooks    *hook.HookCenter

	initialized atomic.Bool
	active      atomic.Bool

	mu          sync.RWMutex
	manager     Handle
	objects     map[GUID]*Object
	localGUID   GUID
	localPlayer *Object
	lastRefresh time.Time
}

// NewObjectManager creates a manager over p. A zero interval uses
// DefaultRefreshInterval.
func NewObjectManager(p Provider, interval time.Duration, faults *logging.Limiter, logger *zap.Logger) *ObjectManager {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &ObjectManager{
		provider: p,
		mem:      NewMemory(p),
		interval: interval,
		logger:   logger,
		faults:   faults,
		objects:  make(map[GUID]*Object),
	}
}

// SetHooks attaches a hook center for world enter/leave and refresh events.
func (om *ObjectManager) SetHooks(hc *hook.HookCenter) { om.hooks = hc }

// Memory returns the typed reader used for snapshots.
func (om *ObjectManager) Memory() Memory { return om.mem }

// Provider returns the underlying world provider.
func (om *ObjectManager) Provider() Provider { return om.provider }

func (om *ObjectManager) State() State {
	switch {
	case !om.initialized.Load():
		return StateUninitialized
	case om.active.Load():
		return StateActive
	}
	return StateInactive
}

func (om *ObjectManager) IsActive() bool { return om.active.Load() }

// Tick follows world presence and refreshes when due.
func (om *ObjectManager) Tick(now time.Time) {
	present := om.provider.WorldPresent()
	switch {
	case !present && om.active.Load():
		om.Deactivate()
		return
	case !present:
		return
	case !om.active.Load():
		if !om.TryActivate() {
			return
		}
	}
	om.Update(now)
}

// TryActivate resolves the manager handle and marks the cache active.
// On failure the state is left unchanged.
func (om *ObjectManager) TryActivate() bool {
	h, err := om.provider.ManagerHandle()
	if err != nil || h == 0 {
		if err == nil {
			err = ErrNoHandle
		}
		om.faults.Warn("world.manager_handle", "object manager: manager handle unavailable", zap.Error(err))
		return false
	}

	om.mu.Lock()
	om.manager = h
	om.lastRefresh = time.Time{}
	om.mu.Unlock()

	om.RefreshLocalGUID()
	om.initialized.Store(true)
	om.active.Store(true)

	local := om.LocalGUID()
	om.logger.Info("object manager activated", zap.Uint64("local_guid", uint64(local)))
	om.trigger(hook.OnWorldEnter, local)
	return true
}

// Deactivate drops all snapshots but keeps the initialized flag.
func (om *ObjectManager) Deactivate() {
	om.mu.Lock()
	om.objects = make(map[GUID]*Object)
	om.localPlayer = nil
	om.manager = 0
	om.mu.Unlock()
	if om.active.Swap(false) {
		om.logger.Info("object manager deactivated")
		om.trigger(hook.OnWorldLeave, nil)
	}
}

// Shutdown clears everything and both flags.
func (om *ObjectManager) Shutdown() {
	om.mu.Lock()
	om.objects = make(map[GUID]*Object)
	om.localPlayer = nil
	om.localGUID = 0
	om.manager = 0
	om.lastRefresh = time.Time{}
	om.mu.Unlock()
	om.active.Store(false)
	om.initialized.Store(false)
}

// RefreshLocalGUID re-reads the local avatar id, first from the manager and
// then from the provider's fallback.
func (om *ObjectManager) RefreshLocalGUID() GUID {
	om.mu.RLock()
	mgr := om.manager
	om.mu.RUnlock()

	var id GUID
	if mgr != 0 {
		if v, ok := om.mem.TryU64(mgr, OffManagerLocalGUID); ok {
			id = GUID(v)
		}
	}
	if !id.IsValid() {
		if v, err := om.provider.LocalPlayerGUID(); err == nil {
			id = v
		}
	}

	om.mu.Lock()
	if id != om.localGUID {
		om.localGUID = id
		om.localPlayer = nil
	}
	om.mu.Unlock()
	return id
}

// Update rebuilds the snapshot map when the refresh interval has elapsed.
func (om *ObjectManager) Update(now time.Time) {
	if !om.active.Load() {
		return
	}
	om.mu.RLock()
	last := om.lastRefresh
	om.mu.RUnlock()
	if !last.IsZero() && now.Sub(last) < om.interval {
		return
	}

	local := om.RefreshLocalGUID()

	var ids []GUID
	err := om.provider.EnumerateVisible(func(id GUID) bool {
		ids = append(ids, id)
		return true
	})
	if err != nil {
		om.faults.Warn("world.enumerate", "object manager: enumeration failed", zap.Error(err))
		om.install(make(map[GUID]*Object), nil, now)
		return
	}

	snap := &snapshotter{mem: om.mem, local: local, nowMs: om.mem.U32(0, GlobalTimestampMs)}
	objects := make(map[GUID]*Object, len(ids))
	var localPlayer *Object
	for _, id := range ids {
		h, err := om.provider.ResolveHandle(id)
		if err != nil || h == 0 {
			continue
		}
		t, ok := om.mem.TryU32(h, OffObjectType)
		if !ok {
			continue
		}
		typ := ObjectType(t)
		if t > uint32(TypeCorpse) {
			typ = TypeNone
		}
		obj := snap.build(id, h, typ)
		objects[id] = obj
		if id == local && obj.Type == TypePlayer {
			localPlayer = obj
		}
	}

	om.install(objects, localPlayer, now)
	om.trigger(hook.AfterRefresh, RefreshEvent{Count: len(objects), LocalGUID: local, At: now})
}

func (om *ObjectManager) install(objects map[GUID]*Object, local *Object, now time.Time) {
	om.mu.Lock()
	om.objects = objects
	om.localPlayer = local
	om.lastRefresh = now
	om.mu.Unlock()
}

func (om *ObjectManager) trigger(event string, data interface{}) {
	if om.hooks == nil {
		return
	}
	if _, err := om.hooks.Trigger(context.Background(), event, data); err != nil {
		om.logger.Debug("hook interrupted", zap.String("event", event), zap.Error(err))
	}
}

// ---- Queries ----

func (om *ObjectManager) Get(id GUID) *Object {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.objects[id]
}

// GetUnit returns the snapshot only when it carries a unit view.
func (om *ObjectManager) GetUnit(id GUID) *Object {
	obj := om.Get(id)
	if obj.AsUnit() == nil {
		return nil
	}
	return obj
}

func (om *ObjectManager) LocalPlayer() *Object {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.localPlayer
}

func (om *ObjectManager) LocalGUID() GUID {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.localGUID
}

// Objects returns every snapshot sorted by GUID.
func (om *ObjectManager) Objects() []*Object {
	om.mu.RLock()
	out := make([]*Object, 0, len(om.objects))
	for _, o := range om.objects {
		out = append(out, o)
	}
	om.mu.RUnlock()
	sortObjects(out)
	return out
}

// ObjectsByType filters Objects by tag. TypeUnit also matches players.
func (om *ObjectManager) ObjectsByType(t ObjectType) []*Object {
	all := om.Objects()
	out := all[:0]
	for _, o := range all {
		if o.Type == t || (t == TypeUnit && o.Type == TypePlayer) {
			out = append(out, o)
		}
	}
	return out
}

// FindByName matches a case-insensitive substring of the entity name.
func (om *ObjectManager) FindByName(substr string) []*Object {
	needle := strings.ToLower(substr)
	all := om.Objects()
	out := all[:0]
	for _, o := range all {
		if strings.Contains(strings.ToLower(o.Name), needle) {
			out = append(out, o)
		}
	}
	return out
}

func (om *ObjectManager) Count() int {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return len(om.objects)
}

// CurrentTargetGUID reads the selected target. Zero on fault.
func (om *ObjectManager) CurrentTargetGUID() GUID {
	return om.mem.GUID(0, GlobalCurrentTarget)
}

func (om *ObjectManager) LastRefresh() time.Time {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return om.lastRefresh
}

func sortObjects(objs []*Object) {
	sort.Slice(objs, func(i, j int) bool {
		return objs[i].GUID.Compare(objs[j].GUID) < 0
	})
}
