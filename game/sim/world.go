// Package sim is an in-memory world that implements world.Provider,
// world.Executor and world.CooldownOracle. Entities are laid out in a
// simulated address space using the same offsets a live client uses, so the
// snapshot code runs unchanged against it.
package sim

import (
	"errors"
	"sort"
	"sync"

	"github.com/kasuganosora/rotationbot/game/world"
)

// ErrEnumerate is returned by EnumerateVisible when enumeration is failed on purpose.
var ErrEnumerate = errors.New("sim: enumeration failed")

// CollisionFunc decides a single probe.
type CollisionFunc func(start, end world.Vector3, flags world.IntersectFlags) (blocked bool, hitFraction float32, err error)

type entity struct {
	guid world.GUID
	typ  world.ObjectType
	name string

	obj    uint64
	desc   uint64
	move   uint64
	threat uint64
	auras  uint64 // overflow aura heap, 0 when inline
}

const (
	objectSize     = 0x1000
	descriptorSize = 0x200
	movementSize   = 0x80
	threatSize     = 0x40
	inlineAuraCap  = int((world.OffAuraCount - world.OffAuraTableInline) / world.AuraEntrySize)
	stateStringMax = 64
	powerSlots     = 7
)

// World is a thread-safe simulated client.
type World struct {
	mu sync.RWMutex

	mem      *addressSpace
	entities map[world.GUID]*entity
	byHandle map[uint64]*entity

	inWorld         bool
	localGUID       world.GUID
	failEnumerate   bool
	failManager     bool
	failHandles     map[world.GUID]bool
	relations       map[[2]world.GUID]int
	defaultRelation int
	collision       CollisionFunc

	// executor / oracle state
	acceptCasts  bool
	casts        []CastCall
	interactions []world.GUID
	cooldowns    map[uint32]int64
	oracleErr    error
}

func New() *World {
	return &World{
		mem:             newAddressSpace(),
		entities:        make(map[world.GUID]*entity),
		byHandle:        make(map[uint64]*entity),
		failHandles:     make(map[world.GUID]bool),
		relations:       make(map[[2]world.GUID]int),
		defaultRelation: 4,
		acceptCasts:     true,
		cooldowns:       make(map[uint32]int64),
	}
}

// ---- world.Provider ----

func (w *World) WorldPresent() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.inWorld
}

func (w *World) ManagerHandle() (world.Handle, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.inWorld || w.failManager {
		return 0, world.ErrNoHandle
	}
	return world.Handle(managerBase), nil
}

func (w *World) EnumerateVisible(fn func(world.GUID) bool) error {
	w.mu.RLock()
	if w.failEnumerate {
		w.mu.RUnlock()
		return ErrEnumerate
	}
	ids := make([]world.GUID, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	w.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(id) {
			break
		}
	}
	return nil
}

func (w *World) ResolveHandle(id world.GUID) (world.Handle, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	if !ok || w.failHandles[id] {
		return 0, world.ErrNoHandle
	}
	return world.Handle(e.obj), nil
}

func (w *World) ReadField(h world.Handle, offset uint32, dst []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.mem.read(uint64(h)+uint64(offset), dst) {
		return world.ErrReadFault
	}
	return nil
}

func (w *World) ObjectName(h world.Handle) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.byHandle[uint64(h)]
	if !ok {
		return "", world.ErrNoHandle
	}
	return e.name, nil
}

func (w *World) NativeRelationship(a, b world.Handle) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ea, oka := w.byHandle[uint64(a)]
	eb, okb := w.byHandle[uint64(b)]
	if !oka || !okb {
		return 0, world.ErrNoHandle
	}
	if r, ok := w.relations[[2]world.GUID{ea.guid, eb.guid}]; ok {
		return r, nil
	}
	return w.defaultRelation, nil
}

func (w *World) CollisionProbe(start, end world.Vector3, flags world.IntersectFlags) (bool, float32, error) {
	w.mu.RLock()
	fn := w.collision
	w.mu.RUnlock()
	if fn == nil {
		return false, 1, nil
	}
	return fn(start, end, flags)
}

func (w *World) LocalPlayerGUID() (world.GUID, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.localGUID.IsValid() {
		return 0, world.ErrNotInWorld
	}
	return w.localGUID, nil
}

// ---- world state controls ----

// SetInWorld toggles world presence and the world-loaded global.
func (w *World) SetInWorld(in bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inWorld = in
	var v uint32
	if in {
		v = 1
	}
	w.mem.put32(uint64(world.GlobalWorldLoaded), v)
}

// SetLocalPlayer sets both the manager slot and the fallback source.
func (w *World) SetLocalPlayer(id world.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.localGUID = id
	w.mem.put64(managerBase+uint64(world.OffManagerLocalGUID), uint64(id))
}

func (w *World) SetCurrentTarget(id world.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.put64(uint64(world.GlobalCurrentTarget), uint64(id))
}

func (w *World) SetComboPoints(points uint8, target world.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.put8(uint64(world.GlobalComboPoints), points)
	w.mem.put64(uint64(world.GlobalComboTargetGUID), uint64(target))
}

// SetGameTime sets the client clock used for cast and channel state.
func (w *World) SetGameTime(ms uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.put32(uint64(world.GlobalTimestampMs), ms)
}

func (w *World) SetLoadingCode(code uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.put32(uint64(world.GlobalLoadingCode), code)
}

func (w *World) SetStateString(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.putString(uint64(world.GlobalGameStateString), s, stateStringMax)
}

// SetRelation scripts the reaction of a towards b.
func (w *World) SetRelation(a, b world.GUID, reaction int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.relations[[2]world.GUID{a, b}] = reaction
}

func (w *World) SetDefaultRelation(reaction int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.defaultRelation = reaction
}

func (w *World) SetCollision(fn CollisionFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.collision = fn
}

// ---- fault injection ----

// FaultAddress makes every read covering addr fail.
func (w *World) FaultAddress(addr uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.faults[addr] = true
}

func (w *World) ClearFaults() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.mem.faults = make(map[uint64]bool)
	w.failHandles = make(map[world.GUID]bool)
	w.failEnumerate = false
	w.failManager = false
}

func (w *World) FailEnumerate(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failEnumerate = fail
}

func (w *World) FailManager(fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failManager = fail
}

// FailHandle makes ResolveHandle fail for one entity.
func (w *World) FailHandle(id world.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failHandles[id] = true
}

// ManagerAddress is the base of the simulated manager block.
func (w *World) ManagerAddress() uint64 { return managerBase }

// Address returns the object base of an entity, or 0.
func (w *World) Address(id world.GUID) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.entities[id]; ok {
		return e.obj
	}
	return 0
}

// DescriptorAddress returns the descriptor base of a unit, or 0.
func (w *World) DescriptorAddress(id world.GUID) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.entities[id]; ok {
		return e.desc
	}
	return 0
}
