package world

import "errors"

var (
	// ErrReadFault is returned by a Provider when a field cannot be read.
	ErrReadFault = errors.New("world: read fault")
	// ErrNoHandle is returned when an entity or the manager cannot be resolved.
	ErrNoHandle = errors.New("world: handle not resolvable")
	// ErrNotInWorld is returned by operations that need a loaded world.
	ErrNotInWorld = errors.New("world: not in world")
)

// Provider is the only boundary to the external world state. Every call may
// fail; callers treat failures as transient unless documented otherwise.
type Provider interface {
	// WorldPresent reports whether a world is currently loaded.
	WorldPresent() bool
	// ManagerHandle resolves the entity manager. It is not stable across
	// world transitions.
	ManagerHandle() (Handle, error)
	// EnumerateVisible calls fn for every visible entity until fn returns false.
	EnumerateVisible(fn func(GUID) bool) error
	ResolveHandle(id GUID) (Handle, error)
	// ReadField copies len(dst) bytes found at h+offset.
	ReadField(h Handle, offset uint32, dst []byte) error
	ObjectName(h Handle) (string, error)
	// NativeRelationship returns the reaction ordinal of a towards b:
	// 1 hostile .. 4 friendly .. 8 exalted.
	NativeRelationship(a, b Handle) (int, error)
	CollisionProbe(start, end Vector3, flags IntersectFlags) (blocked bool, hitFraction float32, err error)
	// LocalPlayerGUID is the secondary source for the local avatar id.
	LocalPlayerGUID() (GUID, error)
}

// Executor performs actions in the world. Calls are fire-and-forget: true
// only means the request was accepted.
type Executor interface {
	Cast(spellID uint32, target GUID, requiresTarget bool) bool
	Interact(target GUID) bool
}

// CooldownOracle reports the remaining cooldown in milliseconds.
type CooldownOracle interface {
	RemainingCooldown(spellID uint32) (int64, error)
}
