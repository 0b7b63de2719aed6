// Package hook lets subsystems observe or veto each other's events without
// importing one another. The object manager, caster and rotation engine
// trigger events; the classifier and tests listen.
package hook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrInterrupt signals that a handler wants to stop further processing.
// For BeforeCast it vetoes the cast.
var ErrInterrupt = errors.New("hook interrupted")

// ErrHandlerPanic wraps a panic raised inside a handler.
var ErrHandlerPanic = errors.New("hook handler panicked")

// Event names and the payload each one carries.
const (
	BeforeCast   = "before_cast"    // skill.CastEvent
	AfterCast    = "after_cast"     // skill.CastEvent with Accepted set
	OnWorldEnter = "on_world_enter" // world.GUID of the local player
	OnWorldLeave = "on_world_leave" // nil
	AfterRefresh = "after_refresh"  // world.RefreshEvent
	OnDecision   = "on_decision"    // rotation.Decision
)

// HookFn is a handler. Return (data, nil) to continue with possibly modified
// data, or (data, ErrInterrupt) to stop the chain. Other errors are ignored.
type HookFn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type hookEntry struct {
	priority int
	fn       HookFn
	name     string
}

// HookCenter manages event hook registrations.
type HookCenter struct {
	mu    sync.RWMutex
	hooks map[string][]*hookEntry
}

func NewHookCenter() *HookCenter {
	return &HookCenter{hooks: make(map[string][]*hookEntry)}
}

// Register adds fn for event. Lower priority runs first; equal priorities run
// in registration order. Registering a name twice for one event replaces the
// earlier handler.
func (hc *HookCenter) Register(event string, priority int, name string, fn HookFn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := without(hc.hooks[event], name)
	entries = append(entries, &hookEntry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// Unregister removes the handler registered as name for event.
func (hc *HookCenter) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := without(hc.hooks[event], name)
	if len(entries) == 0 {
		delete(hc.hooks, event)
		return
	}
	hc.hooks[event] = entries
}

func without(entries []*hookEntry, name string) []*hookEntry {
	out := make([]*hookEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.name != name {
			out = append(out, e)
		}
	}
	return out
}

// Trigger runs the handlers for event in order, threading data through
// them. It stops early on ErrInterrupt, on a handler panic, or when ctx is
// done, returning the data as it stood.
func (hc *HookCenter) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	hc.mu.RLock()
	entries := hc.hooks[event]
	hc.mu.RUnlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return data, err
		}
		out, err := call(ctx, e, event, data)
		if errors.Is(err, ErrHandlerPanic) {
			return data, err
		}
		data = out
		if errors.Is(err, ErrInterrupt) {
			return data, err
		}
	}
	return data, nil
}

func call(ctx context.Context, e *hookEntry, event string, data interface{}) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = data, fmt.Errorf("%w: %s on %s: %v", ErrHandlerPanic, e.name, event, r)
		}
	}()
	return e.fn(ctx, event, data)
}

// Registered returns the handler names for event in execution order.
func (hc *HookCenter) Registered(event string) []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.hooks[event]))
	for _, e := range hc.hooks[event] {
		names = append(names, e.name)
	}
	return names
}
