// Package server provides the Registry, the process-wide mapping from room
// key to live room. The registry is an explicitly owned object injected into
// the connection handler rather than package-level state, so its lifecycle
// stays visible and testable.
package server

import (
	"fmt"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"
)

// roomKeyLength is the nanoid length for room keys. 22 characters over the
// 64-symbol URL-safe alphabet carry about 131 bits of entropy, which keeps
// keys unguessable; possession of a key is the only access control.
const roomKeyLength = 22

// Registry maps room keys to rooms. A key is present if and only if the
// connection that created the room is still open: the creator's cleanup path
// calls Destroy exactly once, and keys are never reused.
//
// Create, Lookup, and Destroy are linearizable; a Lookup never observes a
// partially inserted room.
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room
	newKey     func() string
	maxHistory int
	metrics    *Metrics
}

// NewRegistry creates an empty registry whose rooms cap their history at
// maxHistory messages (0 means unlimited).
func NewRegistry(maxHistory int, metrics *Metrics) (*Registry, error) {
	newKey, err := nanoid.Standard(roomKeyLength)
	if err != nil {
		return nil, fmt.Errorf("room key generator: %w", err)
	}

	return &Registry{
		rooms:      make(map[string]*Room),
		newKey:     newKey,
		maxHistory: maxHistory,
		metrics:    metrics,
	}, nil
}

// Create generates a fresh room key, registers an empty room under it, and
// returns both. A key collision is vanishingly unlikely at this entropy but
// is still detected and resolved by regenerating.
func (reg *Registry) Create() (string, *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	key := reg.newKey()
	for _, exists := reg.rooms[key]; exists; _, exists = reg.rooms[key] {
		key = reg.newKey()
	}

	room := newRoom(reg.maxHistory)
	reg.rooms[key] = room

	if reg.metrics != nil {
		reg.metrics.ActiveRooms.Inc()
		reg.metrics.RoomsCreated.Inc()
	}
	return key, room
}

// Lookup returns the room registered under key, or false if the key is
// unknown or its room has been destroyed.
func (reg *Registry) Lookup(key string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[key]
	return room, ok
}

// Destroy removes the mapping for key. Members other than the creator may
// still be connected; they keep exchanging messages on the orphaned room,
// but no new connection can join it.
func (reg *Registry) Destroy(key string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.rooms[key]; !ok {
		return
	}
	delete(reg.rooms, key)

	if reg.metrics != nil {
		reg.metrics.ActiveRooms.Dec()
	}
}

// RoomCount reports the number of rooms currently registered.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms)
}
