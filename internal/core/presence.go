package core

import (
	"sync"
	"time"
)

// Presence is the process-wide registry of who is online. It is created at
// startup, passed by reference into every handler, and torn down with the
// process; it holds no durable state of its own (the store keeps the
// authoritative last-seen timestamps).
//
// A connection dropping does NOT flip the user offline here: the offline
// transition is an explicit client action, matching the delivery semantics of
// the rest of the system.
type Presence struct {
	mu       sync.RWMutex
	online   map[int64]struct{}
	lastSeen map[int64]time.Time
}

// NewPresence constructs an empty presence registry.
func NewPresence() *Presence {
	return &Presence{
		online:   make(map[int64]struct{}),
		lastSeen: make(map[int64]time.Time),
	}
}

// SetOnline marks a user online. Returns true if the flag changed.
func (p *Presence) SetOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.online[userID]; ok {
		return false
	}
	p.online[userID] = struct{}{}
	return true
}

// SetOffline marks a user offline and records their last-seen time.
// Returns true if the flag changed.
func (p *Presence) SetOffline(userID int64, lastSeen time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen[userID] = lastSeen
	if _, ok := p.online[userID]; !ok {
		return false
	}
	delete(p.online, userID)
	return true
}

// IsOnline reports whether a user is currently marked online.
func (p *Presence) IsOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// LastSeen returns the recorded last-seen time for a user, if any.
func (p *Presence) LastSeen(userID int64) (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.lastSeen[userID]
	return t, ok
}

// OnlineCount returns the number of users currently online.
func (p *Presence) OnlineCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.online)
}
