// Package reservation keeps overlapping sync runs apart.
//
// A reservation is either global (a full sync) or a set of company ids (a targeted sync).
// Global conflicts with everything; targeted reservations conflict only on shared ids.
// Reservations are advisory and process local: they guard one instance, not a cluster.
package reservation

import (
	"slices"
	"sync"
)

const (
	ReasonFullSyncRunning  = "A full sync is already running"
	ReasonAnotherRunning   = "Another sync is already running"
	ReasonCompaniesSyncing = "Some companies are already syncing"
)

// Conflict describes what blocked a reservation
type Conflict struct {
	Global    bool    `json:"global,omitempty"`
	Companies []int64 `json:"companies,omitempty"`
}

// Outcome of a Reserve call. A rejected call reserves nothing.
type Outcome struct {
	OK        bool
	Reason    string
	Conflicts *Conflict
}

// State is a point-in-time copy of the guard
type State struct {
	Global    bool    `json:"global"`
	Companies []int64 `json:"companies"`
}

// Guard is the reservation contract. Implementations must make Reserve atomic:
// either every requested id is claimed or none is.
type Guard interface {
	// Reserve claims ids, or the whole scope when ids is empty
	Reserve(ids []int64) Outcome
	// Release frees ids, or clears the global flag when ids is empty.
	// The global flag is cleared unconditionally; callers must pass the same ids they reserved.
	Release(ids []int64)
	State() State
}

// MemoryGuard is the in-process Guard
type MemoryGuard struct {
	mu        sync.Mutex
	global    bool
	companies map[int64]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{companies: make(map[int64]struct{})}
}

func (g *MemoryGuard) Reserve(ids []int64) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(ids) == 0 {
		if g.global || len(g.companies) > 0 {
			return Outcome{
				Reason:    ReasonAnotherRunning,
				Conflicts: &Conflict{Global: g.global, Companies: g.reservedLocked()},
			}
		}
		g.global = true
		return Outcome{OK: true}
	}

	if g.global {
		return Outcome{Reason: ReasonFullSyncRunning, Conflicts: &Conflict{Global: true}}
	}

	var overlapping []int64
	for _, id := range ids {
		if _, taken := g.companies[id]; taken && !slices.Contains(overlapping, id) {
			overlapping = append(overlapping, id)
		}
	}
	if len(overlapping) > 0 {
		return Outcome{Reason: ReasonCompaniesSyncing, Conflicts: &Conflict{Companies: overlapping}}
	}

	for _, id := range ids {
		g.companies[id] = struct{}{}
	}
	return Outcome{OK: true}
}

func (g *MemoryGuard) Release(ids []int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(ids) == 0 {
		g.global = false
		return
	}
	for _, id := range ids {
		delete(g.companies, id)
	}
}

func (g *MemoryGuard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{Global: g.global, Companies: g.reservedLocked()}
}

// Reset drops every reservation. Meant for tests and operator recovery.
func (g *MemoryGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.global = false
	g.companies = make(map[int64]struct{})
}

func (g *MemoryGuard) reservedLocked() []int64 {
	ids := make([]int64, 0, len(g.companies))
	for id := range g.companies {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
