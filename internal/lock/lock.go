// Package lock serializes work per entity key (a task, a sprint).
package lock

import (
	"fmt"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// MutexMap hands out one mutex per key and drops it once nobody holds or
// waits on it, so long-running servers do not accumulate a mutex per task.
type MutexMap struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		entries: make(map[string]*entry),
	}
}

func (m *MutexMap) Lock(key string) {
	m.acquire(key).mu.Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		panic(fmt.Sprintf("lock: unlock of unlocked key %q", key))
	}
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	e.mu.Unlock()
}

// Do runs fn while holding the lock for key.
func (m *MutexMap) Do(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

// Len returns the number of keys currently held or waited on.
func (m *MutexMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MutexMap) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	return e
}

// TaskKey is the lock key for mutations of one task on one sprint board.
func TaskKey(sprintID int64, taskID string) string {
	return fmt.Sprintf("task:%d:%s", sprintID, taskID)
}

// SprintKey is the lock key for writes of a sprint record.
func SprintKey(sprintID int64) string {
	return fmt.Sprintf("sprint:%d", sprintID)
}

// TeamRolesKey guards the role names of one team.
func TeamRolesKey(teamID int64) string {
	return fmt.Sprintf("roles:%d", teamID)
}

// MemberKey guards the role assignment of one user on one sprint.
func MemberKey(agileID, userID int64) string {
	return fmt.Sprintf("member:%d:%d", agileID, userID)
}
