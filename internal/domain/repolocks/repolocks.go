// Package repolocks serializes git mutations per manifest repository. Several
// deployments may point at the same manifest repository, so exclusion is keyed
// by repository identity rather than by deployment.
package repolocks

import (
	"strings"
	"sync"
)

// Manager hands out one mutex per normalized repository URL. Entries are
// created lazily and kept for the life of the process; the key space is
// bounded by the number of distinct manifest repositories in use.
type Manager struct {
	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		locks: map[string]*sync.Mutex{},
	}
}

// Acquire blocks until the lock for the repository identity is available and
// returns the release function. The caller must release on every exit path.
func (m *Manager) Acquire(repositoryUrl string) func() {
	key := Normalize(repositoryUrl)

	m.mutex.Lock()
	lock, exists := m.locks[key]

	if !exists {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mutex.Unlock()

	lock.Lock()

	return lock.Unlock
}

// Normalize maps equivalent remote URLs onto one lock key.
func Normalize(repositoryUrl string) string {
	key := strings.TrimSpace(repositoryUrl)
	key = strings.TrimSuffix(key, "/")
	key = strings.TrimSuffix(key, ".git")

	return strings.ToLower(key)
}
