package registry

import (
	"context"
	"sync"
)

// Memory is an in-process Registry for tests and single-node deployments.
type Memory struct {
	owner   string
	mu      sync.RWMutex
	members map[string]struct{}
}

// NewMemory creates a registry owned by owner. The owner is not a member
// until explicitly added.
func NewMemory(owner string) *Memory {
	return &Memory{owner: owner, members: make(map[string]struct{})}
}

func (m *Memory) Owner() string { return m.owner }

func (m *Memory) IsAuthorized(_ context.Context, identity string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.members[identity]
	return ok, nil
}

func (m *Memory) AddReporter(_ context.Context, identity, requestedBy string) error {
	if requestedBy != m.owner {
		return ErrNotOwner
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[identity] = struct{}{}
	return nil
}

func (m *Memory) RemoveReporter(_ context.Context, identity, requestedBy string) error {
	if requestedBy != m.owner {
		return ErrNotOwner
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, identity)
	return nil
}
