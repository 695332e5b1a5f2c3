// Vigil - Change Auditing and Request Observability
// Copyright 2026 Clinicore
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clinicore/vigil

package audit

import (
	"context"
	"sync"
)

// StateCache is a StateReader backed by the last reported state of each
// entity. Callers that notify mutations out-of-process use it to give the
// detector a prior state to diff against: after a mutation is recorded the
// caller puts the new state, and the next update for the same entity diffs
// against it. An entity never seen reads as no prior state.
type StateCache struct {
	mu     sync.RWMutex
	states map[snapshotKey]map[string]any
}

// NewStateCache creates an empty state cache.
func NewStateCache() *StateCache {
	return &StateCache{states: make(map[snapshotKey]map[string]any)}
}

// ReadState implements StateReader. Returns a copy so the caller cannot
// mutate cached state.
func (c *StateCache) ReadState(_ context.Context, entityType string, entityID int64) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	state, ok := c.states[snapshotKey{entityType, entityID}]
	if !ok {
		return nil, nil
	}
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out, nil
}

// Put stores the latest known state of an entity. The map is copied.
func (c *StateCache) Put(entityType string, entityID int64, state map[string]any) {
	stored := make(map[string]any, len(state))
	for k, v := range state {
		stored[k] = v
	}

	c.mu.Lock()
	c.states[snapshotKey{entityType, entityID}] = stored
	c.mu.Unlock()
}

// Remove drops an entity's cached state after a delete.
func (c *StateCache) Remove(entityType string, entityID int64) {
	c.mu.Lock()
	delete(c.states, snapshotKey{entityType, entityID})
	c.mu.Unlock()
}

// Len returns the number of cached entities.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}
