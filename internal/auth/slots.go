// Package auth implements session resolution over the four persisted
// session slots, the capability-query context consumed by the route guard
// and the approval workflow, and the login/logout mutators that keep the
// slots in sync.
package auth

import (
	"context"
	"fmt"
	"sync"
)

// Slot names. Every session lives in four independent slots: an ordinary
// token/user pair and a super-admin token/user pair, plus one slot for
// session-scoped settings that logout must clear alongside them.
const (
	slotUserToken  = "token"
	slotUserData   = "user"
	slotSuperToken = "sa_token"
	slotSuperData  = "sa_user"
	slotSettings   = "settings"
)

// SlotStore is the key-value store backing the persisted session slots.
// Keys are opaque to everything except this package.
type SlotStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

func slotKey(clientID, slot string) string {
	return fmt.Sprintf("session:%s:%s", clientID, slot)
}

func allSlotKeys(clientID string) []string {
	return []string{
		slotKey(clientID, slotUserToken),
		slotKey(clientID, slotUserData),
		slotKey(clientID, slotSuperToken),
		slotKey(clientID, slotSuperData),
		slotKey(clientID, slotSettings),
	}
}

// MemorySlotStore is an in-process SlotStore used by tests and by
// single-node dev deployments without Redis.
type MemorySlotStore struct {
	mu    sync.RWMutex
	slots map[string]string
}

func NewMemorySlotStore() *MemorySlotStore {
	return &MemorySlotStore{slots: make(map[string]string)}
}

func (m *MemorySlotStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.slots[key]
	return value, ok, nil
}

func (m *MemorySlotStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[key] = value
	return nil
}

func (m *MemorySlotStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.slots, key)
	}
	return nil
}
