package service

import (
	"sync"
	"time"
)

// TransactionContext holds resources scoped to a group between begin and close.
type TransactionContext interface {
	BeginTransaction(groupID string)
	DestroyTransaction(groupID string) (time.Duration, bool)
}

type MemoryTransactionContext struct {
	started map[string]time.Time
	now     func() time.Time

	lock *sync.Mutex
}

func NewMemoryTransactionContext() *MemoryTransactionContext {
	return &MemoryTransactionContext{
		started: make(map[string]time.Time),
		now:     time.Now,
		lock:    &sync.Mutex{},
	}
}

func (m *MemoryTransactionContext) BeginTransaction(groupID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.started[groupID]; !ok {
		m.started[groupID] = m.now()
	}
}

// DestroyTransaction drops the group's context and reports how long it lived.
func (m *MemoryTransactionContext) DestroyTransaction(groupID string) (time.Duration, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	started, ok := m.started[groupID]
	if !ok {
		return 0, false
	}

	delete(m.started, groupID)

	return m.now().Sub(started), true
}

func (m *MemoryTransactionContext) active() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	return len(m.started)
}
