package exception

import (
	"context"
	"sync"

	"github.com/Nystya/txgroup/domain"
)

type MemoryStore struct {
	states  map[string]domain.State
	records map[string][]*domain.ExceptionRecord

	lock *sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[string]domain.State),
		records: make(map[string][]*domain.ExceptionRecord),
		lock:    &sync.RWMutex{},
	}
}

func (m *MemoryStore) Record(_ context.Context, record *domain.ExceptionRecord) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.apply(record)

	return nil
}

// apply must be called with the lock held.
func (m *MemoryStore) apply(record *domain.ExceptionRecord) {
	if _, ok := m.states[record.GroupID]; !ok && record.State.Terminal() {
		m.states[record.GroupID] = record.State
	}

	m.records[record.GroupID] = append(m.records[record.GroupID], record)
}

func (m *MemoryStore) TransactionState(_ context.Context, groupID string) (domain.State, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	state, ok := m.states[groupID]
	if !ok {
		return domain.StateUnknown, nil
	}

	return state, nil
}

func (m *MemoryStore) Exceptions(_ context.Context, groupID string) ([]*domain.ExceptionRecord, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	records := make([]*domain.ExceptionRecord, len(m.records[groupID]))
	copy(records, m.records[groupID])

	return records, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
