package database

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Nystya/txgroup/domain"
)

type group struct {
	lock  *sync.Mutex
	units []domain.TransUnit
	state atomic.Int32
}

func newGroup() *group {
	g := &group{lock: &sync.Mutex{}}
	g.state.Store(int32(domain.StateUnknown))

	return g
}

// MemoryRegistry keeps groups in a map guarded by a registry lock. Each group
// carries its own lock for membership and an atomic outcome, so groups do not
// contend with each other once looked up.
type MemoryRegistry struct {
	groups map[string]*group

	lock *sync.RWMutex
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		groups: make(map[string]*group),
		lock:   &sync.RWMutex{},
	}
}

func (m *MemoryRegistry) get(groupID string) (*group, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	g, ok := m.groups[groupID]

	return g, ok
}

func (m *MemoryRegistry) CreateGroup(groupID string) error {
	if groupID == "" {
		return domain.ErrEmptyGroupID
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.groups[groupID]; ok {
		return domain.DuplicateGroupError{GroupID: groupID}
	}

	m.groups[groupID] = newGroup()

	return nil
}

func (m *MemoryRegistry) JoinGroup(groupID string, unit domain.TransUnit) error {
	if !unit.Valid() {
		return domain.GroupJoinError{GroupID: groupID, UnitID: unit.UnitID, Reason: "unit id and remote key are required"}
	}

	g, ok := m.get(groupID)
	if !ok {
		return domain.GroupJoinError{GroupID: groupID, UnitID: unit.UnitID, Reason: "group not found"}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	g.units = append(g.units, unit)

	return nil
}

// SetTransactionState records the outcome once. Repeating the same outcome
// is a no-op, a different one is rejected.
func (m *MemoryRegistry) SetTransactionState(groupID string, state domain.State) error {
	if !state.Terminal() {
		return domain.StateConflictError{GroupID: groupID, Current: domain.StateUnknown, Requested: state}
	}

	g, ok := m.get(groupID)
	if !ok {
		return domain.GroupNotFoundError{GroupID: groupID}
	}

	if g.state.CompareAndSwap(int32(domain.StateUnknown), int32(state)) {
		return nil
	}

	current := domain.State(g.state.Load())
	if current == state {
		return nil
	}

	return domain.StateConflictError{GroupID: groupID, Current: current, Requested: state}
}

func (m *MemoryRegistry) UnitsOfGroup(groupID string) []domain.TransUnit {
	g, ok := m.get(groupID)
	if !ok {
		return []domain.TransUnit{}
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	units := make([]domain.TransUnit, len(g.units))
	copy(units, g.units)

	return units
}

func (m *MemoryRegistry) TransactionState(groupID string) domain.State {
	g, ok := m.get(groupID)
	if !ok {
		return domain.StateUnknown
	}

	return domain.State(g.state.Load())
}

func (m *MemoryRegistry) RemoveGroup(groupID string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.groups, groupID)
}

func (m *MemoryRegistry) GroupIDs() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	ids := make([]string, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
