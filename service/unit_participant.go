package service

import (
	"context"
	"sync"
	"time"

	"github.com/Nystya/txgroup/domain"
	"go.uber.org/zap"
)

// UnitParticipant dispatches notifications to handlers by unit type and
// remembers what each unit applied for a retention window, so repeated
// notifications are harmless.
type UnitParticipant struct {
	handlers map[string]UnitHandler
	applied  map[string]appliedOutcome

	lock    *sync.Mutex
	lockMap map[string]*unitLock

	retention time.Duration
	lastSweep time.Time
	now       func() time.Time

	logger *zap.Logger
}

type appliedOutcome struct {
	state domain.State
	at    time.Time
}

// unitLock is dropped from the lock map once nobody holds or waits on it.
type unitLock struct {
	sync.Mutex
	refs int
}

const defaultRetention = time.Hour

func NewUnitParticipant(handlers map[string]UnitHandler, logger *zap.Logger) *UnitParticipant {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &UnitParticipant{
		handlers:  handlers,
		applied:   make(map[string]appliedOutcome),
		lock:      &sync.Mutex{},
		lockMap:   make(map[string]*unitLock),
		retention: defaultRetention,
		lastSweep: time.Now(),
		now:       time.Now,
		logger:    logger.Named("participant"),
	}
}

func unitKey(groupID, unitID string) string {
	return groupID + "/" + unitID
}

func (p *UnitParticipant) acquire(key string) *unitLock {
	p.lock.Lock()
	lock, ok := p.lockMap[key]
	if !ok {
		lock = &unitLock{}
		p.lockMap[key] = lock
	}
	lock.refs++
	p.lock.Unlock()

	lock.Lock()

	return lock
}

func (p *UnitParticipant) release(key string, lock *unitLock) {
	lock.Unlock()

	p.lock.Lock()
	defer p.lock.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(p.lockMap, key)
	}
}

// sweep forgets outcomes older than the retention window. Must be called
// with p.lock held.
func (p *UnitParticipant) sweep(now time.Time) {
	if now.Sub(p.lastSweep) < p.retention/2 {
		return
	}

	for key, outcome := range p.applied {
		if now.Sub(outcome.at) >= p.retention {
			delete(p.applied, key)
		}
	}

	p.lastSweep = now
}

func (p *UnitParticipant) ApplyOutcome(ctx context.Context, params domain.NotifyUnitParams) error {
	handler, ok := p.handlers[params.UnitType]
	if !ok {
		return &domain.FailureCause{
			Code:    CodeUnknownUnitType,
			Message: "no handler for unit type " + params.UnitType,
			Detail:  map[string]string{"unitType": params.UnitType},
		}
	}

	key := unitKey(params.GroupID, params.UnitID)

	// Lock the unit being completed
	lock := p.acquire(key)
	defer p.release(key, lock)

	if current := p.UnitState(params.GroupID, params.UnitID); current.Terminal() {
		if current == params.State {
			return nil
		}

		return &domain.FailureCause{
			Code:    CodeStateConflict,
			Message: "unit already " + current.String(),
			Detail:  map[string]string{"current": current.String(), "requested": params.State.String()},
		}
	}

	var err error
	switch params.State {
	case domain.StateCommitted:
		err = handler.Commit(ctx, params.GroupID, params.UnitID)
	case domain.StateRolledBack:
		err = handler.Rollback(ctx, params.GroupID, params.UnitID)
	default:
		return &domain.FailureCause{Code: CodeStateConflict, Message: "unsupported state " + params.State.String()}
	}

	if err != nil {
		p.logger.Warn("unit could not apply outcome",
			zap.String("group_id", params.GroupID), zap.String("unit_id", params.UnitID), zap.Error(err))
		return err
	}

	p.lock.Lock()
	now := p.now()
	p.applied[key] = appliedOutcome{state: params.State, at: now}
	p.sweep(now)
	p.lock.Unlock()

	p.logger.Info("unit applied outcome",
		zap.String("group_id", params.GroupID), zap.String("unit_id", params.UnitID), zap.Stringer("state", params.State))

	return nil
}

func (p *UnitParticipant) UnitState(groupID, unitID string) domain.State {
	p.lock.Lock()
	defer p.lock.Unlock()

	outcome, ok := p.applied[unitKey(groupID, unitID)]
	if !ok || p.now().Sub(outcome.at) >= p.retention {
		return domain.StateUnknown
	}

	return outcome.state
}

// LoggingUnitHandler accepts every outcome and logs it.
type LoggingUnitHandler struct {
	Logger *zap.Logger
}

func (l LoggingUnitHandler) Commit(_ context.Context, groupID, unitID string) error {
	l.Logger.Info("commit", zap.String("group_id", groupID), zap.String("unit_id", unitID))
	return nil
}

func (l LoggingUnitHandler) Rollback(_ context.Context, groupID, unitID string) error {
	l.Logger.Info("rollback", zap.String("group_id", groupID), zap.String("unit_id", unitID))
	return nil
}
