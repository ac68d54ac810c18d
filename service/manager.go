package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Nystya/txgroup/domain"
	"github.com/Nystya/txgroup/logger"
	"github.com/Nystya/txgroup/metrics"
	"github.com/Nystya/txgroup/repository/database"
	"github.com/Nystya/txgroup/repository/exception"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ManagerDeps struct {
	Registry       database.GroupRegistry
	Ledger         exception.Ledger
	Client         NotificationClient
	FailureHandler NotificationFailureHandler
	TxLogger       logger.TxLogger
	Context        TransactionContext
	Metrics        *metrics.CoordinatorMetrics
	Logger         *zap.Logger

	// NotifyWorkers bounds concurrent notifications within one group.
	// Values below 1 mean sequential.
	NotifyWorkers int
}

type SimpleTransactionManager struct {
	registry       database.GroupRegistry
	ledger         exception.Ledger
	client         NotificationClient
	failureHandler NotificationFailureHandler
	txLogger       logger.TxLogger
	txContext      TransactionContext
	metrics        *metrics.CoordinatorMetrics
	logger         *zap.Logger

	notifyWorkers int
}

func NewSimpleTransactionManager(deps ManagerDeps) *SimpleTransactionManager {
	m := &SimpleTransactionManager{
		registry:       deps.Registry,
		ledger:         deps.Ledger,
		client:         deps.Client,
		failureHandler: deps.FailureHandler,
		txLogger:       deps.TxLogger,
		txContext:      deps.Context,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		notifyWorkers:  deps.NotifyWorkers,
	}

	if m.registry == nil {
		m.registry = database.NewMemoryRegistry()
	}

	if m.ledger == nil {
		m.ledger = exception.NewMemoryStore()
	}

	if m.txLogger == nil {
		m.txLogger = logger.NopTxLogger{}
	}

	if m.txContext == nil {
		m.txContext = NewMemoryTransactionContext()
	}

	if m.metrics == nil {
		m.metrics = metrics.New(nil)
	}

	if m.logger == nil {
		m.logger = zap.NewNop()
	}

	if m.failureHandler == nil {
		recorder, _ := m.ledger.(exception.Recorder)
		m.failureHandler = NewFailureHandler(recorder, nil, m.metrics, m.logger)
	}

	if m.notifyWorkers < 1 {
		m.notifyWorkers = 1
	}

	return m
}

func (m *SimpleTransactionManager) Begin(_ context.Context, groupID string) error {
	if err := m.registry.CreateGroup(groupID); err != nil {
		return err
	}

	m.txContext.BeginTransaction(groupID)
	m.metrics.ActiveGroups.Inc()

	return nil
}

func (m *SimpleTransactionManager) Join(_ context.Context, groupID string, unit TransactionUnit) error {
	transUnit := domain.TransUnit{
		UnitID:    unit.UnitID,
		UnitType:  unit.UnitType,
		RemoteKey: unit.MessageContextID,
	}

	m.logger.Info("unit joined group", zap.String("unit_id", unit.UnitID), zap.String("group_id", groupID))

	if err := m.registry.JoinGroup(groupID, transUnit); err != nil {
		return domain.TransactionError{Err: err}
	}

	m.txLogger.Trace(groupID, unit.UnitID, logger.TagTransaction, "unit joined group")

	return nil
}

func (m *SimpleTransactionManager) Commit(ctx context.Context, groupID string) error {
	return m.notifyTransaction(ctx, groupID, domain.StateCommitted)
}

func (m *SimpleTransactionManager) Rollback(ctx context.Context, groupID string) error {
	return m.notifyTransaction(ctx, groupID, domain.StateRolledBack)
}

// Close is safe to call for groups that never reached commit or rollback.
func (m *SimpleTransactionManager) Close(_ context.Context, groupID string) error {
	if lifetime, ok := m.txContext.DestroyTransaction(groupID); ok {
		m.metrics.ActiveGroups.Dec()
		m.metrics.GroupLifetime.Observe(float64(lifetime.Milliseconds()))
	}

	m.registry.RemoveGroup(groupID)

	return nil
}

// TransactionState prefers the exception ledger over the registry.
func (m *SimpleTransactionManager) TransactionState(ctx context.Context, groupID string) domain.State {
	state, err := m.ledger.TransactionState(ctx, groupID)
	if err != nil {
		m.logger.Warn("exception ledger unavailable, using registry state", zap.String("group_id", groupID), zap.Error(err))
	} else if state != domain.StateUnknown {
		return state
	}

	return m.registry.TransactionState(groupID)
}

// notifyTransaction records the outcome and then notifies every unit. It only
// fails when the outcome itself cannot be recorded; unit failures go to the
// failure handler.
func (m *SimpleTransactionManager) notifyTransaction(ctx context.Context, groupID string, state domain.State) error {
	if err := m.registry.SetTransactionState(groupID, state); err != nil {
		return fmt.Errorf("set state of group %s: %w", groupID, err)
	}

	transUnits := m.registry.UnitsOfGroup(groupID)

	g := &errgroup.Group{}
	g.SetLimit(m.notifyWorkers)

	for _, transUnit := range transUnits {
		transUnit := transUnit

		g.Go(func() error {
			m.notifyUnit(ctx, groupID, transUnit, state)
			return nil
		})
	}

	_ = g.Wait()

	return nil
}

func (m *SimpleTransactionManager) notifyUnit(ctx context.Context, groupID string, transUnit domain.TransUnit, state domain.State) {
	params := domain.NotifyUnitParams{
		GroupID:  groupID,
		UnitID:   transUnit.UnitID,
		UnitType: transUnit.UnitType,
		State:    state,
	}

	m.txLogger.Trace(groupID, params.UnitID, logger.TagTransaction, "notify unit")
	defer m.txLogger.Trace(groupID, params.UnitID, logger.TagTransaction, "notify unit over")

	start := time.Now()
	outcome := m.notify(ctx, transUnit.RemoteKey, params)

	m.metrics.NotifyLatency.WithLabelValues(state.String()).Observe(float64(time.Since(start).Milliseconds()))
	m.metrics.Notifications.WithLabelValues(state.String(), outcome.Kind.String()).Inc()
	m.logger.Debug("notified unit", zap.String("remote_key", transUnit.RemoteKey), zap.Stringer("outcome", outcome.Kind))

	switch outcome.Kind {
	case domain.OutcomeRejected:
		m.guard(params, func() {
			m.failureHandler.HandleBusinessRejection(ctx, params, transUnit.RemoteKey, outcome.Cause)
		})
	case domain.OutcomeTransportFailure:
		m.guard(params, func() {
			m.failureHandler.HandleCommunicationFailure(ctx, params, transUnit.RemoteKey, outcome.Err)
		})
	}
}

// notify turns a panicking client into a communication failure.
func (m *SimpleTransactionManager) notify(ctx context.Context, remoteKey string, params domain.NotifyUnitParams) (outcome domain.NotificationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = domain.TransportFailure(domain.CommunicationFailure{RemoteKey: remoteKey, Err: fmt.Errorf("panic: %v", r)})
		}
	}()

	return m.client.Notify(ctx, remoteKey, params)
}

func (m *SimpleTransactionManager) guard(params domain.NotifyUnitParams, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("failure handler panicked", zap.String("group_id", params.GroupID),
				zap.String("unit_id", params.UnitID), zap.Any("panic", r))
		}
	}()

	fn()
}
