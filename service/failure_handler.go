package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Nystya/txgroup/domain"
	"github.com/Nystya/txgroup/metrics"
	"github.com/Nystya/txgroup/repository/escalation"
	"github.com/Nystya/txgroup/repository/exception"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationFailureHandler reacts to units that could not apply an outcome.
// Implementations must not panic or block the caller on their own failures.
type NotificationFailureHandler interface {
	HandleBusinessRejection(ctx context.Context, params domain.NotifyUnitParams, remoteKey string, cause *domain.FailureCause)
	HandleCommunicationFailure(ctx context.Context, params domain.NotifyUnitParams, remoteKey string, err error)
}

// FailureHandler records every failure in the exception ledger and queues a
// compensation event for it.
type FailureHandler struct {
	recorder  exception.Recorder
	publisher escalation.Publisher
	metrics   *metrics.CoordinatorMetrics
	logger    *zap.Logger

	publishTimeout time.Duration
	now            func() time.Time
}

const defaultPublishTimeout = 2 * time.Second

func NewFailureHandler(recorder exception.Recorder, publisher escalation.Publisher, m *metrics.CoordinatorMetrics, logger *zap.Logger) *FailureHandler {
	if publisher == nil {
		publisher = escalation.NopPublisher{}
	}

	if m == nil {
		m = metrics.New(nil)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &FailureHandler{
		recorder:  recorder,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("failure-handler"),

		publishTimeout: defaultPublishTimeout,
		now:            time.Now,
	}
}

func (h *FailureHandler) HandleBusinessRejection(ctx context.Context, params domain.NotifyUnitParams, remoteKey string, cause *domain.FailureCause) {
	defer h.recoverPanic(params, remoteKey)

	rejection := domain.BusinessRejection{RemoteKey: remoteKey, Cause: cause}
	h.logger.Warn("unit rejected notification",
		zap.String("group_id", params.GroupID),
		zap.String("unit_id", params.UnitID),
		zap.String("remote_key", remoteKey),
		zap.Stringer("state", params.State),
		zap.Error(rejection))

	h.handle(ctx, domain.ExceptionBusiness, params, remoteKey, rejection.Error())
}

func (h *FailureHandler) HandleCommunicationFailure(ctx context.Context, params domain.NotifyUnitParams, remoteKey string, err error) {
	defer h.recoverPanic(params, remoteKey)

	h.logger.Error("unit notification failed",
		zap.String("group_id", params.GroupID),
		zap.String("unit_id", params.UnitID),
		zap.String("remote_key", remoteKey),
		zap.Stringer("state", params.State),
		zap.Error(err))

	reason := "unknown communication failure"
	if err != nil {
		reason = err.Error()
	}

	h.handle(ctx, domain.ExceptionCommunication, params, remoteKey, reason)
}

func (h *FailureHandler) handle(ctx context.Context, kind domain.ExceptionKind, params domain.NotifyUnitParams, remoteKey, reason string) {
	h.metrics.Failures.WithLabelValues(string(kind)).Inc()

	at := h.now().UTC()
	record := &domain.ExceptionRecord{
		ID:        uuid.NewString(),
		GroupID:   params.GroupID,
		UnitID:    params.UnitID,
		UnitType:  params.UnitType,
		RemoteKey: remoteKey,
		State:     params.State,
		Kind:      kind,
		Message:   reason,
		CreatedAt: at,
	}

	if h.recorder != nil {
		if err := h.recorder.Record(ctx, record); err != nil {
			h.logger.Error("could not record exception", zap.String("group_id", params.GroupID), zap.Error(err))
		}
	}

	event := escalation.CompensationEvent{
		ID:        record.ID,
		Kind:      kind,
		GroupID:   params.GroupID,
		UnitID:    params.UnitID,
		UnitType:  params.UnitType,
		RemoteKey: remoteKey,
		State:     params.State,
		Reason:    reason,
		At:        at,
	}

	publishCtx, cancel := context.WithTimeout(ctx, h.publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(publishCtx, event); err != nil {
		h.logger.Error("could not publish compensation event", zap.String("group_id", params.GroupID), zap.Error(err))
	}
}

func (h *FailureHandler) recoverPanic(params domain.NotifyUnitParams, remoteKey string) {
	if r := recover(); r != nil {
		h.metrics.HandlerPanics.Inc()
		h.logger.Error("failure handler panicked",
			zap.String("group_id", params.GroupID),
			zap.String("unit_id", params.UnitID),
			zap.String("remote_key", remoteKey),
			zap.String("panic", fmt.Sprint(r)))
	}
}
