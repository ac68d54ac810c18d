package controller

import (
	"context"
	"fmt"

	"github.com/Nystya/txgroup/repository/messaging"
	"github.com/Nystya/txgroup/service"
	"github.com/golang/protobuf/ptypes/empty"
	"go.uber.org/zap"
)

// NotifyServer receives notifications on behalf of the units hosted by this
// process and answers with an OK or a failed response carrying the cause.
type NotifyServer struct {
	participant service.Participant
	logger      *zap.Logger
}

func NewNotifyServer(participant service.Participant, logger *zap.Logger) *NotifyServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotifyServer{
		participant: participant,
		logger:      logger,
	}
}

func (n *NotifyServer) Request(ctx context.Context, msg *messaging.MessageDto) (*messaging.MessageDto, error) {
	if msg.Action != messaging.ActionNotifyUnit {
		return nil, fmt.Errorf("unsupported action %q", msg.Action)
	}

	params, err := messaging.NotifyUnitParams(msg)
	if err != nil {
		return nil, err
	}

	n.logger.Debug("notify unit received",
		zap.String("group_id", params.GroupID), zap.String("unit_id", params.UnitID), zap.Stringer("state", params.State))

	if err := n.participant.ApplyOutcome(ctx, params); err != nil {
		return messaging.FailedResponse(params.GroupID, service.CauseOf(err))
	}

	return messaging.OKResponse(params.GroupID), nil
}

func (n *NotifyServer) Ping(_ context.Context, in *empty.Empty) (*empty.Empty, error) {
	return in, nil
}
