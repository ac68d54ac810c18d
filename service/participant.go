package service

import (
	"context"
	"errors"

	"github.com/Nystya/txgroup/domain"
)

const (
	CodeUnknownUnitType = "UNKNOWN_UNIT_TYPE"
	CodeStateConflict   = "STATE_CONFLICT"
	CodeUnitFailed      = "UNIT_FAILED"
)

// Participant is the receiving side of a notification, run by processes
// hosting units.
type Participant interface {
	ApplyOutcome(ctx context.Context, params domain.NotifyUnitParams) error
	UnitState(groupID, unitID string) domain.State
}

// UnitHandler applies an outcome for one kind of unit.
type UnitHandler interface {
	Commit(ctx context.Context, groupID, unitID string) error
	Rollback(ctx context.Context, groupID, unitID string) error
}

// CauseOf converts a participant error into the wire failure cause.
func CauseOf(err error) *domain.FailureCause {
	var cause *domain.FailureCause
	if errors.As(err, &cause) {
		return cause
	}

	return &domain.FailureCause{Code: CodeUnitFailed, Message: err.Error()}
}
