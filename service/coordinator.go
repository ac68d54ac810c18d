package service

import (
	"context"

	"github.com/Nystya/txgroup/domain"
)

// TransactionUnit is what a participant supplies when it enlists.
// MessageContextID is the transport key of the hosting process.
type TransactionUnit struct {
	UnitID           string
	UnitType         string
	MessageContextID string
}

// TransactionManager drives a group of units to one outcome.
type TransactionManager interface {
	Begin(ctx context.Context, groupID string) error
	Join(ctx context.Context, groupID string, unit TransactionUnit) error
	Commit(ctx context.Context, groupID string) error
	Rollback(ctx context.Context, groupID string) error
	Close(ctx context.Context, groupID string) error

	TransactionState(ctx context.Context, groupID string) domain.State
}

// NotificationClient sends one notification and never returns an error:
// failures are reported in the outcome.
type NotificationClient interface {
	Notify(ctx context.Context, remoteKey string, params domain.NotifyUnitParams) domain.NotificationOutcome
}
