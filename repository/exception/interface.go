package exception

import (
	"context"

	"github.com/Nystya/txgroup/domain"
)

// Ledger answers with the outcome a group was being driven to when a unit
// failed, or domain.StateUnknown when nothing was recorded.
type Ledger interface {
	TransactionState(ctx context.Context, groupID string) (domain.State, error)
}

type Recorder interface {
	Record(ctx context.Context, record *domain.ExceptionRecord) error
	Exceptions(ctx context.Context, groupID string) ([]*domain.ExceptionRecord, error)
}

// Store is a ledger backend. The first state recorded for a group wins.
type Store interface {
	Ledger
	Recorder

	Close() error
}
