package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchByValue(t *testing.T) {
	cause := errors.New("connection reset")

	errs := []error{
		DuplicateGroupError{GroupID: "g1"},
		GroupNotFoundError{GroupID: "g1"},
		GroupJoinError{GroupID: "g1", UnitID: "u1", Reason: "group not found"},
		StateConflictError{GroupID: "g1", Current: StateCommitted, Requested: StateRolledBack},
		TransactionError{Err: cause},
		BusinessRejection{RemoteKey: "r1", Cause: &FailureCause{Code: "E1"}},
		CommunicationFailure{RemoteKey: "r1", Err: cause},
		SerializationError{Err: cause},
	}

	for _, err := range errs {
		wrapped := fmt.Errorf("outer: %w", err)

		var matched bool
		switch err.(type) {
		case DuplicateGroupError:
			var target DuplicateGroupError
			matched = errors.As(wrapped, &target)
		case GroupNotFoundError:
			var target GroupNotFoundError
			matched = errors.As(wrapped, &target)
		case GroupJoinError:
			var target GroupJoinError
			matched = errors.As(wrapped, &target)
		case StateConflictError:
			var target StateConflictError
			matched = errors.As(wrapped, &target)
		case TransactionError:
			var target TransactionError
			matched = errors.As(wrapped, &target)
		case BusinessRejection:
			var target BusinessRejection
			matched = errors.As(wrapped, &target)
		case CommunicationFailure:
			var target CommunicationFailure
			matched = errors.As(wrapped, &target)
		case SerializationError:
			var target SerializationError
			matched = errors.As(wrapped, &target)
		}

		assert.True(t, matched, "%T", err)
	}
}

func TestWrappingErrorsUnwrap(t *testing.T) {
	cause := errors.New("connection reset")

	assert.ErrorIs(t, TransactionError{Err: cause}, cause)
	assert.ErrorIs(t, CommunicationFailure{RemoteKey: "r1", Err: cause}, cause)
	assert.ErrorIs(t, SerializationError{Err: cause}, cause)
}
