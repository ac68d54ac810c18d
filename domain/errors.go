package domain

import (
	"errors"
	"fmt"
)

var ErrEmptyGroupID = errors.New("empty group id")

type DuplicateGroupError struct {
	GroupID string
}

func (e DuplicateGroupError) Error() string {
	return fmt.Sprintf("group %q already exists", e.GroupID)
}

type GroupNotFoundError struct {
	GroupID string
}

func (e GroupNotFoundError) Error() string {
	return fmt.Sprintf("group %q not found", e.GroupID)
}

type GroupJoinError struct {
	GroupID string
	UnitID  string
	Reason  string
}

func (e GroupJoinError) Error() string {
	return fmt.Sprintf("unit %q could not join group %q: %s", e.UnitID, e.GroupID, e.Reason)
}

// StateConflictError is returned when a group already holds a different outcome.
type StateConflictError struct {
	GroupID   string
	Current   State
	Requested State
}

func (e StateConflictError) Error() string {
	return fmt.Sprintf("group %q is %v, cannot set %v", e.GroupID, e.Current, e.Requested)
}

// TransactionError is the only error Join surfaces to its caller.
type TransactionError struct {
	Err error
}

func (e TransactionError) Error() string {
	return "transaction: " + e.Err.Error()
}

func (e TransactionError) Unwrap() error {
	return e.Err
}

// BusinessRejection means the participant received the notification but
// declined to apply it.
type BusinessRejection struct {
	RemoteKey string
	Cause     *FailureCause
}

func (e BusinessRejection) Error() string {
	return fmt.Sprintf("participant %s rejected notification: %v", e.RemoteKey, e.Cause)
}

// CommunicationFailure means the participant could not be reached or the
// exchange could not be encoded.
type CommunicationFailure struct {
	RemoteKey string
	Err       error
}

func (e CommunicationFailure) Error() string {
	return fmt.Sprintf("notify %s: %v", e.RemoteKey, e.Err)
}

func (e CommunicationFailure) Unwrap() error {
	return e.Err
}

type SerializationError struct {
	Err error
}

func (e SerializationError) Error() string {
	return "serialization: " + e.Err.Error()
}

func (e SerializationError) Unwrap() error {
	return e.Err
}
