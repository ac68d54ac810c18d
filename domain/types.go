package domain

import (
	"strconv"
	"time"
)

// State is the aggregate outcome of a transaction group. It is encoded
// numerically in the notification payload.
type State int32

const (
	StateUnknown    State = -1
	StateRolledBack State = 0
	StateCommitted  State = 1
)

func (s State) String() string {
	switch s {
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	case StateUnknown:
		return "unknown"
	default:
		return strconv.Itoa(int(s))
	}
}

// Terminal reports whether s is a definitive outcome.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRolledBack
}

// TransUnit is one participant enlisted in a group.
type TransUnit struct {
	UnitID    string `json:"unitId"`
	UnitType  string `json:"unitType"`
	RemoteKey string `json:"remoteKey"`
}

func (u TransUnit) Valid() bool {
	return u.UnitID != "" && u.RemoteKey != ""
}

// NotifyUnitParams is the payload sent to a unit when its group completes.
type NotifyUnitParams struct {
	GroupID  string `json:"groupId"`
	UnitID   string `json:"unitId"`
	UnitType string `json:"unitType"`
	State    State  `json:"state"`
}

// FailureCause is the structured reason a participant returns when it
// could not apply the requested state.
type FailureCause struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}

func (c *FailureCause) Error() string {
	if c.Code == "" {
		return c.Message
	}

	return c.Code + ": " + c.Message
}

type OutcomeKind int

const (
	OutcomeAck OutcomeKind = iota
	OutcomeRejected
	OutcomeTransportFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAck:
		return "ack"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// NotificationOutcome is the result of a single notification attempt.
// Cause is set only for OutcomeRejected, Err only for OutcomeTransportFailure.
type NotificationOutcome struct {
	Kind  OutcomeKind
	Cause *FailureCause
	Err   error
}

func Ack() NotificationOutcome {
	return NotificationOutcome{Kind: OutcomeAck}
}

func Rejected(cause *FailureCause) NotificationOutcome {
	return NotificationOutcome{Kind: OutcomeRejected, Cause: cause}
}

func TransportFailure(err error) NotificationOutcome {
	return NotificationOutcome{Kind: OutcomeTransportFailure, Err: err}
}

type ExceptionKind string

const (
	ExceptionBusiness      ExceptionKind = "business"
	ExceptionCommunication ExceptionKind = "communication"
)

// ExceptionRecord is a unit-level notification failure kept by the ledger.
type ExceptionRecord struct {
	ID        string        `json:"id"`
	GroupID   string        `json:"groupId"`
	UnitID    string        `json:"unitId"`
	UnitType  string        `json:"unitType"`
	RemoteKey string        `json:"remoteKey"`
	State     State         `json:"state"`
	Kind      ExceptionKind `json:"kind"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"createdAt"`
}
