package messaging

import (
	"bytes"
	"encoding/json"

	"github.com/Nystya/txgroup/domain"
)

const (
	ActionNotifyUnit = "notify-unit"
)

const (
	StateRequest = 100
	StateOK      = 200
	StateFailed  = 500
)

// MessageDto is the envelope exchanged with participants.
type MessageDto struct {
	Action  string `json:"action"`
	GroupID string `json:"groupId"`
	State   int    `json:"state"`
	Data    []byte `json:"data,omitempty"`
}

func StatusOK(msg *MessageDto) bool {
	return msg != nil && msg.State == StateOK
}

func NotifyUnit(params domain.NotifyUnitParams) (*MessageDto, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, domain.SerializationError{Err: err}
	}

	return &MessageDto{
		Action:  ActionNotifyUnit,
		GroupID: params.GroupID,
		State:   StateRequest,
		Data:    data,
	}, nil
}

func NotifyUnitParams(msg *MessageDto) (domain.NotifyUnitParams, error) {
	var params domain.NotifyUnitParams
	if err := json.Unmarshal(msg.Data, &params); err != nil {
		return params, domain.SerializationError{Err: err}
	}

	return params, nil
}

func OKResponse(groupID string) *MessageDto {
	return &MessageDto{GroupID: groupID, State: StateOK}
}

// FailedResponse carries cause in the body of a non-OK response.
func FailedResponse(groupID string, cause *domain.FailureCause) (*MessageDto, error) {
	data, err := EncodeCause(cause)
	if err != nil {
		return nil, err
	}

	return &MessageDto{GroupID: groupID, State: StateFailed, Data: data}, nil
}

func EncodeCause(cause *domain.FailureCause) ([]byte, error) {
	data, err := json.Marshal(cause)
	if err != nil {
		return nil, domain.SerializationError{Err: err}
	}

	return data, nil
}

// DecodeCause only accepts the closed FailureCause schema.
func DecodeCause(data []byte) (*domain.FailureCause, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	cause := &domain.FailureCause{}
	if err := dec.Decode(cause); err != nil {
		return nil, domain.SerializationError{Err: err}
	}

	return cause, nil
}

func encode(msg *MessageDto) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, domain.SerializationError{Err: err}
	}

	return data, nil
}

func decode(data []byte) (*MessageDto, error) {
	msg := &MessageDto{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, domain.SerializationError{Err: err}
	}

	return msg, nil
}
