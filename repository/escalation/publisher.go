package escalation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Nystya/txgroup/domain"
	"github.com/segmentio/kafka-go"
)

// CompensationEvent asks operators (or an automated compensator) to finish
// a unit the coordinator could not notify.
type CompensationEvent struct {
	ID        string               `json:"id"`
	Kind      domain.ExceptionKind `json:"kind"`
	GroupID   string               `json:"groupId"`
	UnitID    string               `json:"unitId"`
	UnitType  string               `json:"unitType"`
	RemoteKey string               `json:"remoteKey"`
	State     domain.State         `json:"state"`
	Reason    string               `json:"reason"`
	At        time.Time            `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event CompensationEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, CompensationEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by group id so a group's events stay
// on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

func ParseBrokers(brokersCSV string) []string {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}

	return brokers
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			MaxAttempts:            3,
			WriteTimeout:           2 * time.Second,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, event CompensationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return domain.SerializationError{Err: err}
	}

	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.GroupID), Value: data, Time: event.At})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}
