// Package events publishes signature lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	TypeSent      = "signature.sent"
	TypeSigned    = "signature.signed"
	TypeExpired   = "signature.expired"
	TypeCancelled = "signature.cancelled"
)

// Event describes a state change of an order's signature request.
type Event struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	OrderID         uint      `json:"order_id"`
	OrderName       string    `json:"order_name"`
	TransactionUUID string    `json:"transaction_uuid"`
	Status          string    `json:"status"`
	Recipient       string    `json:"recipient,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// New fills the id of an event.
func New(typ string, orderID uint, orderName, transactionUUID, status string, at time.Time) Event {
	return Event{
		ID:              uuid.NewString(),
		Type:            typ,
		OrderID:         orderID,
		OrderName:       orderName,
		TransactionUUID: transactionUUID,
		Status:          status,
		OccurredAt:      at.UTC(),
	}
}

// Publisher delivers events to interested systems.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// KafkaPublisher writes events to a Kafka topic keyed by order id, so that
// the events of one order stay ordered.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Message encodes an event as a Kafka message.
func Message(e Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(e.OrderID), 10)),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}
