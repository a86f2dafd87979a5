package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/devalaya/temple-darshan/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects. Dashboard socket gateways subscribe to counter.changed;
// the admission controller never calls them directly.
const (
	PassBooked   = "pass.booked"
	PassCanceled = "pass.canceled"

	EntryRecorded = "gate.entry.recorded"
	ExitRecorded  = "gate.exit.recorded"

	CounterChanged    = "counter.changed"
	CounterReconciled = "counter.reconciled"

	CapacityAlert = "capacity.alert"
)

// Event payloads
type PassBookedEvent struct {
	TempleID  int64     `json:"temple_id"`
	PassID    string    `json:"pass_id"`
	Date      string    `json:"date"`
	Slot      string    `json:"slot"`
	Visitors  int       `json:"visitors"`
	Remaining int       `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
}

type PassCanceledEvent struct {
	TempleID   int64     `json:"temple_id"`
	PassID     string    `json:"pass_id"`
	Reason     string    `json:"reason"`
	CanceledAt time.Time `json:"canceled_at"`
}

type EntryRecordedEvent struct {
	TempleID   int64     `json:"temple_id"`
	PassID     string    `json:"pass_id"`
	Visitors   int       `json:"visitors"`
	LiveCount  int64     `json:"live_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ExitRecordedEvent struct {
	TempleID   int64     `json:"temple_id"`
	PassID     string    `json:"pass_id"`
	Visitors   int       `json:"visitors"`
	LiveCount  int64     `json:"live_count"`
	RecordedAt time.Time `json:"recorded_at"`
}

type CounterChangedEvent struct {
	TempleID      int64     `json:"temple_id"`
	LiveCount     int64     `json:"live_count"`
	Percentage    float64   `json:"capacity_percentage"`
	TrafficStatus string    `json:"traffic_status"`
	ChangedAt     time.Time `json:"changed_at"`
}

type CounterReconciledEvent struct {
	TempleID      int64     `json:"temple_id"`
	Previous      int64     `json:"previous"`
	Authoritative int64     `json:"authoritative"`
	Trigger       string    `json:"trigger"`
	ReconciledAt  time.Time `json:"reconciled_at"`
}

type CapacityAlertEvent struct {
	TempleID   int64     `json:"temple_id"`
	Level      string    `json:"level"`
	Percentage float64   `json:"capacity_percentage"`
	LiveCount  int64     `json:"live_count"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raised_at"`
}
