// Package events publishes purchase order lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
	"github.com/andresuchdata/autopo-replenish/internal/metrics"
)

type Type string

const (
	PurchaseOrderCreated   Type = "purchase_order.created"
	PurchaseOrderApproved  Type = "purchase_order.approved"
	PurchaseOrderCancelled Type = "purchase_order.cancelled"
	PurchaseOrderReceived  Type = "purchase_order.received"
)

// Event is the message published for every lifecycle change.
type Event struct {
	Type       Type            `json:"type"`
	OrderID    string          `json:"order_id"`
	SupplierID string          `json:"supplier_id"`
	Status     domain.POStatus `json:"status"`
	Version    int64           `json:"version"`
	TotalCost  string          `json:"total_cost"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// FromOrder builds the event of type t for po.
func FromOrder(t Type, po *domain.PurchaseOrder, at time.Time) Event {
	return Event{
		Type:       t,
		OrderID:    po.ID,
		SupplierID: po.SupplierID,
		Status:     po.Status,
		Version:    po.Version,
		TotalCost:  po.TotalCost.StringFixed(2),
		Reason:     po.CancelReason,
		OccurredAt: at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// publishTimeout bounds the part of Publish that still talks to the cluster,
// the partition metadata lookup.
const publishTimeout = 2 * time.Second

// KafkaPublisher writes events keyed by order so that the events of one order
// land on one partition in order. Writes are asynchronous: Publish only
// queues the messages and delivery failures are logged and counted once the
// batch completes. Close flushes what is queued.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	p := &KafkaPublisher{}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *KafkaPublisher) completed(msgs []kafka.Message, err error) {
	if err == nil {
		log.Debug().Int("count", len(msgs)).Str("topic", p.writer.Topic).Msg("delivered purchase order events")
		return
	}
	metrics.SideChannelFailuresTotal.WithLabelValues("events").Add(float64(len(msgs)))
	log.Warn().Err(err).Int("count", len(msgs)).Str("topic", p.writer.Topic).Msg("Failed to deliver purchase order events")
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte("purchase-order-" + e.OrderID),
			Value: payload,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Type)},
			},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write messages to kafka: %w", err)
	}

	log.Debug().Int("count", len(events)).Str("topic", p.writer.Topic).Msg("queued purchase order events")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NoopPublisher) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, events ...Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
