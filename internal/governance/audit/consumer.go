package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/textgate/textgate/internal/nats"
)

const consumerName = "audit-persister"

// ConsumerSource is satisfied by *nats.Client.
type ConsumerSource interface {
	EnsureConsumer(ctx context.Context, stream, name, filterSubject string) (jetstream.Consumer, error)
}

// Inserter persists audit rows.
type Inserter interface {
	Insert(ctx context.Context, log *Record) error
}

// Consumer listens on the audit subject and persists entries to the database.
type Consumer struct {
	store  Inserter
	source ConsumerSource
}

func NewConsumer(store Inserter, source ConsumerSource) *Consumer {
	return &Consumer{store: store, source: source}
}

// Start runs the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.source.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectAuditEvent)
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg.Data(), msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

type acker interface {
	Ack() error
	Nak() error
	Term() error
}

func (c *Consumer) handle(ctx context.Context, data []byte, msg acker) {
	var event inats.AuditEvent
	if err := json.Unmarshal(data, &event); err != nil {
		// Redelivery cannot fix a malformed payload.
		slog.Error("audit consumer: unmarshaling event", "error", err)
		_ = msg.Term()
		return
	}

	log := eventToRecord(event)
	if err := c.store.Insert(ctx, log); err != nil {
		slog.Error("audit consumer: persisting audit log", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("audit consumer: persisted event",
		"event_type", event.EventType,
		"owner", event.OwnerUserID,
		"resource_id", event.ResourceID,
	)
}

func eventToRecord(event inats.AuditEvent) *Record {
	log := &Record{
		ID:           uuid.New(),
		OwnerUserID:  event.OwnerUserID,
		EventType:    event.EventType,
		Severity:     event.Severity,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		IPAddress:    event.IPAddress,
		CreatedAt:    event.Timestamp,
	}
	if len(event.Details) > 0 {
		if data, err := json.Marshal(event.Details); err == nil {
			log.Details = data
		}
	}
	return log
}
