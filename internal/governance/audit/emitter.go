package audit

import (
	"context"
	"log/slog"
	"time"

	inats "github.com/textgate/textgate/internal/nats"
)

const publishTimeout = 2 * time.Second

// Publisher is satisfied by *nats.Publisher.
type Publisher interface {
	PublishAuditEvent(ctx context.Context, event inats.AuditEvent) error
}

// Emitter sends audit events without ever failing the calling request.
// A nil Emitter, or one without a publisher, drops events.
type Emitter struct {
	pub Publisher
	now func() time.Time
}

func NewEmitter(pub Publisher) *Emitter {
	return &Emitter{pub: pub, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, event inats.AuditEvent) {
	if e == nil || e.pub == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = inats.SeverityInfo
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.pub.PublishAuditEvent(ctx, event); err != nil {
		slog.Warn("publishing audit event", "event_type", event.EventType, "error", err)
	}
}
