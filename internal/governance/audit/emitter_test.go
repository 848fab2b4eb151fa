package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/textgate/textgate/internal/nats"
)

type capturePublisher struct {
	events []inats.AuditEvent
	err    error
}

func (p *capturePublisher) PublishAuditEvent(_ context.Context, event inats.AuditEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func TestEmitter_FillsDefaults(t *testing.T) {
	pub := &capturePublisher{}
	e := NewEmitter(pub)
	e.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	e.Emit(context.Background(), inats.AuditEvent{EventType: inats.EventTierDenied})

	require.Len(t, pub.events, 1)
	assert.Equal(t, inats.SeverityInfo, pub.events[0].Severity)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), pub.events[0].Timestamp)
}

func TestEmitter_PublishErrorIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("no responders")}
	assert.NotPanics(t, func() {
		NewEmitter(pub).Emit(context.Background(), inats.AuditEvent{EventType: inats.EventTierDenied})
	})
	assert.Len(t, pub.events, 1)
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.Emit(context.Background(), inats.AuditEvent{})
		NewEmitter(nil).Emit(context.Background(), inats.AuditEvent{})
	})
}

func TestEmitter_SurvivesCancelledRequest(t *testing.T) {
	pub := &capturePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewEmitter(pub).Emit(ctx, inats.AuditEvent{EventType: inats.EventDailyQuotaDenied})
	assert.Len(t, pub.events, 1)
}
