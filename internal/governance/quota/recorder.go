package quota

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/governance/audit"
	"github.com/textgate/textgate/internal/metrics"
	inats "github.com/textgate/textgate/internal/nats"
)

// Entry describes one successful metered action.
type Entry struct {
	UserID  *uuid.UUID
	Action  Action
	IP      string
	Details map[string]any
}

// Recorder appends usage records after a metered action succeeds.
type Recorder struct {
	repo   Repository
	clock  clock.Clock
	events *audit.Emitter
}

func NewRecorder(repo Repository, clk clock.Clock, events *audit.Emitter) *Recorder {
	if clk == nil {
		clk = clock.System()
	}
	return &Recorder{repo: repo, clock: clk, events: events}
}

// Record writes one usage row. A failure is logged, counted and published
// as an audit event before being returned; callers are expected to discard
// it so the already completed action is not failed.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	if e.IP != "" {
		details["ip"] = e.IP
	}

	rec := &UsageRecord{
		UserID:    e.UserID,
		Action:    e.Action,
		Details:   details,
		CreatedAt: r.clock.Now(),
	}
	if err := r.repo.Insert(ctx, rec); err != nil {
		metrics.UsageRecordsTotal.WithLabelValues(string(e.Action), "failed").Inc()
		slog.Error("recording usage", "action", e.Action, "user_id", e.UserID, "ip", e.IP, "error", err)
		r.events.Emit(ctx, inats.AuditEvent{
			OwnerUserID:  e.UserID,
			EventType:    inats.EventUsageRecordFailed,
			Severity:     inats.SeverityError,
			ResourceType: "usage",
			ResourceID:   string(e.Action),
			Details:      map[string]any{"error": err.Error()},
			IPAddress:    e.IP,
		})
		return err
	}

	metrics.UsageRecordsTotal.WithLabelValues(string(e.Action), "ok").Inc()
	return nil
}
