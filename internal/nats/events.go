package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

const StreamEvents = "TEXTGATE_EVENTS"

const SubjectAuditEvent = "textgate.events.audit"

// Audit event types.
const (
	EventTierDenied          = "tier_denied"
	EventMonthlyQuotaDenied  = "monthly_quota_denied"
	EventDailyQuotaDenied    = "daily_quota_denied"
	EventUsageRecordFailed   = "usage_record_failed"
	EventSubscriptionChanged = "subscription_changed"
	EventPasswordChanged     = "password_changed"
	EventAccountDeleted      = "account_deleted"
)

// Severity levels.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// AuditEvent is published for access-control decisions worth keeping.
// OwnerUserID is nil for anonymous callers.
type AuditEvent struct {
	OwnerUserID  *uuid.UUID     `json:"owner_user_id,omitempty"`
	EventType    string         `json:"event_type"`
	Severity     string         `json:"severity"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
