package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	MaxPageSize     = 100
)

// Record is one stored gate decision or account change: a tier or quota
// denial, a usage write that failed after the work was done, or a
// subscription, password or deletion event. OwnerUserID is nil for
// anonymous callers and for accounts that have since been deleted, in which
// case ResourceID still carries the account id.
type Record struct {
	ID           uuid.UUID       `json:"id"`
	OwnerUserID  *uuid.UUID      `json:"owner_user_id,omitempty"`
	EventType    string          `json:"event_type"`
	Severity     string          `json:"severity"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Details      json.RawMessage `json:"details,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Filter narrows a user's audit history. Empty fields match everything;
// ResourceType selects one gate ("tier", "quota") or "user" for account
// changes.
type Filter struct {
	EventType    string
	Severity     string
	ResourceType string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

func NewFilter() Filter {
	return Filter{Page: 1, PageSize: defaultPageSize}
}

// normalized resets paging values outside the accepted range.
func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > MaxPageSize {
		f.PageSize = defaultPageSize
	}
	return f
}

func (f Filter) offset() int {
	return (f.Page - 1) * f.PageSize
}
