package quota

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Action is a metered operation type, stored as usage_stats.action_type.
type Action string

const (
	ActionSummary     Action = "summary"
	ActionTranslation Action = "translation"
)

var (
	ErrMonthlyQuotaExceeded = errors.New("monthly quota exceeded")
	ErrDailyQuotaExceeded   = errors.New("daily quota exceeded")
)

// Unlimited is reported as the limit and remaining count for exempt tiers.
const Unlimited = -1

// Identity is whoever a usage record is attributed to: the user when
// authenticated, otherwise the caller's network address.
type Identity struct {
	UserID *uuid.UUID
	IP     string
}

func (i Identity) Anonymous() bool {
	return i.UserID == nil
}

// Key identifies the caller for per-identity serialization.
func (i Identity) Key() string {
	if i.UserID != nil {
		return "user:" + i.UserID.String()
	}
	return "ip:" + i.IP
}

// UsageRecord matches the usage_stats table schema.
type UsageRecord struct {
	ID        int64
	UserID    *uuid.UUID
	Action    Action
	Details   map[string]any
	CreatedAt time.Time
}

// MonthlyResult is the outcome of CheckMonthly. Count is the number of
// records already in the window, before the action being checked.
type MonthlyResult struct {
	Allowed bool
	Exempt  bool
	Count   int
	Ceiling int
}

// Remaining is the number of actions left after the checked one, or
// Unlimited for exempt tiers.
func (m MonthlyResult) Remaining() int {
	if m.Exempt {
		return Unlimited
	}
	return max(m.Ceiling-m.Count-1, 0)
}

// DailyResult is the outcome of CheckDaily. ResetAt is the next local
// midnight.
type DailyResult struct {
	Allowed bool
	Count   int
	Ceiling int
	ResetAt time.Time
}

// Usage is the pre-check snapshot a metered handler can read from its
// request context.
type Usage struct {
	Action   Action
	Identity Identity
	Monthly  *MonthlyResult
	Daily    DailyResult
}

// Summary is the per-user view served by the usage endpoint.
type Summary struct {
	Month          string         `json:"month"`
	CurrentUsage   map[Action]int `json:"current_usage"`
	Limits         map[Action]int `json:"limits"`
	Remaining      map[Action]int `json:"remaining"`
	DailyUsage     int            `json:"daily_usage"`
	DailyLimit     int            `json:"daily_limit"`
	ResetDate      time.Time      `json:"reset_date"`
	DaysUntilReset int            `json:"days_until_reset"`
}
