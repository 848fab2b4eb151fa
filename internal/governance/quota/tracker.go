package quota

import (
	"context"
	"math"
	"time"

	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/users"
)

// Limits are the free-tier ceilings. Monthly ceilings are per action type;
// the daily ceiling spans all action types for every caller.
type Limits struct {
	Monthly  map[Action]int
	Daily    int
	Location *time.Location
}

// Tracker enforces the monthly and daily usage ceilings. Windows are
// computed from the clock on every call.
type Tracker struct {
	repo   Repository
	clock  clock.Clock
	limits Limits
}

func NewTracker(repo Repository, clk clock.Clock, limits Limits) *Tracker {
	if clk == nil {
		clk = clock.System()
	}
	if limits.Location == nil {
		limits.Location = time.Local
	}
	return &Tracker{repo: repo, clock: clk, limits: limits}
}

// Ceiling returns the configured monthly ceiling for action, or 0 when the
// action is not metered.
func (t *Tracker) Ceiling(action Action) int {
	return t.limits.Monthly[action]
}

// CheckMonthly allows paid tiers without touching the store. For free users
// it counts this month's records of action and denies once count reaches
// ceiling. Nothing is written; the caller records after the action succeeds.
func (t *Tracker) CheckMonthly(ctx context.Context, user *users.User, action Action, ceiling int) (MonthlyResult, error) {
	if user.Tier.Paid() {
		return MonthlyResult{Allowed: true, Exempt: true, Ceiling: Unlimited}, nil
	}

	now := t.clock.Now()
	from := clock.StartOfMonth(now, t.limits.Location)

	count, err := t.repo.CountMonthly(ctx, user.ID, action, from, now)
	if err != nil {
		return MonthlyResult{}, err
	}
	return MonthlyResult{
		Allowed: count < ceiling,
		Count:   count,
		Ceiling: ceiling,
	}, nil
}

// CheckDaily counts every record attributed to id since local midnight.
func (t *Tracker) CheckDaily(ctx context.Context, id Identity) (DailyResult, error) {
	now := t.clock.Now()
	from := clock.StartOfDay(now, t.limits.Location)

	count, err := t.repo.CountDaily(ctx, id, from, now)
	if err != nil {
		return DailyResult{}, err
	}
	return DailyResult{
		Allowed: count < t.limits.Daily,
		Count:   count,
		Ceiling: t.limits.Daily,
		ResetAt: clock.StartOfNextDay(now, t.limits.Location),
	}, nil
}

// Summary reports the user's usage in the current month against each
// configured ceiling.
func (t *Tracker) Summary(ctx context.Context, user *users.User) (*Summary, error) {
	now := t.clock.Now()
	from := clock.StartOfMonth(now, t.limits.Location)
	reset := clock.StartOfNextMonth(now, t.limits.Location)

	counts, err := t.repo.CountByAction(ctx, user.ID, from, now)
	if err != nil {
		return nil, err
	}
	daily, err := t.CheckDaily(ctx, Identity{UserID: &user.ID})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Month:          from.Format("2006-01"),
		CurrentUsage:   make(map[Action]int, len(t.limits.Monthly)),
		Limits:         make(map[Action]int, len(t.limits.Monthly)),
		Remaining:      make(map[Action]int, len(t.limits.Monthly)),
		DailyUsage:     daily.Count,
		DailyLimit:     daily.Ceiling,
		ResetDate:      reset,
		DaysUntilReset: int(math.Ceil(reset.Sub(now).Hours() / 24)),
	}
	for action, ceiling := range t.limits.Monthly {
		used := counts[action]
		s.CurrentUsage[action] = used
		if user.Tier.Paid() {
			s.Limits[action] = Unlimited
			s.Remaining[action] = Unlimited
			continue
		}
		s.Limits[action] = ceiling
		s.Remaining[action] = max(ceiling-used, 0)
	}
	return s, nil
}

func userIdentity(user *users.User, ip string) Identity {
	if user == nil {
		return Identity{IP: ip}
	}
	id := user.ID
	return Identity{UserID: &id, IP: ip}
}
