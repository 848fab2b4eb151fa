package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textgate/textgate/internal/clock"
	"github.com/textgate/textgate/internal/users"
)

func newTracker(repo Repository, clk clock.Clock) *Tracker {
	return NewTracker(repo, clk, Limits{
		Monthly:  map[Action]int{ActionSummary: 10, ActionTranslation: 15},
		Daily:    50,
		Location: time.UTC,
	})
}

func freeUser() *users.User {
	return &users.User{ID: uuid.New(), Tier: users.TierFree}
}

func TestCheckMonthly_PaidTiersAreExempt(t *testing.T) {
	repo := &memRepo{}
	tracker := newTracker(repo, clock.NewManual(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)))

	for _, tier := range []users.Tier{users.TierPro, users.TierPremium} {
		user := &users.User{ID: uuid.New(), Tier: tier}
		for i := 0; i < 100; i++ {
			repo.add(&user.ID, ActionSummary, "", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
		}

		res, err := tracker.CheckMonthly(context.Background(), user, ActionSummary, 10)
		require.NoError(t, err)
		assert.True(t, res.Allowed, tier)
		assert.True(t, res.Exempt)
		assert.Equal(t, Unlimited, res.Remaining())
	}
	assert.Zero(t, repo.counts, "exempt tiers never query the ledger")
}

func TestCheckMonthly_CeilingScenario(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC))
	repo := &memRepo{}
	tracker := newTracker(repo, clk)
	recorder := NewRecorder(repo, clk, nil)
	user := freeUser()

	for i := 0; i < 9; i++ {
		repo.add(&user.ID, ActionTranslation, "", time.Date(2026, 5, 2+i, 9, 0, 0, 0, time.UTC))
	}

	res, err := tracker.CheckMonthly(ctx, user, ActionTranslation, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Count)
	assert.Equal(t, 0, res.Remaining())

	require.NoError(t, recorder.Record(ctx, Entry{UserID: &user.ID, Action: ActionTranslation}))

	res, err = tracker.CheckMonthly(ctx, user, ActionTranslation, 10)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 10, res.Count)
	assert.Equal(t, 10, res.Ceiling)
}

func TestCheckMonthly_CountsOnlyTheAction(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC))
	repo := &memRepo{}
	user := freeUser()
	for i := 0; i < 10; i++ {
		repo.add(&user.ID, ActionSummary, "", time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC))
	}

	res, err := newTracker(repo, clk).CheckMonthly(context.Background(), user, ActionTranslation, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.Count)
}

func TestCheckMonthly_RollsOverWithTheMonth(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC))
	repo := &memRepo{}
	tracker := newTracker(repo, clk)
	user := freeUser()
	for i := 0; i < 10; i++ {
		repo.add(&user.ID, ActionSummary, "", time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC))
	}

	res, err := tracker.CheckMonthly(ctx, user, ActionSummary, 10)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	clk.Advance(time.Second)

	res, err = tracker.CheckMonthly(ctx, user, ActionSummary, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.Count)
}

func TestCheckDaily_MidnightBoundary(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+3", 3*60*60)

	clk := clock.NewManual(time.Date(2026, 5, 21, 0, 0, 5, 0, loc))
	repo := &memRepo{}
	tracker := NewTracker(repo, clk, Limits{Daily: 1, Location: loc})
	user := freeUser()

	repo.add(&user.ID, ActionSummary, "", time.Date(2026, 5, 20, 23, 59, 59, 999_000_000, loc))

	res, err := tracker.CheckDaily(ctx, Identity{UserID: &user.ID})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Zero(t, res.Count)
	assert.Equal(t, time.Date(2026, 5, 22, 0, 0, 0, 0, loc), res.ResetAt)
}

func TestCheckDaily_DeniesAtCeiling(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC))
	repo := &memRepo{}
	tracker := newTracker(repo, clk)
	user := freeUser()

	for i := 0; i < 25; i++ {
		repo.add(&user.ID, ActionSummary, "", time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC))
		repo.add(&user.ID, ActionTranslation, "", time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC))
	}

	res, err := tracker.CheckDaily(ctx, Identity{UserID: &user.ID})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 50, res.Count)
	assert.Equal(t, time.Date(2026, 5, 21, 0, 0, 0, 0, time.UTC), res.ResetAt)

	monthly, err := tracker.CheckMonthly(ctx, user, ActionTranslation, 15)
	require.NoError(t, err)
	assert.False(t, monthly.Allowed, "25 translations also exceed the monthly ceiling")
}

func TestCheckDaily_AnonymousByAddress(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC))
	repo := &memRepo{}
	tracker := NewTracker(repo, clk, Limits{Daily: 2, Location: time.UTC})
	user := freeUser()

	at := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	repo.add(nil, ActionTranslation, "10.0.0.1", at)
	repo.add(nil, ActionTranslation, "10.0.0.1", at)
	repo.add(nil, ActionTranslation, "10.0.0.2", at)
	repo.add(&user.ID, ActionTranslation, "10.0.0.3", at)
	repo.add(&user.ID, ActionTranslation, "10.0.0.3", at)

	res, err := tracker.CheckDaily(ctx, Identity{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = tracker.CheckDaily(ctx, Identity{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = tracker.CheckDaily(ctx, Identity{IP: "10.0.0.3"})
	require.NoError(t, err)
	assert.True(t, res.Allowed, "authenticated rows do not count against the address")
}

func TestCheck_StoreFailureIsReturned(t *testing.T) {
	repo := &memRepo{err: errors.New("connection refused")}
	tracker := newTracker(repo, clock.NewManual(time.Now()))

	_, err := tracker.CheckMonthly(context.Background(), freeUser(), ActionSummary, 10)
	assert.ErrorContains(t, err, "connection refused")

	_, err = tracker.CheckDaily(context.Background(), Identity{IP: "10.0.0.1"})
	assert.ErrorContains(t, err, "connection refused")
}

func TestSummary(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC))
	repo := &memRepo{}
	tracker := newTracker(repo, clk)
	user := freeUser()
	for i := 0; i < 12; i++ {
		repo.add(&user.ID, ActionSummary, "", time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC))
	}
	repo.add(&user.ID, ActionTranslation, "", time.Date(2026, 2, 10, 1, 0, 0, 0, time.UTC))
	repo.add(&user.ID, ActionTranslation, "", time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC))

	s, err := tracker.Summary(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "2026-02", s.Month)
	assert.Equal(t, 12, s.CurrentUsage[ActionSummary])
	assert.Equal(t, 1, s.CurrentUsage[ActionTranslation])
	assert.Equal(t, 10, s.Limits[ActionSummary])
	assert.Equal(t, 0, s.Remaining[ActionSummary])
	assert.Equal(t, 14, s.Remaining[ActionTranslation])
	assert.Equal(t, 1, s.DailyUsage)
	assert.Equal(t, 50, s.DailyLimit)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), s.ResetDate)
	assert.Equal(t, 19, s.DaysUntilReset)

	user.Tier = users.TierPremium
	s, err = tracker.Summary(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, Unlimited, s.Limits[ActionSummary])
	assert.Equal(t, Unlimited, s.Remaining[ActionTranslation])
	assert.Equal(t, 12, s.CurrentUsage[ActionSummary])
}
