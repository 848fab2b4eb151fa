//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/textgate/textgate/internal/nats"
	"github.com/textgate/textgate/internal/testutil"
)

func seedOwner(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash, name) VALUES ($1, $2, 'x', 'Owner')`,
		id, id.String()+"@example.com")
	require.NoError(t, err)
	return id
}

func TestRepository_ListByOwner(t *testing.T) {
	pool := testutil.StartPostgres(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	owner := seedOwner(t, pool)
	other := seedOwner(t, pool)
	base := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	for i, eventType := range []string{inats.EventTierDenied, inats.EventMonthlyQuotaDenied, inats.EventMonthlyQuotaDenied} {
		require.NoError(t, repo.Insert(ctx, &Record{
			OwnerUserID: &owner,
			EventType:   eventType,
			Severity:    inats.SeverityInfo,
			Details:     json.RawMessage(`{"limit":10}`),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, repo.Insert(ctx, &Record{OwnerUserID: &other, EventType: inats.EventTierDenied, Severity: inats.SeverityInfo}))

	logs, total, err := repo.ListByOwner(ctx, owner, NewFilter())
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 3)
	assert.True(t, logs[0].CreatedAt.After(logs[1].CreatedAt), "newest first")
	assert.Empty(t, logs[0].ResourceType)
	assert.JSONEq(t, `{"limit":10}`, string(logs[0].Details))

	params := NewFilter()
	params.EventType = inats.EventMonthlyQuotaDenied
	params.PageSize = 1
	logs, total, err = repo.ListByOwner(ctx, owner, params)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, logs, 1)

	from := base.Add(90 * time.Second)
	params = NewFilter()
	params.From = &from
	_, total, err = repo.ListByOwner(ctx, owner, params)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestAuditPipeline_EmitToPostgres(t *testing.T) {
	pool := testutil.StartPostgres(t)
	nc := testutil.StartNATS(t)
	repo := NewRepository(pool)
	owner := seedOwner(t, pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewConsumer(repo, nc)
	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	emitter := NewEmitter(inats.NewPublisher(nc.JetStream()))
	emitter.Emit(ctx, inats.AuditEvent{
		OwnerUserID:  &owner,
		EventType:    inats.EventDailyQuotaDenied,
		ResourceType: "quota",
		ResourceID:   "summary",
		Details:      map[string]any{"current": 50, "limit": 50},
		IPAddress:    "203.0.113.7",
	})

	require.Eventually(t, func() bool {
		_, total, err := repo.ListByOwner(ctx, owner, NewFilter())
		return err == nil && total == 1
	}, 15*time.Second, 200*time.Millisecond)

	logs, _, err := repo.ListByOwner(ctx, owner, NewFilter())
	require.NoError(t, err)
	assert.Equal(t, inats.EventDailyQuotaDenied, logs[0].EventType)
	assert.Equal(t, inats.SeverityInfo, logs[0].Severity)
	assert.Equal(t, "203.0.113.7", logs[0].IPAddress)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
