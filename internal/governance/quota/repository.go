package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the usage ledger. Windows are inclusive on both ends.
type Repository interface {
	CountMonthly(ctx context.Context, userID uuid.UUID, action Action, from, to time.Time) (int, error)
	CountDaily(ctx context.Context, id Identity, from, to time.Time) (int, error)
	CountByAction(ctx context.Context, userID uuid.UUID, from, to time.Time) (map[Action]int, error)
	Insert(ctx context.Context, rec *UsageRecord) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) CountMonthly(ctx context.Context, userID uuid.UUID, action Action, from, to time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_stats
		 WHERE user_id = $1 AND action_type = $2 AND created_at >= $3 AND created_at <= $4`,
		userID, string(action), from, to,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting monthly usage: %w", err)
	}
	return count, nil
}

// CountDaily counts every action type. Anonymous records are matched on the
// address stored in details.ip and never on an authenticated user's rows.
func (r *postgresRepository) CountDaily(ctx context.Context, id Identity, from, to time.Time) (int, error) {
	var (
		query string
		key   any
	)
	if id.UserID != nil {
		query = `SELECT COUNT(*) FROM usage_stats
		         WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3`
		key = *id.UserID
	} else {
		query = `SELECT COUNT(*) FROM usage_stats
		         WHERE user_id IS NULL AND details->>'ip' = $1 AND created_at >= $2 AND created_at <= $3`
		key = id.IP
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, key, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting daily usage: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CountByAction(ctx context.Context, userID uuid.UUID, from, to time.Time) (map[Action]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT action_type, COUNT(*) FROM usage_stats
		 WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		 GROUP BY action_type`,
		userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("counting usage by action: %w", err)
	}
	defer rows.Close()

	counts := make(map[Action]int)
	for rows.Next() {
		var (
			action string
			count  int
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("scanning usage count: %w", err)
		}
		counts[Action(action)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage counts: %w", err)
	}
	return counts, nil
}

func (r *postgresRepository) Insert(ctx context.Context, rec *UsageRecord) error {
	details := rec.Details
	if details == nil {
		details = map[string]any{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshaling usage details: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO usage_stats (user_id, action_type, details, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		rec.UserID, string(rec.Action), data, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}
