package quota

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo applies the same inclusive window filters as the SQL queries.
type memRepo struct {
	mu        sync.Mutex
	records   []UsageRecord
	err       error
	insertErr error
	counts    int
}

func (m *memRepo) add(userID *uuid.UUID, action Action, ip string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	details := map[string]any{}
	if ip != "" {
		details["ip"] = ip
	}
	m.records = append(m.records, UsageRecord{UserID: userID, Action: action, Details: details, CreatedAt: at})
}

func inWindow(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (m *memRepo) CountMonthly(_ context.Context, userID uuid.UUID, action Action, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts++
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, r := range m.records {
		if r.UserID != nil && *r.UserID == userID && r.Action == action && inWindow(r.CreatedAt, from, to) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountDaily(_ context.Context, id Identity, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts++
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, r := range m.records {
		if !inWindow(r.CreatedAt, from, to) {
			continue
		}
		switch {
		case id.UserID != nil:
			if r.UserID != nil && *r.UserID == *id.UserID {
				n++
			}
		case r.UserID == nil && r.Details["ip"] == id.IP:
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountByAction(_ context.Context, userID uuid.UUID, from, to time.Time) (map[Action]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[Action]int)
	for _, r := range m.records {
		if r.UserID != nil && *r.UserID == userID && inWindow(r.CreatedAt, from, to) {
			out[r.Action]++
		}
	}
	return out, nil
}

func (m *memRepo) Insert(_ context.Context, rec *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}
