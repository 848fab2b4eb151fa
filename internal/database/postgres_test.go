package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(context.Background(), pingFunc(func(context.Context) error { return nil })))

	down := errors.New("connection refused")
	assert.ErrorIs(t, Check(context.Background(), pingFunc(func(context.Context) error { return down })), down)

	err := Check(context.Background(), pingFunc(func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, time.Second)
		return nil
	}))
	assert.NoError(t, err)
}
