package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_Hash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("my-password")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "my-password", hash)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestPasswordHasher_Compare(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	hash, _ := h.Hash("my-password")

	t.Run("correct password", func(t *testing.T) {
		assert.NoError(t, h.Compare(hash, "my-password"))
	})

	t.Run("wrong password", func(t *testing.T) {
		assert.ErrorIs(t, h.Compare(hash, "wrong-password"), ErrPasswordMismatch)
	})

	t.Run("corrupt hash", func(t *testing.T) {
		err := h.Compare("not-a-bcrypt-hash", "my-password")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrPasswordMismatch)
	})
}

func TestNewPasswordHasher_OutOfRangeCost(t *testing.T) {
	assert.Equal(t, DefaultHashCost, NewPasswordHasher(0).cost)
	assert.Equal(t, DefaultHashCost, NewPasswordHasher(bcrypt.MaxCost+1).cost)
}
