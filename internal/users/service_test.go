package users

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[uuid.UUID]*User)}
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, err := m.GetByEmail(ctx, email)
	return u != nil, err
}

func (m *memRepo) UpdateTier(_ context.Context, id uuid.UUID, tier Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Tier = tier
	return nil
}

func (m *memRepo) UpdateProfile(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	for id, u := range m.users {
		if id != user.ID && u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func TestParseTier(t *testing.T) {
	for _, s := range []string{"free", "pro", "premium"} {
		tier, err := ParseTier(s)
		require.NoError(t, err)
		assert.Equal(t, Tier(s), tier)
	}

	_, err := ParseTier("enterprise")
	assert.Error(t, err)
}

func TestTier_Paid(t *testing.T) {
	assert.False(t, TierFree.Paid())
	assert.True(t, TierPro.Paid())
	assert.True(t, TierPremium.Paid())
}

func TestService_Create(t *testing.T) {
	svc := NewService(newMemRepo())

	user, err := svc.Create(context.Background(), "a@example.com", "Amal", "", "hash")
	require.NoError(t, err)
	assert.Equal(t, TierFree, user.Tier)
	assert.Equal(t, "ar", user.LanguagePreference)
	assert.NotEqual(t, uuid.Nil, user.ID)

	exists, err := svc.ExistsByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_UpgradeDowngrade(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, "b@example.com", "Badr", "en", "hash")
	require.NoError(t, err)

	t.Run("downgrade of free user is rejected", func(t *testing.T) {
		_, err := svc.Downgrade(ctx, user)
		assert.ErrorIs(t, err, ErrAlreadyFree)
	})

	upgraded, err := svc.Upgrade(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, TierPremium, upgraded.Tier)
	assert.Equal(t, TierFree, user.Tier, "input snapshot must not change")

	stored, _ := repo.GetByID(ctx, user.ID)
	assert.Equal(t, TierPremium, stored.Tier)

	t.Run("upgrade of premium user is rejected", func(t *testing.T) {
		_, err := svc.Upgrade(ctx, upgraded)
		assert.ErrorIs(t, err, ErrAlreadyPremium)
	})

	downgraded, err := svc.Downgrade(ctx, upgraded)
	require.NoError(t, err)
	assert.Equal(t, TierFree, downgraded.Tier)
}

func TestService_UpdateProfile(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, "c@example.com", "Chadi", "ar", "hash")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "taken@example.com", "Dina", "ar", "hash")
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, user, ProfileChanges{Name: "Chadi K", LanguagePreference: "fr"})
	require.NoError(t, err)
	assert.Equal(t, "Chadi K", updated.Name)
	assert.Equal(t, "c@example.com", updated.Email)
	assert.Equal(t, "fr", updated.LanguagePreference)

	stored, _ := repo.GetByID(ctx, user.ID)
	assert.Equal(t, "Chadi K", stored.Name)

	_, err = svc.UpdateProfile(ctx, updated, ProfileChanges{Email: "taken@example.com"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_ChangePasswordAndDelete(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Create(ctx, "e@example.com", "Elias", "en", "old-hash")
	require.NoError(t, err)

	require.NoError(t, svc.ChangePassword(ctx, user, "new-hash"))
	stored, _ := repo.GetByID(ctx, user.ID)
	assert.Equal(t, "new-hash", stored.PasswordHash)

	require.NoError(t, svc.Delete(ctx, user))
	gone, err := svc.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.ErrorIs(t, svc.Delete(ctx, user), ErrNotFound)
	assert.ErrorIs(t, svc.ChangePassword(ctx, user, "x"), ErrNotFound)
}
