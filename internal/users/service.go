package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrAlreadyPremium = errors.New("subscription is already premium")
	ErrAlreadyFree    = errors.New("subscription is already free")
)

const defaultLanguage = "ar"

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Create(ctx context.Context, email, name, language, passwordHash string) (*User, error) {
	if language == "" {
		language = defaultLanguage
	}
	now := s.now()
	user := &User{
		ID:                 uuid.New(),
		Email:              email,
		Name:               name,
		LanguagePreference: language,
		Tier:               TierFree,
		PasswordHash:       passwordHash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, email)
}

// Upgrade moves the user to premium and returns the updated snapshot.
func (s *Service) Upgrade(ctx context.Context, user *User) (*User, error) {
	if user.Tier == TierPremium {
		return nil, ErrAlreadyPremium
	}
	return s.changeTier(ctx, user, TierPremium)
}

// Downgrade moves the user back to free and returns the updated snapshot.
func (s *Service) Downgrade(ctx context.Context, user *User) (*User, error) {
	if user.Tier == TierFree {
		return nil, ErrAlreadyFree
	}
	return s.changeTier(ctx, user, TierFree)
}

// ProfileChanges holds the editable profile fields. Empty fields are left
// unchanged.
type ProfileChanges struct {
	Name               string
	Email              string
	LanguagePreference string
}

func (s *Service) UpdateProfile(ctx context.Context, user *User, changes ProfileChanges) (*User, error) {
	updated := *user
	if changes.Name != "" {
		updated.Name = changes.Name
	}
	if changes.Email != "" {
		updated.Email = changes.Email
	}
	if changes.LanguagePreference != "" {
		updated.LanguagePreference = changes.LanguagePreference
	}
	updated.UpdatedAt = s.now()

	if err := s.repo.UpdateProfile(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ChangePassword stores an already hashed password.
func (s *Service) ChangePassword(ctx context.Context, user *User, passwordHash string) error {
	return s.repo.UpdatePassword(ctx, user.ID, passwordHash)
}

func (s *Service) Delete(ctx context.Context, user *User) error {
	return s.repo.Delete(ctx, user.ID)
}

func (s *Service) changeTier(ctx context.Context, user *User, tier Tier) (*User, error) {
	if err := s.repo.UpdateTier(ctx, user.ID, tier); err != nil {
		return nil, err
	}
	updated := *user
	updated.Tier = tier
	updated.UpdatedAt = s.now()
	return &updated, nil
}
