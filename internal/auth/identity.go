package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/textgate/textgate/internal/users"
)

// Resolution failures. All but ErrStoreFailure map to 401.
var (
	ErrCredentialMissing = errors.New("authentication token required")
	ErrCredentialExpired = errors.New("authentication token expired")
	ErrCredentialInvalid = errors.New("authentication token invalid")
	ErrIdentityNotFound  = errors.New("user not found")
	ErrStoreFailure      = errors.New("identity lookup failed")
)

// UserLookup is the single-row read the resolver needs from the credential store.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// Resolver turns an Authorization header into a user snapshot.
type Resolver struct {
	codec *TokenCodec
	users UserLookup
}

// NewResolver verifies credentials with codec and loads the current user
// record through users on every request, so tier changes and deleted
// accounts take effect without reissuing tokens.
func NewResolver(codec *TokenCodec, users UserLookup) *Resolver {
	return &Resolver{codec: codec, users: users}
}

// Resolution is the outcome of optional identity resolution. Err is set when
// a credential was presented but could not be resolved; the caller decides
// to proceed anonymously.
type Resolution struct {
	User *users.User
	Err  error
}

// Anonymous reports whether the request proceeds without a user.
func (r Resolution) Anonymous() bool {
	return r.User == nil
}

// RequireIdentity fails with one of the resolution errors when the header
// does not identify an existing user.
func (r *Resolver) RequireIdentity(ctx context.Context, authHeader string) (*users.User, error) {
	token, err := bearerToken(authHeader)
	if err != nil {
		return nil, err
	}

	claims, err := r.codec.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrCredentialExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrCredentialInvalid)
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}
	if user == nil {
		return nil, ErrIdentityNotFound
	}
	return user, nil
}

// OptionalIdentity never fails. A missing header is plain anonymous access;
// every other failure is reported in Resolution.Err.
func (r *Resolver) OptionalIdentity(ctx context.Context, authHeader string) Resolution {
	user, err := r.RequireIdentity(ctx, authHeader)
	if errors.Is(err, ErrCredentialMissing) {
		return Resolution{}
	}
	return Resolution{User: user, Err: err}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrCredentialMissing
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", fmt.Errorf("%w: expected bearer scheme", ErrCredentialInvalid)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrCredentialMissing
	}
	return token, nil
}
