package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/textgate/textgate/internal/clock"
)

const issuer = "textgate"

// Codec errors. Verify reports ErrTokenExpired separately so callers can
// tell a stale session from a forged one.
var (
	ErrMissingSecret = errors.New("token signing secret is not configured")
	ErrTokenExpired  = errors.New("token has expired")
	ErrTokenInvalid  = errors.New("token is invalid")
)

// Token is a signed identity assertion handed to the client at login.
type Token struct {
	Value     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims is the verified content of a Token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies stateless HS256 identity tokens.
type TokenCodec struct {
	secret []byte
	expiry time.Duration
	clock  clock.Clock
}

// NewTokenCodec refuses an empty secret; there is no built-in fallback.
func NewTokenCodec(secret string, expiry time.Duration, clk clock.Clock) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("token expiry must be positive, got %s", expiry)
	}
	if clk == nil {
		clk = clock.System()
	}
	return &TokenCodec{
		secret: []byte(secret),
		expiry: expiry,
		clock:  clk,
	}, nil
}

// Issue signs a token for subject, normally a user id, valid for the codec's
// expiry from now. Times are truncated to whole seconds to match the
// precision of the encoded claims.
func (c *TokenCodec) Issue(subject string) (*Token, error) {
	now := c.clock.Now().Truncate(time.Second)
	expiresAt := now.Add(c.expiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	return &Token{Value: signed, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Verify returns ErrTokenExpired for a well-signed token past its expiry and
// ErrTokenInvalid for every signature, structure or algorithm problem.
func (c *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
