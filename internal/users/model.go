package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// ParseTier validates a stored or requested subscription value.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierFree, TierPro, TierPremium:
		return t, nil
	default:
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
}

// Paid reports whether the tier is exempt from monthly metering.
func (t Tier) Paid() bool {
	return t == TierPro || t == TierPremium
}

type User struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	LanguagePreference string    `json:"language_preference"`
	Tier               Tier      `json:"subscription_type"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
