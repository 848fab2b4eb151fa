// Package tier gates operations on the caller's subscription.
package tier

import "github.com/textgate/textgate/internal/users"

// Decision is the outcome of a gate check. Required and Current are always
// set so a denial can be rendered as an upgrade prompt.
type Decision struct {
	Allowed  bool       `json:"allowed"`
	Required users.Tier `json:"required_subscription"`
	Current  users.Tier `json:"current_subscription"`
}

// Satisfies reports whether a caller on current may use an operation gated
// at required. Premium passes every gate; any other tier passes only its own.
// A pro caller does not pass a free gate.
func Satisfies(current, required users.Tier) bool {
	return current == required || current == users.TierPremium
}

// Require evaluates the gate for an already resolved user. It does not
// handle anonymous callers; identity resolution must reject them first.
func Require(user *users.User, required users.Tier) Decision {
	return Decision{
		Allowed:  Satisfies(user.Tier, required),
		Required: required,
		Current:  user.Tier,
	}
}
