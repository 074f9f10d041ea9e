package domain

import "time"

// Purpose scopes an ephemeral token to exactly one flow. Purpose is always an
// explicit match parameter on consume, so a two-factor token can never be
// replayed as a reset token.
type Purpose string

const (
	// PurposeTwoFactor is the online OTP issued after credential verification.
	PurposeTwoFactor Purpose = "two_factor"
	// PurposePasswordReset is the time-boxed reset token sent out-of-band.
	PurposePasswordReset Purpose = "password_reset"
	// PurposeOfflineSetup is the offline fallback PIN, consumable without a
	// network-issued carrier token.
	PurposeOfflineSetup Purpose = "offline_setup"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeTwoFactor, PurposePasswordReset, PurposeOfflineSetup:
		return true
	}
	return false
}

// Geo is an optional geolocation captured at issuance.
type Geo struct {
	City    string
	Country string
}

// EphemeralToken is a short-lived, single-use challenge artifact: OTP carrier,
// offline PIN, or password-reset token. Only hashes of the opaque token and
// the numeric code are stored. A token is consumable exactly once; the
// repository's consume operations mark it used in the same statement that
// returns it.
type EphemeralToken struct {
	ID        string
	UserID    string
	TokenHash string
	CodeHash  string // empty when the flow has no human-enterable code
	Purpose   Purpose
	Used      bool
	Geo       Geo
	ExpiresAt time.Time
	CreatedAt time.Time
}
