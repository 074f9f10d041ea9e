package domain

import "time"

// Type records which factor path produced the session, for downstream auditing.
type Type string

const (
	// TypePassword is a session created directly after credential verification
	// (two-factor disabled).
	TypePassword Type = "password"
	// TypeOTP is a session created via the online OTP verification path.
	TypeOTP Type = "otp"
	// TypeOffline is a session created via the offline fallback PIN path.
	TypeOffline Type = "offline"
)

// Geo is an optional geolocation captured at issuance. Provided by the caller
// (e.g. the HTTP layer's IP lookup); empty fields mean unknown.
type Geo struct {
	City    string
	Country string
}

// Session represents one authenticated device binding. Only the hash of the
// session token is stored; TokenID is a short fingerprint for indexed lookup.
// At most one session per user is active and unexpired at any time; the
// repository enforces this transactionally at creation.
type Session struct {
	ID             string
	UserID         string
	TokenHash      string
	TokenID        string
	Type           Type
	DeviceInfo     string
	IPAddress      string
	Geo            Geo
	Active         bool
	LastActivityAt time.Time
	ExpiresAt      time.Time // absolute; never extended by activity
	CreatedAt      time.Time
}

// Live reports whether the session authorizes requests at the given instant.
// Inline defense-in-depth check; the sweeper independently flips Active for
// expired rows.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.Active && s.ExpiresAt.After(now)
}

// PublicSession is the caller-facing projection of a session: no token
// material, only metadata safe to show the session's own user.
type PublicSession struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	DeviceInfo     string    `json:"device_info"`
	IPAddress      string    `json:"ip_address"`
	GeoCity        string    `json:"geo_city,omitempty"`
	GeoCountry     string    `json:"geo_country,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Public returns the caller-facing projection of s.
func (s *Session) Public() PublicSession {
	return PublicSession{
		ID:             s.ID,
		Type:           string(s.Type),
		DeviceInfo:     s.DeviceInfo,
		IPAddress:      s.IPAddress,
		GeoCity:        s.Geo.City,
		GeoCountry:     s.Geo.Country,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
	}
}
