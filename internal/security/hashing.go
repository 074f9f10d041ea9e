package security

import "golang.org/x/crypto/bcrypt"

// dummyHash is a bcrypt digest of random bytes. Login compares against it
// when the email resolves to no account, so an unknown email costs the same
// bcrypt work as a wrong password.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Hasher hashes and verifies passwords with bcrypt at a fixed cost. Plaintext
// passwords must never be logged or persisted.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher, clamping cost into bcrypt's valid range.
// Zero or negative cost selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt digest of password, suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored digest. Returns nil on match,
// bcrypt.ErrMismatchedHashAndPassword on mismatch.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// CompareDummy burns one bcrypt verification against a fixed digest and
// always reports a mismatch. Call on the lookup-miss branch so both login
// failure paths take the same time.
func (h *Hasher) CompareDummy(password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(dummyHash), password)
}
