package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// fingerprintLen is the number of hex characters of the token hash used as a
// short lookup identifier. 48 bits is enough for indexed lookup without
// exposing the full hash.
const fingerprintLen = 12

// GenerateOpaqueToken returns a URL-safe random token with 256 bits of
// entropy, base64url-encoded without padding. Used for ephemeral challenge
// tokens (OTP carriers, reset tokens, offline-setup tokens).
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns a SHA-256 hash of the token string, hex-encoded.
// Stores persist only this hash, never the raw token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenFingerprint returns a short identifier derived from the token, used
// for indexed lookup. The full hash is still compared in constant time after
// lookup; the fingerprint alone never grants access.
func TokenFingerprint(token string) string {
	return HashToken(token)[:fingerprintLen]
}

// TokenHashEqual performs constant-time comparison of the provided token's
// hash with the stored hash. Returns true only if they match.
func TokenHashEqual(providedToken, storedHash string) bool {
	providedHash := HashToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
