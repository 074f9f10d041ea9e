package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
)

// NewTestTokenProvider returns a TokenProvider backed by a fresh ECDSA P-256
// key. For unit tests only; every call gets its own key, so tokens from one
// provider never validate against another.
func NewTestTokenProvider() *TokenProvider {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("security: test key generation: " + err.Error())
	}
	return NewTokenProvider(key, &key.PublicKey, "test-issuer", "test-audience")
}
