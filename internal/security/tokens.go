package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// SessionClaims holds JWT claims for the session token. The jti carries
// 128 bits of randomness, so the token is unguessable independent of the
// signature.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// TokenProvider issues and validates signed session tokens using RS256 or
// ES256 (private/public key). One token is issued per session; the store keeps
// only a hash of it.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
}

// NewTokenProvider returns a TokenProvider that signs with the given private
// key (RS256 or ES256). issuer and audience are set on claims and validated
// on every parse.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
	}
}

// IssueSession issues a signed session token for the given session and user,
// expiring at expiresAt (absolute expiry, fixed at session creation).
func (p *TokenProvider) IssueSession(sessionID, userID string, expiresAt time.Time) (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(p.privateKey)
}

// ValidateSession parses and validates the session token (signature, exp, iss,
// aud). Returns sessionID and userID, or ErrInvalidToken. A valid signature is
// necessary but not sufficient for authorization: callers must still look the
// session up in the store, which is where logout and takeover are enforced.
func (p *TokenProvider) ValidateSession(tokenString string) (sessionID, userID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{},
		func(*jwt.Token) (interface{}, error) { return p.publicKey, nil },
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
