package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidKey is returned when key material cannot be decoded or is of an
// unsupported type.
var ErrInvalidKey = errors.New("invalid key")

// LoadPEM resolves config key material: an inline PEM block is returned as-is,
// anything else is treated as a file path.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, ErrInvalidKey
	case strings.HasPrefix(s, "-----BEGIN"):
		return []byte(s), nil
	default:
		return os.ReadFile(s)
	}
}

func decodeBlock(s string) (*pem.Block, error) {
	raw, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, ErrInvalidKey
	}
	return block, nil
}

// ParsePrivateKey parses the signing key for session tokens. Accepts PKCS#8,
// PKCS#1 (RSA), and SEC 1 (EC) encodings; s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	block, err := decodeBlock(s)
	if err != nil {
		return nil, err
	}
	var key any
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unsupported PEM type %q", ErrInvalidKey, block.Type)
	}
	if err != nil {
		return nil, err
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, ErrInvalidKey
	}
	return signer, nil
}

// ParsePublicKey parses the verification key. Accepts PKIX and PKCS#1 (RSA)
// encodings; s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	block, err := decodeBlock(s)
	if err != nil {
		return nil, err
	}
	switch block.Type {
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unsupported PEM type %q", ErrInvalidKey, block.Type)
	}
}

// KeyAlg names the JWT signing algorithm for the key: "RS256" for RSA,
// "ES256" for ECDSA P-256, empty for anything else.
func KeyAlg(pub crypto.PublicKey) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return "ES256"
		}
		return ""
	default:
		return ""
	}
}
