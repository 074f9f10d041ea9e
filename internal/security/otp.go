package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var otpMax = big.NewInt(1000000)

// GenerateOTP returns a 6-digit numeric code string (e.g. "042317"), drawn
// uniformly from [000000, 999999] using crypto/rand. Used for both the online
// OTP and the offline fallback PIN.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// HashOTP returns a SHA-256 hash of the code, hex-encoded. Same shape as
// HashToken; kept separate so call sites read as code handling.
func HashOTP(code string) string {
	return HashToken(code)
}

// OTPEqual performs constant-time comparison of the provided code's hash with
// the stored hash.
func OTPEqual(providedCode, storedHash string) bool {
	return TokenHashEqual(providedCode, storedHash)
}
