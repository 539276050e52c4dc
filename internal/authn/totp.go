// Package authn implements the authentication primitives the HTTP transport
// consumes: bootstrap-secret issuance, RFC 6238 TOTP, and backup-code/
// recovery-token generation and hashing — first-factor proof-of-possession
// built on stdlib crypto rather than a dedicated auth library.
package authn

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// humanAlphabet is the 32-character human-friendly alphabet used for
// bootstrap secrets, backup codes, and recovery tokens: no 0/O/1/I/L.
const humanAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// randomToken returns n characters drawn uniformly from humanAlphabet.
func randomToken(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failing means the host is unusable
	}
	for _, b := range buf {
		sb.WriteByte(humanAlphabet[int(b)%len(humanAlphabet)])
	}
	return sb.String()
}

// NewBootstrapSecret returns a fresh 30-character bootstrap secret, valid
// for 1 hour from process start.
func NewBootstrapSecret() string { return randomToken(30) }

// NewBackupCodes returns 10 fresh 30-character backup codes.
func NewBackupCodes() []string {
	codes := make([]string, 10)
	for i := range codes {
		codes[i] = randomToken(30)
	}
	return codes
}

// NewRecoveryToken returns a fresh 200-character recovery token.
func NewRecoveryToken() string { return randomToken(200) }

// HashToken returns the hex-encoded SHA-256 hash of a token, the only form
// ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum)
}

// ConstantTimeEqual compares a candidate token's hash against a stored hash
// in constant time.
func ConstantTimeEqual(candidate, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(candidate)), []byte(storedHash)) == 1
}

// NewTOTPSecret returns a fresh base32-encoded TOTP secret (160 bits).
func NewTOTPSecret() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
}

// TOTPURI builds an otpauth:// URI for QR-code enrollment.
func TOTPURI(secret, accountName, issuer string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&algorithm=SHA1&digits=6&period=30",
		issuer, accountName, secret, issuer)
}

// GenerateTOTP computes the 6-digit RFC 6238 TOTP code for secret at t,
// using the standard 30-second step.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("decode totp secret: %w", err)
	}
	counter := uint64(t.Unix() / 30)
	return hotp(key, counter), nil
}

// ValidateTOTP checks code against secret, allowing one step of clock skew
// in either direction.
func ValidateTOTP(secret, code string, at time.Time) bool {
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return false
	}
	counter := uint64(at.Unix() / 30)
	for _, skew := range []int64{0, -1, 1} {
		c := uint64(int64(counter) + skew)
		if hotp(key, c) == code {
			return true
		}
	}
	return false
}

func hotp(key []byte, counter uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])

	mod := uint32(math.Pow10(6))
	return fmt.Sprintf("%06d", code%mod)
}
