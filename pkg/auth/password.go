package auth

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength     = 8
	DefaultGeneratedChars = 10
	generatedAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()"
)

var (
	ErrPasswordMismatch = errors.New("Passwords do not match.")
	ErrPasswordReused   = errors.New("New password cannot be the same as the old password.")
	ErrPasswordTooShort = errors.New("Password must be at least 8 characters long.")
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword validates a password against a bcrypt hash.
func CheckPassword(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}

// ValidateChange checks a password change before it is sent. old may be
// empty for a reset, which skips the reuse check.
func ValidateChange(old, next, confirm string) error {
	if next != confirm {
		return ErrPasswordMismatch
	}
	if old != "" && old == next {
		return ErrPasswordReused
	}
	if len(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// GeneratePassword returns a random password for a newly added team member.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		length = DefaultGeneratedChars
	}
	max := big.NewInt(int64(len(generatedAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = generatedAlphabet[n.Int64()]
	}
	return string(buf), nil
}
