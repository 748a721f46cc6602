package auth

import (
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestValidateChange(t *testing.T) {
	if err := ValidateChange("old-password", "Str0ng#Password!", "Str0ng#Password!"); err != nil {
		t.Fatalf("expected valid change, got: %v", err)
	}
	if err := ValidateChange("", "longenough", "longenough"); err != nil {
		t.Fatalf("expected reset without old password to pass, got: %v", err)
	}
	if err := ValidateChange("a", "longenough", "different"); err != ErrPasswordMismatch {
		t.Fatalf("expected mismatch, got: %v", err)
	}
	if err := ValidateChange("samesame1", "samesame1", "samesame1"); err != ErrPasswordReused {
		t.Fatalf("expected reuse error, got: %v", err)
	}
	if err := ValidateChange("old", "short", "short"); err != ErrPasswordTooShort {
		t.Fatalf("expected short password to fail, got: %v", err)
	}
}

func TestGeneratePassword(t *testing.T) {
	pw, err := GeneratePassword(0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pw) != DefaultGeneratedChars {
		t.Fatalf("length = %d", len(pw))
	}
	for _, r := range pw {
		if !strings.ContainsRune(generatedAlphabet, r) {
			t.Fatalf("unexpected rune %q", r)
		}
	}
}
