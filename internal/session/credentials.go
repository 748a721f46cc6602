package session

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"rfpdesk/pkg/domain"
)

var (
	ErrNoSealer     = errors.New("saved credentials are disabled")
	errSealedFormat = errors.New("sealed credentials are corrupt")
)

const (
	secretLen = 32
	saltLen   = 16
	nonceLen  = 24
)

// Sealer encrypts the remember-me record with a key derived from a
// per-install secret file.
type Sealer struct {
	key [32]byte
}

// LoadOrCreateSealer reads the secret at path, creating it on first use.
func LoadOrCreateSealer(path string) (*Sealer, error) {
	secret, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		secret = make([]byte, secretLen+saltLen)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create secret dir: %w", err)
		}
		if err := os.WriteFile(path, secret, 0o600); err != nil {
			return nil, fmt.Errorf("write secret: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}
	if len(secret) != secretLen+saltLen {
		return nil, fmt.Errorf("secret file %s has unexpected size", path)
	}
	return NewSealer(secret[:secretLen], secret[secretLen:])
}

// NewSealer derives the sealing key from secret and salt.
func NewSealer(secret, salt []byte) (*Sealer, error) {
	derived, err := scrypt.Key(secret, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	s := &Sealer{}
	copy(s.key[:], derived)
	return s, nil
}

func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceLen+secretbox.Overhead {
		return nil, errSealedFormat
	}
	var nonce [nonceLen]byte
	copy(nonce[:], sealed[:nonceLen])
	out, ok := secretbox.Open(nil, sealed[nonceLen:], &nonce, &s.key)
	if !ok {
		return nil, errSealedFormat
	}
	return out, nil
}

// SaveCredentials stores the remember-me record. RememberMe false removes it.
func (s *Store) SaveCredentials(creds domain.SavedCredentials) error {
	if !creds.RememberMe {
		return s.ForgetCredentials()
	}
	if s.sealer == nil {
		return ErrNoSealer
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return err
	}
	return s.cache.SetSealedCredentials(sealed)
}

// Credentials returns the remember-me record. A record that no longer opens
// (secret rotated) reads as absent.
func (s *Store) Credentials() (domain.SavedCredentials, bool, error) {
	if s.sealer == nil {
		return domain.SavedCredentials{}, false, nil
	}
	sealed, ok, err := s.cache.SealedCredentials()
	if err != nil || !ok {
		return domain.SavedCredentials{}, false, err
	}
	data, err := s.sealer.Open(sealed)
	if err != nil {
		return domain.SavedCredentials{}, false, nil
	}
	var creds domain.SavedCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return domain.SavedCredentials{}, false, nil
	}
	return creds, true, nil
}

func (s *Store) ForgetCredentials() error {
	return s.cache.ClearSealedCredentials()
}
