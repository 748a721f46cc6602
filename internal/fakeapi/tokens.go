package fakeapi

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"rfpdesk/internal/usertoken"
	"rfpdesk/pkg/domain"
)

const (
	tokenIssuer   = usertoken.DefaultIssuer
	tokenAudience = usertoken.DefaultAudience
	tokenKeyID    = "stub-active"
	tokenLeeway   = 30 * time.Second
)

type userClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// tokens issues and validates RS256 access tokens with a key generated at
// startup. Tokens do not survive a restart.
type tokens struct {
	key *rsa.PrivateKey
	ttl time.Duration
}

func newTokens(ttl time.Duration) (*tokens, error) {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate token key: %w", err)
	}
	return &tokens{key: key, ttl: ttl}, nil
}

func (t *tokens) jwks() usertoken.JWKS {
	return usertoken.JWKS{Keys: []usertoken.JWK{usertoken.PublicJWK(tokenKeyID, &t.key.PublicKey)}}
}

func (t *tokens) issue(u domain.User) (string, error) {
	now := time.Now().UTC()
	claims := userClaims{
		Email: u.Email,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UserID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = tokenKeyID
	return token.SignedString(t.key)
}

// subject validates token and returns the user id it was issued to.
func (t *tokens) subject(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid token format")
	}
	claims := userClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		kid, _ := tok.Header["kid"].(string)
		if strings.TrimSpace(kid) != tokenKeyID {
			return nil, errors.New("unknown token key")
		}
		return &t.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(tokenLeeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token subject missing")
	}
	return claims.Subject, nil
}
