package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BatchSessionClaims wraps a resolved credential reference for the
// duration of one batch's execution, so the executor doesn't have to
// re-resolve (and the wiki doesn't have to re-authenticate) on every
// command.
type BatchSessionClaims struct {
	BatchID  int64  `json:"batch_id"`
	Username string `json:"username"`
	Source   Source `json:"source"`
	jwt.RegisteredClaims
}

// TokenService issues and validates batch session tokens.
type TokenService struct {
	secret     []byte
	expiration time.Duration
	issuer     string
}

// NewTokenService builds a token service. expiration should comfortably
// exceed the longest batch this process expects to run.
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		expiration: expiration,
		issuer:     "github.com/wmde/qsbot/auth",
	}
}

// IssueSessionToken signs a token binding cred to its batch for the
// configured session lifetime.
func (s *TokenService) IssueSessionToken(cred *BotCredential) (string, error) {
	now := time.Now()
	claims := BatchSessionClaims{
		BatchID:  cred.BatchID,
		Username: cred.Username,
		Source:   cred.Source,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", cred.BatchID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateSessionToken parses and verifies a previously issued token.
func (s *TokenService) ValidateSessionToken(tokenString string) (*BatchSessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &BatchSessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*BatchSessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid session token")
	}
	return claims, nil
}
