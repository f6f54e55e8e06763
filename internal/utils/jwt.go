package utils

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of tokens issued by GenerateJWT.
const DefaultTokenTTL = 24 * time.Hour

var (
	jwtMu     sync.RWMutex
	jwtSecret []byte
)

// Claims are the JWT claims accepted by the API.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SetJWTSecret sets the HS256 secret used to sign and validate tokens.
func SetJWTSecret(secret string) {
	jwtMu.Lock()
	jwtSecret = []byte(secret)
	jwtMu.Unlock()
}

func secret() ([]byte, error) {
	jwtMu.RLock()
	defer jwtMu.RUnlock()
	if len(jwtSecret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	return jwtSecret, nil
}

// GenerateJWT issues a signed token for userID.
func GenerateJWT(userID, email string) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DefaultTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ValidateJWT parses tokenString and returns its claims. Only HS256 is accepted.
func ValidateJWT(tokenString string) (*Claims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
