// Package auth implements the token and password primitives of the identity
// subsystem: signed time-bound JWTs carrying a subject claim, and bcrypt
// password hashing.
//
// Tokens are stateless: the server keeps no token table, so a token cannot be
// revoked before its expiry. The refresh path compensates with server-stored
// rotating refresh tokens (see the users service).
package auth

import (
	"errors"
	"time"

	"github.com/akimychev/converse/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Purpose distinguishes short-lived access tokens from longer-lived refresh
// tokens. A token minted for one purpose never validates for the other.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// DefaultLeeway is the recommended clock-skew allowance for expiry checks.
const DefaultLeeway = 60 * time.Second

// Claims carries the registered claim set plus the token purpose. The user id
// travels in the standard "sub" claim.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
}

// GenerateToken mints an HS256-signed token for the given subject with an
// absolute expiry of now+validity.
func GenerateToken(subject string, secretKey []byte, validityDuration time.Duration, purpose Purpose) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		Purpose: purpose,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetSubjectFromToken validates signature, structure, purpose, and expiry
// (with the given clock-skew leeway) and returns the subject claim.
//
// Failures map to sentinels in common:
//   - ErrTokenExpired for an expired token
//   - ErrMissingSubject for a valid token with an empty subject
//   - ErrInvalidToken for everything else (bad signature, malformed
//     structure, wrong purpose)
func GetSubjectFromToken(tokenString string, secretKey []byte, purpose Purpose, leeway time.Duration) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(leeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Purpose != purpose {
		return "", common.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", common.ErrMissingSubject
	}

	return claims.Subject, nil
}
