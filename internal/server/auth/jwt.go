// Package auth mints and validates the HS256 tokens carried by the session
// cookie. The token references a server-side session row by id; revoking the
// row invalidates the cookie regardless of its expiry.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akarpov91/chainanchor/internal/common"
)

// Claims extends the registered claim set with the session row id.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string
}

func GenerateToken(sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetSessionIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", common.ErrorInvalidToken
	}

	return claims.SessionID, nil
}
