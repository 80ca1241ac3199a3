// Package auth signs and verifies the HS256 JWTs used by the server: caller
// bearer tokens, which only carry a user id, and stream-session tokens,
// which also name the device and carry a unique id for revocation.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims are the caller token claims: the registered set plus UserID.
type Claims struct {
	jwt.RegisteredClaims
	UserID string
}

// StreamClaims identify a stream session. RegisteredClaims.ID is the jti the
// token store keys the session by.
type StreamClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	DeviceID string `json:"did"`
}

func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return "", err
	}
	if claims.UserID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.UserID, nil
}

// GenerateStreamToken signs a stream-session token with jti id.
func GenerateStreamToken(id, userID, deviceID string, secretKey []byte, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, StreamClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   userID,
		DeviceID: deviceID,
	})
	return token.SignedString(secretKey)
}

// ParseStreamToken verifies the signature of a stream-session token and
// that it has not expired at now.
func ParseStreamToken(tokenString string, secretKey []byte, now time.Time) (*StreamClaims, error) {
	claims := &StreamClaims{}
	timeFn := jwt.WithTimeFunc(func() time.Time { return now })
	if err := parse(tokenString, claims, secretKey, timeFn); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func parse(tokenString string, claims jwt.Claims, secretKey []byte, extra ...jwt.ParserOption) error {
	opts := append([]jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}, extra...)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
