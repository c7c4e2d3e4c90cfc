package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the session token payload minted after a successful wallet
// verification.
type Claims struct {
	SubjectID string `json:"subject_id"`
	Address   string `json:"address"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid session token")

// Issue mints an HS256 session token for the verified subject.
func Issue(secret string, ttl time.Duration, subjectID, address string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SubjectID: subjectID,
		Address:   address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}

// Parse validates the token signature and expiry and returns its claims.
func Parse(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SubjectID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
