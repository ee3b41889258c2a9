package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidDownloadToken = errors.New("invalid download token")

// DownloadTokenIssuer signs short-lived tokens authorizing a single document
// download, the server-side equivalent of a tokenized storage download URL.
type DownloadTokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewDownloadTokenIssuer creates a token issuer with the given signing secret and TTL
func NewDownloadTokenIssuer(secret string, ttl time.Duration) *DownloadTokenIssuer {
	return &DownloadTokenIssuer{secret: []byte(secret), ttl: ttl}
}

type downloadClaims struct {
	DocumentID string `json:"doc"`
	UserID     int64  `json:"uid"`
	jwt.RegisteredClaims
}

// Issue returns a signed token granting userID access to documentID until the TTL elapses
func (i *DownloadTokenIssuer) Issue(documentID string, userID int64) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		DocumentID: documentID,
		UserID:     userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign download token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the document ID and user ID it grants access to
func (i *DownloadTokenIssuer) Verify(tokenString string) (string, int64, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	claims := &downloadClaims{}
	parsed, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", 0, ErrInvalidDownloadToken
	}
	if claims.DocumentID == "" {
		return "", 0, ErrInvalidDownloadToken
	}
	return claims.DocumentID, claims.UserID, nil
}
