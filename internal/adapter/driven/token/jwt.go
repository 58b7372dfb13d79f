package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/Wyydra/duo/internal/core/domain"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "duo"

// Claims carries the client id a channel token was issued for.
type Claims struct {
	ClientID string `json:"cid"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies short-lived channel tokens.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	return &Issuer{secret: []byte(secret), now: time.Now}, nil
}

func (i *Issuer) Issue(clientID domain.ClientID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be > 0, got %s", ttl)
	}
	now := i.now()
	claims := &Claims{
		ClientID: clientID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks signature and expiry and returns the client id.
func (i *Issuer) Verify(tokenString string) (domain.ClientID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if !token.Valid || claims.ClientID == "" {
		return "", domain.ErrInvalidToken
	}
	if _, _, err := domain.ParseClientID(claims.ClientID); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return domain.ClientID(claims.ClientID), nil
}
