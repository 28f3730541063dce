// Package session issues and validates stateless signed session tokens.
// A session is a pure function of the signing secret, the token and the
// clock: the server keeps no per-session state, so a session ends only by
// expiry (or by rotating the secret, which invalidates everything).
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
)

type Issuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewIssuer(secret string, lifetime time.Duration) *Issuer {
	return &Issuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Issue creates a signed session for the identity, valid for the configured
// lifetime from now.
func (i *Issuer) Issue(identityID uuid.UUID) (*models.Session, error) {
	now := i.now()
	expires := now.Add(i.lifetime)

	claims := jwt.RegisteredClaims{
		Subject:   identityID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &models.Session{
		IdentityID: identityID,
		Token:      token,
		IssuedAt:   now,
		ExpiresAt:  expires,
	}, nil
}

// Validate checks a session token and returns the identity it asserts.
// An empty token is ErrUnauthenticated; an expired one ErrSessionExpired;
// anything else that fails to verify is ErrInvalidSession.
func (i *Issuer) Validate(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, faceauth.ErrUnauthenticated
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, faceauth.ErrSessionExpired
		}
		return uuid.Nil, faceauth.ErrInvalidSession
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return uuid.Nil, faceauth.ErrInvalidSession
	}

	identityID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, faceauth.ErrInvalidSession
	}
	return identityID, nil
}

// Lifetime returns the configured session lifetime.
func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}
