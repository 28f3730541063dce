package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is a time-bounded, signed proof of successful authentication.
// Token is self-contained; the server keeps no per-session state, so a
// session ends only by expiry (or by rotating the signing secret).
type Session struct {
	IdentityID uuid.UUID `json:"identity_id"`
	Token      string    `json:"-"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
