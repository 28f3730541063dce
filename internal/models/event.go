package models

import (
	"time"

	"github.com/google/uuid"
)

// AuthEvent types.
const (
	EventEnrollment       = "enrollment"
	EventFaceAccepted     = "face_accepted"
	EventFaceRejected     = "face_rejected"
	EventPasswordAccepted = "password_accepted"
	EventPasswordRejected = "password_rejected"
)

// AuthEvent is an audit record of one enrollment or authentication attempt.
// Published to NATS by the API and persisted by the auditor.
type AuthEvent struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Type       string     `json:"type" db:"event_type"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty" db:"identity_id"`
	Email      string     `json:"email,omitempty" db:"email"`
	Distance   *float64   `json:"distance,omitempty" db:"distance"`
	Threshold  *float64   `json:"threshold,omitempty" db:"threshold"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}
