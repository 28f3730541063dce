package dto

import "github.com/google/uuid"

type AuthEventResponse struct {
	ID         uuid.UUID  `json:"id"`
	Type       string     `json:"type"`
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Distance   *float64   `json:"distance,omitempty"`
	Threshold  *float64   `json:"threshold,omitempty"`
	CreatedAt  string     `json:"created_at"`
}

type EventListResponse struct {
	Events []AuthEventResponse `json:"events"`
	Total  int                 `json:"total"`
}

type EventQuery struct {
	Type       string `form:"type"`
	IdentityID string `form:"identity_id"`
	From       string `form:"from"`
	To         string `form:"to"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// WSEvent is a WebSocket message for real-time auth event delivery.
type WSEvent struct {
	Type string            `json:"type"` // enrollment, face_accepted, face_rejected, password_accepted, password_rejected
	Data AuthEventResponse `json:"data"`
}
