package dto

import "github.com/google/uuid"

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type IdentityResponse struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	CreatedAt   string    `json:"created_at"`
}

type RegisterResponse struct {
	Identity       IdentityResponse `json:"identity"`
	EmbeddingCount int              `json:"embedding_count"`
}

type SessionResponse struct {
	Identity  IdentityResponse `json:"identity"`
	Token     string           `json:"token"`
	ExpiresAt string           `json:"expires_at"`
	Distance  *float64         `json:"distance,omitempty"`
	Threshold *float64         `json:"threshold,omitempty"`
}

type MeResponse struct {
	Identity IdentityResponse `json:"identity"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}
