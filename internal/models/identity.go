package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingVector is a fixed-length face feature vector produced by the
// extractor. Its length must equal the configured embedding dimension.
type EmbeddingVector = []float32

// Identity is a registered account capable of biometric authentication.
// An identity visible to readers always owns at least one embedding.
type Identity struct {
	ID           uuid.UUID `json:"id" db:"id"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// StoredEmbedding is one (identity, embedding) pair from the store snapshot.
// Seq is the embedding's position within its identity's enrollment batch.
type StoredEmbedding struct {
	IdentityID uuid.UUID       `json:"identity_id" db:"identity_id"`
	Seq        int             `json:"seq" db:"seq"`
	Vector     EmbeddingVector `json:"vector" db:"embedding"`
}

// MatchResult is the outcome of one 1:N identification attempt.
// IdentityID and Distance are nil when the population is empty; Distance is
// set even on rejection so the attempt can be audited.
type MatchResult struct {
	IdentityID *uuid.UUID `json:"identity_id,omitempty"`
	Distance   *float64   `json:"distance,omitempty"`
	Threshold  float64    `json:"threshold"`
}

// Matched reports whether the result accepted an identity.
func (r MatchResult) Matched() bool {
	return r.IdentityID != nil
}
