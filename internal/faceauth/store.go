package faceauth

import (
	"context"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// Store persists identities and their embeddings.
//
// CreateIdentity must be atomic: readers either see the identity with all of
// its embeddings or not at all, and a unique-email violation must surface as
// ErrDuplicateIdentity from the insert itself (a prior existence check is
// only an optimization, never the authority).
//
// AllEmbeddings returns one coherent snapshot in enrollment order — identity
// creation time ascending (id as secondary key), then embedding seq
// ascending. The identification engine relies on this ordering for its
// deterministic tie-break.
type Store interface {
	CreateIdentity(ctx context.Context, identity *models.Identity, vectors []models.EmbeddingVector, sourceKeys []string) error
	Identity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	IdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	AllEmbeddings(ctx context.Context) ([]models.StoredEmbedding, error)
	CountEmbeddings(ctx context.Context, identityID uuid.UUID) (int, error)
}
