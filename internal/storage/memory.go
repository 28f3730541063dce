package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
)

// MemoryStore is an in-process faceauth.Store for tests and single-node dev
// deployments. A single RWMutex guards all state: reads take the read lock
// and copy, so AllEmbeddings is a coherent snapshot and a half-written
// identity is never observable. The email uniqueness check happens inside
// the write lock, which is this store's equivalent of the database UNIQUE
// constraint.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]*memoryIdentity
	emails     map[string]uuid.UUID
	order      []uuid.UUID // enrollment order
}

type memoryIdentity struct {
	identity models.Identity
	vectors  []models.EmbeddingVector
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[uuid.UUID]*memoryIdentity),
		emails:     make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) CreateIdentity(_ context.Context, identity *models.Identity, vectors []models.EmbeddingVector, _ []string) error {
	if len(vectors) == 0 {
		return fmt.Errorf("refusing to create identity %s with zero embeddings", identity.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(identity.Email)
	if _, exists := s.emails[email]; exists {
		return faceauth.ErrDuplicateIdentity
	}

	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}

	stored := *identity
	vecCopy := make([]models.EmbeddingVector, len(vectors))
	for i, v := range vectors {
		vecCopy[i] = append(models.EmbeddingVector(nil), v...)
	}

	s.identities[identity.ID] = &memoryIdentity{identity: stored, vectors: vecCopy}
	s.emails[email] = identity.ID
	s.order = append(s.order, identity.ID)
	return nil
}

func (s *MemoryStore) Identity(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	out := rec.identity
	return &out, nil
}

func (s *MemoryStore) IdentityByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	out := s.identities[id].identity
	return &out, nil
}

func (s *MemoryStore) ListIdentities(_ context.Context) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Identity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.identities[id].identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AllEmbeddings(_ context.Context) ([]models.StoredEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.StoredEmbedding
	for _, id := range s.order {
		rec := s.identities[id]
		for seq, vec := range rec.vectors {
			out = append(out, models.StoredEmbedding{
				IdentityID: id,
				Seq:        seq,
				Vector:     vec,
			})
		}
	}
	return out, nil
}

func (s *MemoryStore) CountEmbeddings(_ context.Context, identityID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.identities[identityID]
	if !ok {
		return 0, nil
	}
	return len(rec.vectors), nil
}
