package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InitSchema creates tables if they don't exist. dim is the embedding
// dimensionality baked into the vector column; changing it requires a
// migration, it is not a per-request knob.
func (s *PostgresStore) InitSchema(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS identities (
			id UUID PRIMARY KEY,
			display_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS face_embeddings (
			id UUID PRIMARY KEY,
			identity_id UUID NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			seq INT NOT NULL,
			embedding vector(%d) NOT NULL,
			source_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (identity_id, seq)
		)`, dim),
		`CREATE TABLE IF NOT EXISTS auth_events (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			identity_id UUID,
			email TEXT,
			distance DOUBLE PRECISION,
			threshold DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS auth_events_created_at_idx ON auth_events (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// --- Identities & embeddings ---

// CreateIdentity inserts the identity and all of its embeddings in one
// transaction. Readers never observe a partially-enrolled identity. A unique
// violation on email maps to faceauth.ErrDuplicateIdentity — the constraint,
// not any prior existence check, is what closes the concurrent-enrollment
// race.
func (s *PostgresStore) CreateIdentity(ctx context.Context, identity *models.Identity, vectors []models.EmbeddingVector, sourceKeys []string) error {
	if len(vectors) == 0 {
		return fmt.Errorf("refusing to create identity %s with zero embeddings", identity.ID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO identities (id, display_name, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		identity.ID, identity.DisplayName, identity.Email, identity.PasswordHash,
	).Scan(&identity.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return faceauth.ErrDuplicateIdentity
		}
		return fmt.Errorf("insert identity: %w", err)
	}

	for seq, vec := range vectors {
		sourceKey := ""
		if seq < len(sourceKeys) {
			sourceKey = sourceKeys[seq]
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO face_embeddings (id, identity_id, seq, embedding, source_key) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), identity.ID, seq, pgvector.NewVector(vec), sourceKey)
		if err != nil {
			return fmt.Errorf("insert embedding %d: %w", seq, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Identity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	i := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, email, password_hash, created_at FROM identities WHERE id = $1`, id,
	).Scan(&i.ID, &i.DisplayName, &i.Email, &i.PasswordHash, &i.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return i, nil
}

func (s *PostgresStore) IdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	i := &models.Identity{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, email, password_hash, created_at FROM identities WHERE email = $1`, email,
	).Scan(&i.ID, &i.DisplayName, &i.Email, &i.PasswordHash, &i.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity by email: %w", err)
	}
	return i, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, email, password_hash, created_at FROM identities ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		var i models.Identity
		if err := rows.Scan(&i.ID, &i.DisplayName, &i.Email, &i.PasswordHash, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, i)
	}
	return identities, nil
}

// AllEmbeddings returns the full embedding population in enrollment order:
// identity creation time (id as tiebreaker), then seq. One query, so pgx
// gives one MVCC snapshot — the coherent view the identification engine
// needs.
func (s *PostgresStore) AllEmbeddings(ctx context.Context) ([]models.StoredEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fe.identity_id, fe.seq, fe.embedding
		 FROM face_embeddings fe
		 JOIN identities i ON i.id = fe.identity_id
		 ORDER BY i.created_at, i.id, fe.seq`)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.StoredEmbedding
	for rows.Next() {
		var se models.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&se.IdentityID, &se.Seq, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		se.Vector = vec.Slice()
		out = append(out, se)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountEmbeddings(ctx context.Context, identityID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM face_embeddings WHERE identity_id = $1`, identityID,
	).Scan(&count)
	return count, err
}

// EmbeddingSources returns the source image object keys for an identity,
// ordered by seq. Empty strings mean the image artifact was not stored.
func (s *PostgresStore) EmbeddingSources(ctx context.Context, identityID uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT source_key FROM face_embeddings WHERE identity_id = $1 ORDER BY seq`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query embedding sources: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// --- Auth events (auditor write path, admin read path) ---

func (s *PostgresStore) CreateAuthEvent(ctx context.Context, ev *models.AuthEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auth_events (id, event_type, identity_id, email, distance, threshold, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Type, ev.IdentityID, ev.Email, ev.Distance, ev.Threshold, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert auth event: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryAuthEvents(ctx context.Context, eventType string, identityID *uuid.UUID, from, to *time.Time, limit, offset int) ([]models.AuthEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if eventType != "" {
		baseWhere += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}
	if identityID != nil {
		baseWhere += fmt.Sprintf(" AND identity_id = $%d", argIdx)
		args = append(args, *identityID)
		argIdx++
	}
	if from != nil {
		baseWhere += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM auth_events " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count auth events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, event_type, identity_id, email, distance, threshold, created_at
		 FROM auth_events %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query auth events: %w", err)
	}
	defer rows.Close()

	var events []models.AuthEvent
	for rows.Next() {
		var ev models.AuthEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.IdentityID, &ev.Email, &ev.Distance, &ev.Threshold, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan auth event: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, nil
}
