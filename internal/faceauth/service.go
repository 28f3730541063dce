package faceauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/your-org/facegate/internal/extractor"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

const bcryptCost = 10

// SessionIssuer converts a successful authentication into a signed
// time-bounded credential and validates it later.
type SessionIssuer interface {
	Issue(identityID uuid.UUID) (*models.Session, error)
	Validate(token string) (uuid.UUID, error)
}

// BlobStore keeps the source images submitted at enrollment. Optional.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObjects(ctx context.Context, keys []string) error
}

// AuditPublisher records enrollment and authentication attempts. Optional;
// publish failures are logged, never surfaced to the caller.
type AuditPublisher interface {
	PublishAuthEvent(ctx context.Context, ev models.AuthEvent) error
}

// Options tunes the service.
type Options struct {
	Threshold      float64       // max accepted match distance
	Dimension      int           // embedding dimensionality D
	ExtractTimeout time.Duration // bound on every extractor call
	MaxImages      int
	MaxImageBytes  int64
}

// Service orchestrates enrollment, 1:N identification and session issuance.
type Service struct {
	store     Store
	extractor extractor.Extractor
	issuer    SessionIssuer
	blobs     BlobStore
	audit     AuditPublisher
	validator *Validator
	engine    *Engine
	opts      Options
}

func NewService(store Store, ext extractor.Extractor, issuer SessionIssuer, blobs BlobStore, audit AuditPublisher, opts Options) *Service {
	return &Service{
		store:     store,
		extractor: ext,
		issuer:    issuer,
		blobs:     blobs,
		audit:     audit,
		validator: NewValidator(opts.MaxImages, opts.MaxImageBytes),
		engine:    NewEngine(store, opts.Dimension),
		opts:      opts,
	}
}

// Enroll registers a new identity from 1..MaxImages face images. Individual
// images the extractor finds no face in are skipped; enrollment fails only
// when none survive. The identity and all surviving embeddings become
// visible atomically, and uploaded artifacts are removed if anything after
// the upload fails.
func (s *Service) Enroll(ctx context.Context, displayName, email, password string, images [][]byte) (*models.Identity, int, error) {
	email = NormalizeEmail(email)

	if err := s.validator.ValidateBatch(images); err != nil {
		observability.Enrollments.WithLabelValues("rejected").Inc()
		return nil, 0, err
	}

	// Short-circuit on a known duplicate. The storage uniqueness constraint
	// remains the authority under concurrency.
	if existing, err := s.store.IdentityByEmail(ctx, email); err != nil {
		return nil, 0, fmt.Errorf("check email: %w", err)
	} else if existing != nil {
		observability.Enrollments.WithLabelValues("duplicate").Inc()
		return nil, 0, ErrDuplicateIdentity
	}

	vectors, err := s.extractMany(ctx, images)
	if err != nil {
		observability.Enrollments.WithLabelValues("extractor_error").Inc()
		return nil, 0, err
	}

	var (
		surviving     []models.EmbeddingVector
		survivingImgs [][]byte
	)
	for i, vec := range vectors {
		if vec == nil {
			slog.Info("enrollment image skipped, no face found", "email", email, "index", i)
			continue
		}
		if len(vec) != s.opts.Dimension {
			return nil, 0, fmt.Errorf("extractor returned dimension %d, configured %d", len(vec), s.opts.Dimension)
		}
		surviving = append(surviving, vec)
		survivingImgs = append(survivingImgs, images[i])
	}

	if len(surviving) == 0 {
		observability.Enrollments.WithLabelValues("no_face").Inc()
		return nil, 0, ErrNoFaceDetected
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, 0, fmt.Errorf("hash credential: %w", err)
	}

	identity := &models.Identity{
		ID:           uuid.New(),
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hash),
	}

	sourceKeys, err := s.uploadSources(ctx, identity.ID, survivingImgs)
	if err != nil {
		observability.Enrollments.WithLabelValues("storage_error").Inc()
		return nil, 0, err
	}

	if err := s.store.CreateIdentity(ctx, identity, surviving, sourceKeys); err != nil {
		s.cleanupSources(ctx, sourceKeys)
		if errors.Is(err, ErrDuplicateIdentity) {
			observability.Enrollments.WithLabelValues("duplicate").Inc()
			return nil, 0, ErrDuplicateIdentity
		}
		observability.Enrollments.WithLabelValues("storage_error").Inc()
		return nil, 0, fmt.Errorf("create identity: %w", err)
	}

	observability.Enrollments.WithLabelValues("ok").Inc()
	slog.Info("identity enrolled", "identity_id", identity.ID, "email", email, "embeddings", len(surviving))

	s.publishEvent(ctx, models.AuthEvent{
		Type:       models.EventEnrollment,
		IdentityID: &identity.ID,
		Email:      email,
	})

	return identity, len(surviving), nil
}

// AuthenticateByFace runs the identify path: one probe image against the
// entire enrolled population. The MatchResult is returned alongside the
// session so callers can expose the distance, and recorded for audit on
// both acceptance and rejection.
func (s *Service) AuthenticateByFace(ctx context.Context, image []byte) (*models.Session, *models.Identity, *models.MatchResult, error) {
	if err := s.validator.ValidateOne(image); err != nil {
		return nil, nil, nil, err
	}

	probe, err := s.extractOne(ctx, image)
	if err != nil {
		observability.Identifications.WithLabelValues("extractor_error").Inc()
		return nil, nil, nil, err
	}
	if probe == nil {
		observability.Identifications.WithLabelValues("no_face").Inc()
		return nil, nil, nil, ErrNoFaceDetected
	}

	result, err := s.engine.Identify(ctx, probe, s.opts.Threshold)
	if err != nil {
		observability.Identifications.WithLabelValues("error").Inc()
		return nil, nil, nil, fmt.Errorf("identify: %w", err)
	}

	if !result.Matched() {
		observability.Identifications.WithLabelValues("rejected").Inc()
		slog.Info("face authentication rejected",
			"distance", distanceValue(result.Distance), "threshold", result.Threshold)
		s.publishEvent(ctx, models.AuthEvent{
			Type:      models.EventFaceRejected,
			Distance:  result.Distance,
			Threshold: &result.Threshold,
		})
		return nil, nil, &result, ErrNoMatch
	}

	identity, err := s.store.Identity(ctx, *result.IdentityID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load matched identity: %w", err)
	}
	if identity == nil {
		// Matched an identity deleted between snapshot and lookup.
		observability.Identifications.WithLabelValues("rejected").Inc()
		return nil, nil, &result, ErrNoMatch
	}

	sess, err := s.issuer.Issue(identity.ID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("issue session: %w", err)
	}

	observability.Identifications.WithLabelValues("accepted").Inc()
	observability.SessionsIssued.WithLabelValues("face").Inc()
	slog.Info("face authentication accepted",
		"identity_id", identity.ID, "distance", *result.Distance, "threshold", result.Threshold)

	s.publishEvent(ctx, models.AuthEvent{
		Type:       models.EventFaceAccepted,
		IdentityID: &identity.ID,
		Email:      identity.Email,
		Distance:   result.Distance,
		Threshold:  &result.Threshold,
	})

	return sess, identity, &result, nil
}

// AuthenticateByPassword is the fallback credential check. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) AuthenticateByPassword(ctx context.Context, email, password string) (*models.Session, *models.Identity, error) {
	email = NormalizeEmail(email)

	identity, err := s.store.IdentityByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup identity: %w", err)
	}
	if identity == nil || bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)) != nil {
		s.publishEvent(ctx, models.AuthEvent{
			Type:  models.EventPasswordRejected,
			Email: email,
		})
		return nil, nil, ErrInvalidCredentials
	}

	sess, err := s.issuer.Issue(identity.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	observability.SessionsIssued.WithLabelValues("password").Inc()
	s.publishEvent(ctx, models.AuthEvent{
		Type:       models.EventPasswordAccepted,
		IdentityID: &identity.ID,
		Email:      email,
	})

	return sess, identity, nil
}

// ValidateSession checks a session token and returns the asserted identity.
func (s *Service) ValidateSession(token string) (uuid.UUID, error) {
	return s.issuer.Validate(token)
}

// Identity loads an identity by id (nil if unknown).
func (s *Service) Identity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return s.store.Identity(ctx, id)
}

func (s *Service) extractMany(ctx context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ExtractTimeout)
	defer cancel()

	vectors, err := s.extractor.ExtractMany(ctx, images)
	if err != nil {
		return nil, mapExtractorErr(err)
	}
	return vectors, nil
}

func (s *Service) extractOne(ctx context.Context, image []byte) (models.EmbeddingVector, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ExtractTimeout)
	defer cancel()

	vec, err := s.extractor.ExtractOne(ctx, image)
	if err != nil {
		return nil, mapExtractorErr(err)
	}
	return vec, nil
}

func mapExtractorErr(err error) error {
	if errors.Is(err, extractor.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrExtractorUnavailable, err)
	}
	return fmt.Errorf("extract embeddings: %w", err)
}

func (s *Service) uploadSources(ctx context.Context, identityID uuid.UUID, images [][]byte) ([]string, error) {
	if s.blobs == nil {
		return make([]string, len(images)), nil
	}

	keys := make([]string, 0, len(images))
	for seq, img := range images {
		key := fmt.Sprintf("faces/%s/%d%s", identityID, seq, mimetype.Detect(img).Extension())
		if err := s.blobs.PutObject(ctx, key, img, mimetype.Detect(img).String()); err != nil {
			s.cleanupSources(ctx, keys)
			return nil, fmt.Errorf("store source image %d: %w", seq, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Service) cleanupSources(ctx context.Context, keys []string) {
	if s.blobs == nil || len(keys) == 0 {
		return
	}
	if err := s.blobs.DeleteObjects(ctx, keys); err != nil {
		slog.Warn("cleanup enrollment artifacts", "error", err, "keys", len(keys))
	}
}

func (s *Service) publishEvent(ctx context.Context, ev models.AuthEvent) {
	if s.audit == nil {
		return
	}
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	if err := s.audit.PublishAuthEvent(ctx, ev); err != nil {
		slog.Warn("publish auth event", "type", ev.Type, "error", err)
	}
}

// NormalizeEmail lower-cases and trims an email address. All store lookups
// and inserts go through this, so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// distanceValue unwraps an optional distance for logging; -1 means the
// population was empty.
func distanceValue(d *float64) float64 {
	if d == nil {
		return -1
	}
	return *d
}
