package faceauth_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/your-org/facegate/internal/extractor"
	"github.com/your-org/facegate/internal/faceauth"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/internal/storage"
)

func png(size int) []byte {
	return append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, bytes.Repeat([]byte{0}, size)...)
}

type fakeExtractor struct {
	many func(images [][]byte) ([]models.EmbeddingVector, error)
	one  func(image []byte) (models.EmbeddingVector, error)
}

func (f *fakeExtractor) ExtractMany(_ context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	return f.many(images)
}

func (f *fakeExtractor) ExtractOne(_ context.Context, image []byte) (models.EmbeddingVector, error) {
	return f.one(image)
}

// constExtractor returns the same vector for every image.
func constExtractor(vec models.EmbeddingVector) *fakeExtractor {
	return &fakeExtractor{
		many: func(images [][]byte) ([]models.EmbeddingVector, error) {
			out := make([]models.EmbeddingVector, len(images))
			for i := range out {
				out[i] = vec
			}
			return out, nil
		},
		one: func([]byte) (models.EmbeddingVector, error) { return vec, nil },
	}
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) PutObject(_ context.Context, key string, data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBlobs) DeleteObjects(_ context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.objects, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func newService(store faceauth.Store, ext extractor.Extractor, blobs faceauth.BlobStore) *faceauth.Service {
	issuer := session.NewIssuer("test-secret", time.Hour)
	return faceauth.NewService(store, ext, issuer, blobs, nil, faceauth.Options{
		Threshold:      0.5,
		Dimension:      3,
		ExtractTimeout: time.Second,
		MaxImages:      4,
		MaxImageBytes:  1 << 20,
	})
}

func TestEnroll_SkipsImagesWithoutFaces(t *testing.T) {
	store := storage.NewMemoryStore()
	ext := &fakeExtractor{
		many: func(images [][]byte) ([]models.EmbeddingVector, error) {
			// Second image has no detectable face.
			return []models.EmbeddingVector{{1, 0, 0}, nil, {0, 1, 0}}, nil
		},
	}
	svc := newService(store, ext, nil)

	identity, count, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8), png(8), png(8)})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if count != 2 {
		t.Fatalf("embedding count = %d, want 2", count)
	}

	stored, err := store.CountEmbeddings(context.Background(), identity.ID)
	if err != nil || stored != 2 {
		t.Fatalf("stored embeddings = %d (err %v), want 2", stored, err)
	}
	if identity.Email != "ada@example.com" {
		t.Fatalf("email = %q", identity.Email)
	}
}

func TestEnroll_NormalizesEmail(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, constExtractor(models.EmbeddingVector{1, 0, 0}), nil)

	identity, _, err := svc.Enroll(context.Background(), "Ada", "  Ada@Example.COM ", "pw123456", [][]byte{png(8)})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if identity.Email != "ada@example.com" {
		t.Fatalf("email = %q, want normalized form", identity.Email)
	}
}

func TestEnroll_NoFaceInAnyImage(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	ext := &fakeExtractor{
		many: func(images [][]byte) ([]models.EmbeddingVector, error) {
			return make([]models.EmbeddingVector, len(images)), nil
		},
	}
	svc := newService(store, ext, blobs)

	_, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8), png(8)})
	if !errors.Is(err, faceauth.ErrNoFaceDetected) {
		t.Fatalf("got %v, want ErrNoFaceDetected", err)
	}
	if got, _ := store.IdentityByEmail(context.Background(), "ada@example.com"); got != nil {
		t.Fatal("identity must not exist after failed enrollment")
	}
	if len(blobs.objects) != 0 {
		t.Fatalf("%d blobs left behind", len(blobs.objects))
	}
}

func TestEnroll_DuplicateEmail(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	svc := newService(store, constExtractor(models.EmbeddingVector{1, 0, 0}), blobs)

	if _, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8)}); err != nil {
		t.Fatalf("first enroll: %v", err)
	}

	_, _, err := svc.Enroll(context.Background(), "Imposter", "ADA@example.com", "pw123456", [][]byte{png(8)})
	if !errors.Is(err, faceauth.ErrDuplicateIdentity) {
		t.Fatalf("got %v, want ErrDuplicateIdentity", err)
	}
}

func TestEnroll_ConcurrentSameEmail(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, constExtractor(models.EmbeddingVector{1, 0, 0}), nil)

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Enroll(context.Background(), "Ada", "race@example.com", "pw123456", [][]byte{png(8)})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, faceauth.ErrDuplicateIdentity):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != attempts-1 {
		t.Fatalf("ok=%d dup=%d, want exactly one winner", ok, dup)
	}
}

func TestEnroll_ExtractorUnavailable(t *testing.T) {
	store := storage.NewMemoryStore()
	ext := &fakeExtractor{
		many: func([][]byte) ([]models.EmbeddingVector, error) {
			return nil, extractor.ErrUnavailable
		},
	}
	svc := newService(store, ext, nil)

	_, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8)})
	if !errors.Is(err, faceauth.ErrExtractorUnavailable) {
		t.Fatalf("got %v, want ErrExtractorUnavailable", err)
	}
	if got, _ := store.IdentityByEmail(context.Background(), "ada@example.com"); got != nil {
		t.Fatal("identity must not exist when extraction failed")
	}
}

func TestEnroll_ValidationFailures(t *testing.T) {
	svc := newService(storage.NewMemoryStore(), constExtractor(models.EmbeddingVector{1, 0, 0}), nil)
	ctx := context.Background()

	if _, _, err := svc.Enroll(ctx, "A", "a@b.c", "pw", nil); !errors.Is(err, faceauth.ErrNoImages) {
		t.Fatalf("empty batch: got %v", err)
	}
	five := [][]byte{png(1), png(1), png(1), png(1), png(1)}
	if _, _, err := svc.Enroll(ctx, "A", "a@b.c", "pw", five); !errors.Is(err, faceauth.ErrTooManyImages) {
		t.Fatalf("over max: got %v", err)
	}
	if _, _, err := svc.Enroll(ctx, "A", "a@b.c", "pw", [][]byte{[]byte("nope")}); !errors.Is(err, faceauth.ErrInvalidMediaType) {
		t.Fatalf("bad media: got %v", err)
	}
}

func TestAuthenticateByFace(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, constExtractor(models.EmbeddingVector{1, 0, 0}), nil)

	identity, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8)})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	sess, matched, result, err := svc.AuthenticateByFace(context.Background(), png(8))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if matched.ID != identity.ID {
		t.Fatalf("matched %s, want %s", matched.ID, identity.ID)
	}
	if result.Distance == nil || *result.Distance != 0 {
		t.Fatalf("distance = %v, want 0", result.Distance)
	}

	// The session must assert the matched identity.
	got, err := svc.ValidateSession(sess.Token)
	if err != nil {
		t.Fatalf("validate session: %v", err)
	}
	if got != identity.ID {
		t.Fatalf("session identity %s, want %s", got, identity.ID)
	}
}

func TestAuthenticateByFace_NoMatch(t *testing.T) {
	store := storage.NewMemoryStore()
	ext := &fakeExtractor{
		many: func(images [][]byte) ([]models.EmbeddingVector, error) {
			out := make([]models.EmbeddingVector, len(images))
			for i := range out {
				out[i] = models.EmbeddingVector{1, 0, 0}
			}
			return out, nil
		},
		one: func([]byte) (models.EmbeddingVector, error) {
			// Probe far away from everything enrolled.
			return models.EmbeddingVector{0, 0, 5}, nil
		},
	}
	svc := newService(store, ext, nil)

	if _, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8)}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	sess, _, result, err := svc.AuthenticateByFace(context.Background(), png(8))
	if !errors.Is(err, faceauth.ErrNoMatch) {
		t.Fatalf("got %v, want ErrNoMatch", err)
	}
	if sess != nil {
		t.Fatal("no session may be issued on rejection")
	}
	if result == nil || result.Distance == nil {
		t.Fatal("rejection must still carry the best distance")
	}
}

func TestAuthenticateByFace_NoFace(t *testing.T) {
	svc := newService(storage.NewMemoryStore(), &fakeExtractor{
		one: func([]byte) (models.EmbeddingVector, error) { return nil, nil },
	}, nil)

	_, _, _, err := svc.AuthenticateByFace(context.Background(), png(8))
	if !errors.Is(err, faceauth.ErrNoFaceDetected) {
		t.Fatalf("got %v, want ErrNoFaceDetected", err)
	}
}

// blockingExtractor waits out the request context and reports its error, the
// behavior of a hung remote face service.
type blockingExtractor struct{}

func (blockingExtractor) ExtractMany(ctx context.Context, images [][]byte) ([]models.EmbeddingVector, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingExtractor) ExtractOne(ctx context.Context, _ []byte) (models.EmbeddingVector, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAuthenticateByFace_ExtractorTimeout(t *testing.T) {
	issuer := session.NewIssuer("test-secret", time.Hour)
	svc := faceauth.NewService(storage.NewMemoryStore(), blockingExtractor{}, issuer, nil, nil, faceauth.Options{
		Threshold:      0.5,
		Dimension:      3,
		ExtractTimeout: 20 * time.Millisecond,
		MaxImages:      4,
		MaxImageBytes:  1 << 20,
	})

	sess, _, _, err := svc.AuthenticateByFace(context.Background(), png(8))
	if !errors.Is(err, faceauth.ErrExtractorUnavailable) {
		t.Fatalf("got %v, want ErrExtractorUnavailable", err)
	}
	if sess != nil {
		t.Fatal("no session may be issued when extraction timed out")
	}
}

func TestAuthenticateByPassword(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, constExtractor(models.EmbeddingVector{1, 0, 0}), nil)

	identity, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "correct horse", [][]byte{png(8)})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	sess, got, err := svc.AuthenticateByPassword(context.Background(), "Ada@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != identity.ID {
		t.Fatalf("authenticated %s, want %s", got.ID, identity.ID)
	}
	if id, err := svc.ValidateSession(sess.Token); err != nil || id != identity.ID {
		t.Fatalf("session check: id=%s err=%v", id, err)
	}

	if _, _, err := svc.AuthenticateByPassword(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, faceauth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, err := svc.AuthenticateByPassword(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, faceauth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestEnroll_StoresSourceImages(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	svc := newService(store, constExtractor(models.EmbeddingVector{1, 0, 0}), blobs)

	if _, _, err := svc.Enroll(context.Background(), "Ada", "ada@example.com", "pw123456", [][]byte{png(8), png(8)}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if len(blobs.objects) != 2 {
		t.Fatalf("stored %d source images, want 2", len(blobs.objects))
	}
}
