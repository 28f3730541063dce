// Package extractor provides the embedding-extraction capability consumed by
// the enrollment and identification flows: raw image bytes in, fixed-length
// face embeddings out. The caller never learns how embeddings are computed.
package extractor

import (
	"context"
	"errors"

	"github.com/your-org/facegate/internal/models"
)

// ErrUnavailable means the extractor itself failed (unreachable, timed out,
// returned garbage). It is distinct from "no face found", which is a normal
// nil result, not an error.
var ErrUnavailable = errors.New("embedding extractor unavailable")

// Extractor converts face images into embedding vectors.
//
// ExtractMany returns one slot per input image; a nil slot means no face was
// detected in that image. ExtractOne returns (nil, nil) when no face was
// detected. Both must honor ctx cancellation.
type Extractor interface {
	ExtractMany(ctx context.Context, images [][]byte) ([]models.EmbeddingVector, error)
	ExtractOne(ctx context.Context, image []byte) (models.EmbeddingVector, error)
}
